// Package config loads oasgate settings from config.toml, OASGATE_*
// environment variables and command line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/moamenhredeen/oasgate/internal/logging"
	"github.com/moamenhredeen/oasgate/internal/validator"
)

// EnvPrefix is prepended to every environment override, so server.rate_limit
// is read from OASGATE_SERVER_RATE_LIMIT
const EnvPrefix = "OASGATE"

// Response validation modes
const (
	ResponsesOff     = "off"
	ResponsesLog     = "log"
	ResponsesEnforce = "enforce"
)

// Config is the resolved configuration
type Config struct {
	Document string `mapstructure:"document"`
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
	Mock     bool   `mapstructure:"mock"`

	Validation ValidationConfig `mapstructure:"validation"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`

	// Security is keyed by security scheme name. Viper lower-cases keys, so
	// lookups go through SchemeConfig.
	Security map[string]SchemeConfig `mapstructure:"security"`
	Tester   TesterConfig            `mapstructure:"tester"`
}

type ValidationConfig struct {
	UnknownFields  string `mapstructure:"unknown_fields"`
	Responses      string `mapstructure:"responses"`
	MaxBodyBytes   int64  `mapstructure:"max_body_bytes"`
	StrictDocument bool   `mapstructure:"strict_document"`
}

type ServerConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	Burst          int           `mapstructure:"burst"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SchemeConfig holds the credentials accepted for one security scheme.
// Users are "name:password" pairs.
type SchemeConfig struct {
	Keys       []string    `mapstructure:"keys"`
	ScopedKeys []ScopedKey `mapstructure:"scoped_keys"`
	Users      []string    `mapstructure:"users"`
	JWTSecret  string      `mapstructure:"jwt_secret"`
	JWTIssuer  string      `mapstructure:"jwt_issuer"`
}

// ScopedKey is a key granted a fixed set of scopes
type ScopedKey struct {
	Key    string   `mapstructure:"key"`
	Scopes []string `mapstructure:"scopes"`
}

type TesterConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`

	// Credentials maps a scheme name to the raw credential sent for it
	Credentials map[string]string `mapstructure:"credentials"`
}

// SetDefaults registers every default on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("mock", false)
	v.SetDefault("validation.unknown_fields", validator.Ignore.String())
	v.SetDefault("validation.responses", ResponsesOff)
	v.SetDefault("validation.max_body_bytes", validator.DefaultMaxBodySize)
	v.SetDefault("validation.strict_document", false)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.burst", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", string(logging.FormatText))
	v.SetDefault("tester.timeout", 30*time.Second)
}

// New returns a viper instance that reads config.toml from dir (when it
// exists) and OASGATE_* environment variables
func New(dir string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return v, nil
}

// Load decodes and checks the configuration held by v
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component could act on
func (c *Config) Validate() error {
	var problems []string

	if _, err := validator.ParseUnknownFieldPolicy(c.Validation.UnknownFields); err != nil {
		problems = append(problems, err.Error())
	}
	switch c.Validation.Responses {
	case ResponsesOff, ResponsesLog, ResponsesEnforce:
	default:
		problems = append(problems, fmt.Sprintf("validation.responses must be off, log or enforce, got %q", c.Validation.Responses))
	}
	if c.Validation.MaxBodyBytes < 0 {
		problems = append(problems, "validation.max_body_bytes must not be negative")
	}
	if c.Server.RequestTimeout < 0 {
		problems = append(problems, "server.request_timeout must not be negative")
	}
	if c.Server.RateLimit < 0 {
		problems = append(problems, "server.rate_limit must not be negative")
	}
	if c.BasePath != "" && !strings.HasPrefix(c.BasePath, "/") {
		problems = append(problems, fmt.Sprintf("base_path %q must start with /", c.BasePath))
	}
	for name, sc := range c.Security {
		for _, u := range sc.Users {
			if !strings.Contains(u, ":") {
				problems = append(problems, fmt.Sprintf("security.%s.users: %q is not name:password", name, u))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// UnknownFields returns the parsed unknown-field policy
func (c *Config) UnknownFields() validator.UnknownFieldPolicy {
	p, _ := validator.ParseUnknownFieldPolicy(c.Validation.UnknownFields)
	return p
}

// Logger builds the logger described by the log section
func (c *Config) Logger() *slog.Logger {
	return logging.New(logging.Config{
		Level:  logging.ParseLevel(c.Log.Level),
		Format: logging.ParseFormat(c.Log.Format),
	})
}

// SchemeConfig returns the credentials configured for a scheme, matching
// the name case-insensitively
func (c *Config) SchemeConfig(name string) (SchemeConfig, bool) {
	for k, sc := range c.Security {
		if strings.EqualFold(k, name) {
			return sc, true
		}
	}
	return SchemeConfig{}, false
}

// Credential returns the tester credential configured for a scheme
func (c *Config) Credential(scheme string) (string, bool) {
	for k, cred := range c.Tester.Credentials {
		if strings.EqualFold(k, scheme) {
			return cred, true
		}
	}
	return "", false
}
