/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/moamenhredeen/oasgate/internal/config"
	"github.com/moamenhredeen/oasgate/internal/models"
	"github.com/moamenhredeen/oasgate/internal/parser"
)

var (
	configDir string

	v      *viper.Viper
	cfg    *config.Config
	logger *slog.Logger
)

// flagKeys maps configuration keys to the flags that override them. Flags a
// command does not define are skipped.
var flagKeys = map[string]string{
	"document":                   "document",
	"log.level":                  "log-level",
	"log.format":                 "log-format",
	"listen":                     "listen",
	"mock":                       "mock",
	"base_path":                  "base-path",
	"validation.responses":       "responses",
	"validation.unknown_fields":  "unknown-fields",
	"validation.strict_document": "strict",
	"tester.timeout":             "timeout",
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "oasgate",
	Short: "OpenAPI driven request gateway",
	Long: `oasgate routes, authorizes and validates HTTP requests against an
OpenAPI 3 document before they reach a handler.

It can serve a document with generated mock responses, list its routes,
check it for problems and run contract tests against a live server.

Settings are read from config.toml in the config directory, then from
OASGATE_* environment variables, then from flags.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	var err error
	v, err = config.New(configDir)
	if err != nil {
		return err
	}
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return err
	}

	cfg, err = config.Load(v)
	if err != nil {
		return err
	}
	logger = cfg.Logger()
	slog.SetDefault(logger)

	if used := v.ConfigFileUsed(); used != "" {
		logger.Debug("config loaded", "file", used)
	}
	return nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key, name := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

// loadDocument parses the document named by the first argument, or by the
// document setting when no argument is given
func loadDocument(args []string) (*models.Document, error) {
	path := cfg.Document
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return nil, errors.New("no OpenAPI document given: pass it as an argument, with --document or in config.toml")
	}
	return parser.ParseFile(path,
		parser.WithStrictValidation(cfg.Validation.StrictDocument),
		parser.WithLogger(logger.With("component", "libopenapi")),
	)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "Directory containing config.toml")
	rootCmd.PersistentFlags().StringP("document", "d", "", "OpenAPI document to load")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text, json")
}
