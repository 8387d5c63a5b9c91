package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moamenhredeen/oasgate/internal/models"
	"github.com/moamenhredeen/oasgate/internal/security"
	"github.com/moamenhredeen/oasgate/internal/validator"
)

const sampleConfig = `
document = "petstore.yaml"
listen = ":9090"
base_path = "/v2"

[validation]
unknown_fields = "reject"
responses = "log"

[server]
request_timeout = "5s"
rate_limit = 20.5
burst = 5

[log]
level = "debug"
format = "json"

[security.api_key]
keys = ["special-key"]

[security.petstore_auth]
scoped_keys = [
  { key = "reader", scopes = ["read:pets"] },
  { key = "writer", scopes = ["read:pets", "write:pets"] },
]

[tester.credentials]
api_key = "special-key"
`

func loadFrom(t *testing.T, content string) (*Config, error) {
	t.Helper()
	dir := t.TempDir()
	if content != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644))
	}
	v, err := New(dir)
	require.NoError(t, err)
	return Load(v)
}

func TestDefaultsWithoutFile(t *testing.T) {
	cfg, err := loadFrom(t, "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "ignore", cfg.Validation.UnknownFields)
	assert.Equal(t, ResponsesOff, cfg.Validation.Responses)
	assert.Equal(t, validator.DefaultMaxBodySize, cfg.Validation.MaxBodyBytes)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, validator.Ignore, cfg.UnknownFields())
}

func TestLoadFile(t *testing.T) {
	cfg, err := loadFrom(t, sampleConfig)
	require.NoError(t, err)

	assert.Equal(t, "petstore.yaml", cfg.Document)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "/v2", cfg.BasePath)
	assert.Equal(t, validator.Reject, cfg.UnknownFields())
	assert.Equal(t, ResponsesLog, cfg.Validation.Responses)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 20.5, cfg.Server.RateLimit)
	assert.Equal(t, 5, cfg.Server.Burst)
	assert.Equal(t, "json", cfg.Log.Format)

	sc, ok := cfg.SchemeConfig("API_KEY")
	require.True(t, ok)
	assert.Equal(t, []string{"special-key"}, sc.Keys)

	cred, ok := cfg.Credential("api_key")
	require.True(t, ok)
	assert.Equal(t, "special-key", cred)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("OASGATE_LISTEN", ":7070")
	t.Setenv("OASGATE_VALIDATION_RESPONSES", "enforce")

	cfg, err := loadFrom(t, sampleConfig)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, ResponsesEnforce, cfg.Validation.Responses)
}

func TestInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"policy", "[validation]\nunknown_fields = \"maybe\"\n", "unknown field policy"},
		{"responses", "[validation]\nresponses = \"sometimes\"\n", "validation.responses"},
		{"base path", "base_path = \"v2\"\n", "must start with /"},
		{"users", "[security.basic]\nusers = [\"alice\"]\n", "not name:password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadFrom(t, tt.content)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("listen = [unterminated"), 0o644))

	_, err := New(dir)
	assert.Error(t, err)
}

func TestValidators(t *testing.T) {
	cfg, err := loadFrom(t, sampleConfig)
	require.NoError(t, err)

	schemes := map[string]*models.SecurityScheme{
		"api_key":       {Name: "api_key", Type: models.SchemeTypeAPIKey},
		"petstore_auth": {Name: "petstore_auth", Type: models.SchemeTypeOAuth2},
	}

	validators, err := cfg.Validators(schemes)
	require.NoError(t, err)
	require.Len(t, validators, 2)

	ok, err := validators["api_key"].Check(context.Background(), schemes["api_key"], "special-key")
	require.NoError(t, err)
	assert.True(t, ok)

	scoped, isScoped := validators["petstore_auth"].(security.ScopedValidator)
	require.True(t, isScoped)
	scopes, err := scoped.Scopes(context.Background(), schemes["petstore_auth"], "reader")
	require.NoError(t, err)
	assert.Equal(t, []string{"read:pets"}, scopes)
}

func TestValidatorsRejectsMisconfiguredSchemes(t *testing.T) {
	schemes := map[string]*models.SecurityScheme{"bearer": {Name: "bearer", Type: models.SchemeTypeHTTP, Scheme: "bearer"}}

	tests := []struct {
		name string
		sec  map[string]SchemeConfig
		want string
	}{
		{"undeclared", map[string]SchemeConfig{"ghost": {Keys: []string{"k"}}}, "no such security scheme"},
		{"empty", map[string]SchemeConfig{"bearer": {}}, "no credentials configured"},
		{"ambiguous", map[string]SchemeConfig{"bearer": {Keys: []string{"k"}, JWTSecret: "s"}}, "only one of keys, jwt_secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Security: tt.sec}
			_, err := cfg.Validators(schemes)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	cfg := &Config{Security: map[string]SchemeConfig{"BEARER": {JWTSecret: "secret"}}}
	validators, err := cfg.Validators(schemes)
	require.NoError(t, err)
	assert.IsType(t, &security.JWTValidator{}, validators["bearer"])
}
