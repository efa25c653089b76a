package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Load_DefaultsOnly(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Vendors.PrimaryBaseURL)
}

func TestLoader_Load_FileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
server:
  http_port: 9000
vendors:
  primary_base_url: "https://example.test/v1"
  primary_max_concurrent: 8
auth:
  rate_limit_rps: 5
  rate_limit_burst: 10
  allowed_origins:
    - "https://app.example.com"
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, "https://example.test/v1", cfg.Vendors.PrimaryBaseURL)
	assert.Equal(t, 8, cfg.Vendors.PrimaryMaxConcurrent)
	assert.Equal(t, 5.0, cfg.Auth.RateLimitRPS)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Auth.AllowedOrigins)
	// Untouched sections keep their defaults.
	assert.Equal(t, "https://api.deepseek.com/v1", cfg.Vendors.SecondaryBaseURL)
}

func TestLoader_Load_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9000\n"), 0o644))

	t.Setenv("ROUTER_SERVER_HTTP_PORT", "7070")
	t.Setenv("ROUTER_VENDORS_PRIMARY_API_KEY", "sk-test-key")
	t.Setenv("ROUTER_AUTH_ALLOWED_ORIGINS", "https://a.test, https://b.test")

	cfg, err := NewLoader().WithConfigPath(path).WithEnvPrefix("ROUTER").Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.HTTPPort)
	assert.Equal(t, "sk-test-key", cfg.Vendors.PrimaryAPIKey)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Auth.AllowedOrigins)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "bad port", mutate: func(c *Config) { c.Server.HTTPPort = 0 }, wantErr: true},
		{name: "unsupported driver", mutate: func(c *Config) { c.Database.Driver = "postgres" }, wantErr: true},
		{name: "empty primary base url", mutate: func(c *Config) { c.Vendors.PrimaryBaseURL = "" }, wantErr: true},
		{name: "empty secondary base url", mutate: func(c *Config) { c.Vendors.SecondaryBaseURL = "" }, wantErr: true},
		{name: "zero rate limit", mutate: func(c *Config) { c.Auth.RateLimitRPS = 0 }, wantErr: true},
		{name: "zero rate limit burst", mutate: func(c *Config) { c.Auth.RateLimitBurst = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
