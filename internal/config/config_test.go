package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, 3, cfg.Workflow.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Workflow.BackoffBase)
	assert.Equal(t, 30*time.Second, cfg.Workflow.ConnectTimeout)
	assert.Equal(t, 300*time.Second, cfg.Workflow.ReadTimeout)
	assert.Equal(t, 10, cfg.Workflow.MaxConns)
	assert.Equal(t, 5, cfg.Workflow.MaxIdleConns)
	assert.Equal(t, "streaming", cfg.Workflow.ResponseMode)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, "memory", cfg.Repository.Type)
}

func TestLoadFromEnv_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: "9000"
workflow:
  base_url: http://dify.internal/v1
  response_mode: blocking
  max_attempts: 5
  read_timeout: 120s
repository:
  database: labels
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("WORKFLOW_MAX_ATTEMPTS", "2")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "http://dify.internal/v1", cfg.Workflow.BaseURL)
	assert.Equal(t, "blocking", cfg.Workflow.ResponseMode)
	assert.Equal(t, 2, cfg.Workflow.MaxAttempts, "env overrides file")
	assert.Equal(t, 120*time.Second, cfg.Workflow.ReadTimeout)
	assert.Equal(t, "labels", cfg.Repository.Database)
	assert.Equal(t, "detection_records", cfg.Repository.Collection, "unset keys keep defaults")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoadFromEnv_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workflow: [unclosed"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := LoadFromEnv()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.Port = "abc" }, true},
		{"port out of range", func(c *Config) { c.Port = "70000" }, true},
		{"unknown mode", func(c *Config) { c.Workflow.ResponseMode = "async" }, true},
		{"zero attempts", func(c *Config) { c.Workflow.MaxAttempts = 0 }, true},
		{"read not above connect", func(c *Config) { c.Workflow.ReadTimeout = c.Workflow.ConnectTimeout }, true},
		{"empty base url", func(c *Config) { c.Workflow.BaseURL = " " }, true},
		{"azure without credentials", func(c *Config) { c.Storage.Type = "azure" }, true},
		{"azure with credentials", func(c *Config) {
			c.Storage.Type = "azure"
			c.Storage.AzureAccount = "acct"
			c.Storage.AzureKey = "a2V5"
			c.Storage.AzureContainer = "labels"
		}, false},
		{"mongo without uri", func(c *Config) { c.Repository.Type = "mongo" }, true},
		{"unknown repository", func(c *Config) { c.Repository.Type = "postgres" }, true},
		{"negative rate", func(c *Config) { c.Workflow.RateLimit = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
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

func TestServerAddress(t *testing.T) {
	cfg := &Config{Host: " 127.0.0.1 ", Port: "8080 "}
	assert.Equal(t, "127.0.0.1:8080", cfg.ServerAddress())
}
