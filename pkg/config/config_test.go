package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ProviderGemini, cfg.Oracle.Provider)
	assert.Equal(t, 5*time.Minute, time.Duration(cfg.Agent.MonitorInterval))
	assert.Equal(t, "critical", cfg.Agent.InteractionThreshold)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"oracle": {"provider": "mock", "model": "test", "max_tokens": 100, "temperature": 0.2},
		"agent": {
			"monitor_interval": "30s",
			"calendar_lookahead": "48h",
			"travel_buffer": "10m",
			"response_window": "2m",
			"interaction_urgency_threshold": "high",
			"error_backoff_base": "5s",
			"error_backoff_cap": "1m",
			"scoring_workers": 2,
			"email_lookback_on_start": "12h"
		},
		"web": {"addr": "localhost:9090"},
		"db_path": "test.db"
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	require.NoError(t, LoadConfig(path))
	cfg, err := GetConfig()
	require.NoError(t, err)

	assert.Equal(t, ProviderMock, cfg.Oracle.Provider)
	assert.Equal(t, 30*time.Second, time.Duration(cfg.Agent.MonitorInterval))
	assert.Equal(t, 10*time.Minute, time.Duration(cfg.Agent.TravelBuffer))
	assert.Equal(t, "high", cfg.Agent.InteractionThreshold)
	assert.Equal(t, "localhost:9090", cfg.Web.Addr)
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	require.NoError(t, LoadConfig(filepath.Join(t.TempDir(), "absent.json")))
	cfg, err := GetConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Web.Addr, cfg.Web.Addr)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Oracle.Provider = "psychic" }},
		{"zero interval", func(c *Config) { c.Agent.MonitorInterval = 0 }},
		{"bad threshold", func(c *Config) { c.Agent.InteractionThreshold = "mild" }},
		{"cap below base", func(c *Config) {
			c.Agent.ErrorBackoffBase = c.Agent.ErrorBackoffCap * 2
		}},
		{"zero workers", func(c *Config) { c.Agent.ScoringWorkers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestTokenEncryptionKey(t *testing.T) {
	t.Setenv(EnvTokenKey, "")
	_, err := TokenEncryptionKey()
	assert.Error(t, err)

	t.Setenv(EnvTokenKey, "not-hex")
	_, err = TokenEncryptionKey()
	assert.Error(t, err)

	t.Setenv(EnvTokenKey, "6368616e676520746869732070617373776f726420746f206120736563726574")
	key, err := TokenEncryptionKey()
	require.NoError(t, err)
	assert.Len(t, key[:], 32)
}
