package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
persistence:
  backend: sqlite
generation:
  throttle_interval: 5s
  max_scenes: 6
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "sqlite", cfg.Persistence.Backend)
	assert.Equal(t, 5*time.Second, cfg.Generation.ThrottleInterval)
	assert.Equal(t, 6, cfg.Generation.MaxScenes)
	// Untouched fields keep their defaults.
	assert.Equal(t, "USD", cfg.Credits.DisplayCurrency)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("STORYFLOW_PERSISTENCE_BACKEND", "redis")
	t.Setenv("STORYFLOW_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("STORYFLOW_GENERATION_THROTTLE_INTERVAL", "500ms")
	t.Setenv("STORYFLOW_TELEMETRY_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Persistence.Backend)
	assert.Equal(t, "redis.internal:6380", cfg.Persistence.Redis.Addr)
	assert.Equal(t, 500*time.Millisecond, cfg.Generation.ThrottleInterval)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Persistence.Backend = "mongodb" }},
		{"zero max scenes", func(c *Config) { c.Generation.MaxScenes = 0 }},
		{"negative balance", func(c *Config) { c.Credits.StartingBalance = -1 }},
		{"zero conversion rate", func(c *Config) { c.Credits.ConversionRate = 0 }},
		{"telemetry without endpoint", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.OTLPEndpoint = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}
