package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultAppConfig(t *testing.T) {
	cfg := DefaultAppConfig()

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Sync.CircuitBreaker.Failures)
	assert.Equal(t, 30*time.Minute, cfg.Sync.CircuitBreaker.Window)
	assert.Equal(t, 60*time.Minute, cfg.Sync.StaleLockTimeout)
	assert.Equal(t, 3, cfg.Sync.MaxUIDRetries)
	assert.Equal(t, AnchorAccountCreated, cfg.Sync.WindowAnchor)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Sync.BatchSize)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sync:
  batch_size: 25
  window_anchor: now
  stale_lock_timeout: 15m
logging:
  level: debug
`), 0o644))
	t.Setenv("MAILSYNC_SYNC_COMMIT_EVERY", "10")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Sync.BatchSize)
	assert.Equal(t, 10, cfg.Sync.CommitEvery)
	assert.Equal(t, AnchorNow, cfg.Sync.WindowAnchor)
	assert.Equal(t, 15*time.Minute, cfg.Sync.StaleLockTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 100, cfg.Sync.FlagBatchSize)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync:\n  window_anchor: yesterday\n"), 0o644))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "window_anchor")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*AppConfig)
	}{
		{"unknown driver", func(c *AppConfig) { c.Database.Driver = "mysql" }},
		{"zero batch size", func(c *AppConfig) { c.Sync.BatchSize = 0 }},
		{"zero commit interval", func(c *AppConfig) { c.Sync.CommitEvery = 0 }},
		{"zero flag batch", func(c *AppConfig) { c.Sync.FlagBatchSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultAppConfig()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultAppConfig()
	cfg.Sync.BatchSize = 42
	cfg.Sync.PollInterval = 2 * time.Minute

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Sync.BatchSize)
	assert.Equal(t, 2*time.Minute, loaded.Sync.PollInterval)
}
