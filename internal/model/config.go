package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Window anchors accepted by SyncConfig.WindowAnchor.
const (
	AnchorAccountCreated = "account_created"
	AnchorNow            = "now"
)

// DatabaseConfig selects the SQL driver and data source.
type DatabaseConfig struct {
	// Driver is "sqlite" or "pgx".
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// LoggingConfig controls the zerolog logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // console or json
	Output string `mapstructure:"output" yaml:"output"` // stdout, stderr or a file path
}

// CircuitBreakerConfig bounds retries after repeated failures.
type CircuitBreakerConfig struct {
	Failures int           `mapstructure:"failures" yaml:"failures"`
	Window   time.Duration `mapstructure:"window" yaml:"window"`
}

// SyncConfig holds the tunables of the sync engine.
type SyncConfig struct {
	BatchSize           int                  `mapstructure:"batch_size" yaml:"batch_size"`
	CommitEvery         int                  `mapstructure:"commit_every" yaml:"commit_every"`
	FlagBatchSize       int                  `mapstructure:"flag_batch_size" yaml:"flag_batch_size"`
	CircuitBreaker      CircuitBreakerConfig `mapstructure:"circuit_breaker" yaml:"circuit_breaker"`
	StaleLockTimeout    time.Duration        `mapstructure:"stale_lock_timeout" yaml:"stale_lock_timeout"`
	MaxUIDRetries       int                  `mapstructure:"max_uid_retries" yaml:"max_uid_retries"`
	WindowAnchor        string               `mapstructure:"window_anchor" yaml:"window_anchor"`
	ConnectTimeout      time.Duration        `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	PollInterval        time.Duration        `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxParallelAccounts int                  `mapstructure:"max_parallel_accounts" yaml:"max_parallel_accounts"`
}

// EmbeddingConfig controls the downstream embedding trigger.
type EmbeddingConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Sync      SyncConfig      `mapstructure:"sync" yaml:"sync"`
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailsync/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailsync", "config.yaml")
}

// DefaultDatabasePath returns the default sqlite database location.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "mailsync.db"
	}
	return filepath.Join(home, ".config", "mailsync", "mailsync.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", DefaultDatabasePath())

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("sync.batch_size", 100)
	v.SetDefault("sync.commit_every", 50)
	v.SetDefault("sync.flag_batch_size", 100)
	v.SetDefault("sync.circuit_breaker.failures", 5)
	v.SetDefault("sync.circuit_breaker.window", 30*time.Minute)
	v.SetDefault("sync.stale_lock_timeout", 60*time.Minute)
	v.SetDefault("sync.max_uid_retries", 3)
	v.SetDefault("sync.window_anchor", AnchorAccountCreated)
	v.SetDefault("sync.connect_timeout", 30*time.Second)
	v.SetDefault("sync.poll_interval", 5*time.Minute)
	v.SetDefault("sync.max_parallel_accounts", 4)

	v.SetDefault("embedding.enabled", true)
	v.SetDefault("embedding.timeout", 10*time.Second)
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	v := viper.New()
	setDefaults(v)

	cfg := &AppConfig{}
	// Defaults alone always decode.
	_ = v.Unmarshal(cfg)
	return cfg
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with MAILSYNC_ override file values. If the
// file does not exist, defaults (plus environment) are used.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix("MAILSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		_, missingFile := err.(*os.PathError)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !missingFile && !notFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects values the sync engine cannot run with.
func (c *AppConfig) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "pgx":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Sync.BatchSize < 1 {
		return fmt.Errorf("sync.batch_size must be positive, got %d", c.Sync.BatchSize)
	}
	if c.Sync.CommitEvery < 1 {
		return fmt.Errorf("sync.commit_every must be positive, got %d", c.Sync.CommitEvery)
	}
	if c.Sync.FlagBatchSize < 1 {
		return fmt.Errorf("sync.flag_batch_size must be positive, got %d", c.Sync.FlagBatchSize)
	}
	switch c.Sync.WindowAnchor {
	case AnchorAccountCreated, AnchorNow:
	default:
		return fmt.Errorf("unsupported sync.window_anchor %q", c.Sync.WindowAnchor)
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("database", cfg.Database)
	v.Set("logging", cfg.Logging)
	v.Set("sync", cfg.Sync)
	v.Set("embedding", cfg.Embedding)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
