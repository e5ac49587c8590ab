// Package main provides the mailsync command line tool.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nhle/mailsync/internal/embedding"
	"github.com/nhle/mailsync/internal/logging"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/source/email"
	"github.com/nhle/mailsync/internal/store"
	"github.com/nhle/mailsync/internal/sync"
)

var (
	configFile string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "mailsync",
		Short:         "mailsync - IMAP mailbox synchronization",
		Long:          "Keeps a local database in sync with remote IMAP mailboxes.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", model.DefaultConfigPath(), "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(accountCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the dependencies shared by the commands.
type app struct {
	cfg    *model.AppConfig
	logger zerolog.Logger
	store  *store.SQLStore
}

func newApp() (*app, error) {
	cfg, err := model.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger := logging.New(cfg.Logging)

	if cfg.Database.Driver == "sqlite" && cfg.Database.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug().
		Str("driver", cfg.Database.Driver).
		Str("config", configFile).
		Msg("database ready")

	return &app{cfg: cfg, logger: logger, store: st}, nil
}

func (a *app) service() *sync.Service {
	var trigger embedding.Trigger
	if a.cfg.Embedding.Enabled {
		trigger = embedding.NewQueueTrigger(a.store, a.cfg.Embedding.Timeout)
	}
	factory := email.NewFactory(a.cfg.Sync.ConnectTimeout)
	return sync.NewService(a.store, factory, trigger, a.cfg.Sync, a.logger)
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("closing database failed")
	}
}
