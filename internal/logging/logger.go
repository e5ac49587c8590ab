package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailsync/internal/model"
)

// New creates a zerolog logger from the logging configuration. Unknown
// levels fall back to info; an unwritable output file falls back to stderr.
func New(cfg model.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			output = os.Stderr
		} else {
			output = f
		}
	}

	if cfg.Format != "json" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.TimeOnly}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

// WithAccount returns a logger tagged with the account being synced.
func WithAccount(logger zerolog.Logger, accountID string) zerolog.Logger {
	return logger.With().Str("account_id", accountID).Logger()
}

// WithFolder returns a logger tagged with the folder being synced.
func WithFolder(logger zerolog.Logger, folder string) zerolog.Logger {
	return logger.With().Str("folder", folder).Logger()
}
