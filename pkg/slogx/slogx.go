// Package slogx provides a small wrapper around log/slog with a common
// configuration surface and context propagation helpers, so every binary
// logs in the same shape.
package slogx

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the handler encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config controls logger construction. The zero value yields an
// info-level text logger on stderr.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Unknown values
	// fall back to info.
	Level string

	// Format is "text" or "json".
	Format Format

	// Writer overrides the output destination. Defaults to os.Stderr.
	Writer io.Writer

	// Service, if set, is attached to every record as service=<name>.
	Service string
}

// New builds a *slog.Logger from cfg.
func New(cfg Config) *slog.Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler
	switch cfg.Format {
	case FormatJSON:
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}

	log := slog.New(h)
	if cfg.Service != "" {
		log = log.With(slog.String("service", cfg.Service))
	}
	return log
}

// SetDefault builds a logger from cfg and installs it as the process
// default, returning it for direct use.
func SetDefault(cfg Config) *slog.Logger {
	log := New(cfg)
	slog.SetDefault(log)
	return log
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
