// Package logger provides logging utilities for the metric alert engine.
// It includes structured logging setup and configuration.
package logger

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger creates a JSON logger writing to w and installs it as the default
func NewLogger(w io.Writer, level string) *slog.Logger {
	logger := New(w, level)

	slog.SetDefault(logger)

	return logger
}

// New creates a JSON logger writing to w at the given level name
func New(w io.Writer, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(level),
		AddSource: true,
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel maps a level name to slog.Level; unknown names fall back to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Component returns a child logger tagged with the component name
func Component(base *slog.Logger, name string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With("component", name)
}
