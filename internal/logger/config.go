// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package logger

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds the logger configuration.
type Config struct {
	Level     slog.Level
	Format    string // "json" or "text"
	AddSource bool
	Writer    io.Writer
}

// DefaultConfig returns the configuration used when no environment variables
// are set. The library is quiet by default: only warnings reach stderr.
func DefaultConfig() Config {
	return Config{
		Level:  slog.LevelWarn,
		Format: "text",
		Writer: os.Stderr,
	}
}

// LoadConfig loads the logger configuration from the SQLEXPR_LOG_LEVEL,
// SQLEXPR_LOG_FORMAT and SQLEXPR_LOG_ADD_SOURCE environment variables.
func LoadConfig() Config {
	config := DefaultConfig()

	if levelStr := os.Getenv("SQLEXPR_LOG_LEVEL"); levelStr != "" {
		if level, ok := parseLevel(levelStr); ok {
			config.Level = level
		}
	}

	if format := os.Getenv("SQLEXPR_LOG_FORMAT"); format == "text" || format == "json" {
		config.Format = format
	}

	if addSourceStr := os.Getenv("SQLEXPR_LOG_ADD_SOURCE"); addSourceStr != "" {
		if addSource, err := strconv.ParseBool(addSourceStr); err == nil {
			config.AddSource = addSource
		}
	}

	return config
}

// parseLevel accepts the slog level names or an integer level.
func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN", "WARNING":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	}
	if n, err := strconv.Atoi(s); err == nil {
		return slog.Level(n), true
	}
	return 0, false
}

// NewLogger creates a new logger with the given configuration.
func NewLogger(config Config) *slog.Logger {
	w := config.Writer
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     config.Level,
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	switch config.Format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
