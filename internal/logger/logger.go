// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package logger holds the structured logger shared by the sqlexpr packages.
package logger

import (
	"log/slog"
	"sync"
)

var (
	mutex  sync.RWMutex
	logger *slog.Logger
)

func init() {
	logger = NewLogger(LoadConfig())
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	mutex.RLock()
	defer mutex.RUnlock()
	return logger
}

// SetLogger replaces the logger and returns the previous one so that callers
// (mostly tests) can restore it.
func SetLogger(l *slog.Logger) *slog.Logger {
	mutex.Lock()
	defer mutex.Unlock()
	prev := logger
	logger = l
	return prev
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// Deprecated logs a deprecation notice for the accessor old, which has been
// superseded by replacement. Each accessor is reported once per process.
func Deprecated(old, replacement string) {
	if _, seen := reported.LoadOrStore(old, true); seen {
		return
	}
	Logger().Warn("deprecated accessor", "use", replacement, "instead_of", old)
}

var reported sync.Map
