// Package testutil provides shared helpers for package tests. The store is
// an embedded SQLite file, so tests need no external infrastructure — a
// temp directory per test is enough.
package testutil

import (
	"log/slog"
	"os"
)

// TestLogger returns a logger configured for test output (warns only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
