// Package testutil provides small shared helpers for collector package
// tests.
package testutil

import (
	"io"
	"log/slog"
)

// NewTestLogger returns a logger that discards all output.
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
