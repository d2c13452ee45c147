package main

import (
	"io"
	"log/slog"
)

// testLogger returns a logger that discards output, for tests that need a
// non-nil *slog.Logger but don't care about its contents.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
