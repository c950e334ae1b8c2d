package testutil

import (
	"io"
	"log/slog"
)

// QuietLogger returns a logger that discards everything. Engine tests pass
// it so solve-phase logging does not drown test output.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
