package util

import (
	"io"
	"log/slog"
)

// SafeCloseFunc returns a deferred-friendly closer that logs close errors
// with the given resource name instead of dropping them.
func SafeCloseFunc(c io.Closer, name string) func() {
	return func() {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close resource", "resource", name, "error", err)
		}
	}
}
