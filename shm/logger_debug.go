//go:build shm_debug

package shm

import (
	"log/slog"
	"os"
)

var defaultLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

// SetLogger redirects the package's debug logger. Only takes effect when
// the shm_debug build tag is set; otherwise it is a documented no-op.
func SetLogger(l *slog.Logger) {
	defaultLogger = l
}

// debugf logs a message at Debug level about the queue engine's internal
// bookkeeping (resizes, re-derivation, doubling).
func debugf(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}
