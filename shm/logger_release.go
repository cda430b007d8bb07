//go:build !shm_debug

package shm

import "log/slog"

// SetLogger redirects the package's debug logger.
// In release builds this does nothing; the signature is kept identical so
// embedding code compiles unchanged under either build tag.
func SetLogger(l *slog.Logger) {}

// debugf is a no-op in release builds. The compiler inlines and removes
// calls to it, so the hot push/pop path never pays for logging.
func debugf(msg string, args ...any) {}
