package testutil

import "log/slog"

// DiscardLogger returns a slog.Logger that drops all output. Prefer
// log.NewNop() in packages that already import internal/log; this
// exists for tests that only need slog.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
