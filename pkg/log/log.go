// Package log configures the process-wide slog logger shared by the
// sqlcron processes.
package log

import (
	"log/slog"
	"os"
)

// Setup installs a text logger on stderr at the given level. Unknown level
// names fall back to info.
func Setup(logLevel string) {
	level := slog.LevelInfo

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// WithModule scopes the default logger to one subsystem. Every package logs
// through a module-scoped logger so lines can be filtered per subsystem.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
