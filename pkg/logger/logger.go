// Package logger configures the process-wide structured logger.
package logger

import (
	"log/slog"
	"os"
)

// Setup configures the global logger based on the environment and sets it
// as the default logger returned by slog.Default().
func Setup(env string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	var handler slog.Handler
	if env == "production" {
		// JSON for machine parsing (log aggregators).
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}
