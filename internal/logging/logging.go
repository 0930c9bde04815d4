// Package logging configures the process-wide structured logger.
package logging

import (
	"log/slog"
	"os"
)

// Init sets up a JSON slog handler as the default logger. Development
// runs get debug level, everything else info.
func Init(development bool) *slog.Logger {
	level := slog.LevelInfo
	if development {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ForService returns a child logger tagged with the component name.
func ForService(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("service", name)
}
