// Package logging builds the JSON loggers shared by the api and worker
// binaries.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New returns a JSON logger on stdout tagged with the emitting service.
func New(service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler).With("service", service)
}

// ForItem scopes a logger to one garment's pipeline run so every line it
// emits carries the owning user and record ids.
func ForItem(logger *slog.Logger, userID, itemID string) *slog.Logger {
	return logger.With("user_id", userID, "item_id", itemID)
}

// ParseLevel maps a configured level name onto slog, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
