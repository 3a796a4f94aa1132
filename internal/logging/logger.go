// Package logging builds the process-wide structured logger for the ride
// lifecycle service.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the JSON logger every component of the service logs
// through. slog keeps the standard library feel while emitting structured
// records a log backend can index by ride_id.
func NewLogger(level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     levelFromString(level),
		AddSource: true,
	}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

func levelFromString(level string) slog.Leveler {
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
