// Package logging builds the structured loggers shared by the api and
// worker binaries.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// NewJSONLogger returns a JSON slog logger writing to w. Every record
// carries the service name so the api and worker streams stay
// attributable once shipped to a common sink.
func NewJSONLogger(w io.Writer, service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler).With("service", service)
}

func parseLevel(level string) slog.Level {
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
