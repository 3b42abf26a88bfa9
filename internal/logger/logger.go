// Package logger builds the process-wide *slog.Logger from the logging config.
package logger

import (
	"io"
	"log/slog"
	"strings"
)

func New(w io.Writer, lvl string, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(lvl),
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
