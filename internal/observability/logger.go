// Package observability holds the process logger and HTTP metrics.
package observability

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process-wide JSON slog logger. LOG_LEVEL selects the
// minimum level; anything unrecognized falls back to info.
func NewLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
