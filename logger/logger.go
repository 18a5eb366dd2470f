// Package logger builds the structured logger used by the worker and the
// server.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	// Output defaults to stderr.
	Output io.Writer
	// NoColor disables colors in console output.
	NoColor bool
}

// New creates a logger. Unknown levels log at info, unknown formats as
// console.
func New(config Config) *slog.Logger {
	level := parseLevel(config.Level)
	w := config.Output
	if w == nil {
		w = os.Stderr
	}
	var handler slog.Handler
	switch strings.ToLower(config.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.DateTime,
			NoColor:    config.NoColor,
		})
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
