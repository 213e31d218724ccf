package logging

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

// Process-wide structured logger. Starts as an info-level text handler on stderr.
var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(New("text", slog.LevelInfo, os.Stderr))
}

// L returns the current global logger.
func L() *slog.Logger { return logger.Load() }

// Set replaces the global logger. Nil is ignored.
func Set(l *slog.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

// New creates a logger with the given format ("text" or "json"), level and
// writer (stderr when nil).
func New(format string, level slog.Leveler, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch format {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// ParseLevel maps debug|info|warn|error to a slog level; anything else is info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }
