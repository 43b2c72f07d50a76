package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger so components share one handler and level.
type Logger struct {
	*slog.Logger
}

// New creates a JSON logger on stdout at the named level ("debug", "info", "warn", "error").
func New(level string) *Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter is New with an explicit destination; tests point it at a buffer.
func NewWithWriter(w io.Writer, level string) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return &Logger{Logger: slog.New(handler)}
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
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

// With returns a child logger carrying the given attributes.
func (l *Logger) With(args ...any) *Logger {
	if l == nil || l.Logger == nil {
		return Default().With(args...)
	}
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a logger with default settings
func Default() *Logger {
	return New("info")
}

// OrDefault returns l, or a default logger when l is nil.
func OrDefault(l *Logger) *Logger {
	if l == nil {
		return Default()
	}
	return l
}
