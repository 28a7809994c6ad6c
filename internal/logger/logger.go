// Package logger holds the process-wide structured logger shared by the pool
// and the poolctl binary.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// L is the global logger instance. It's initialized to discard all output by default.
// Call Init() to enable logging.
var L = slog.New(slog.DiscardHandler)

// EnvLogAlloc enables allocator debug logging to stderr when set to any
// non-empty value.
const EnvLogAlloc = "FIXEDPOOL_LOG_ALLOC"

// Options configures the logger initialization.
type Options struct {
	Enabled bool       // If false, all logging is discarded
	Writer  io.Writer  // Destination. Default: os.Stderr
	Level   slog.Level // Minimum log level. The zero value is LevelInfo
	JSON    bool       // Emit JSON records instead of key=value text
}

// Init configures logging. Call from main() before any log calls.
// If opts.Enabled is false, all log output is discarded.
func Init(opts Options) {
	L = New(opts)
}

// New builds a logger from opts without touching L.
func New(opts Options) *slog.Logger {
	if !opts.Enabled {
		return slog.New(slog.DiscardHandler)
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: opts.Level}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// FromEnv returns a debug-level stderr logger when EnvLogAlloc is set and L otherwise.
func FromEnv() *slog.Logger {
	if os.Getenv(EnvLogAlloc) != "" {
		return New(Options{Enabled: true, Level: slog.LevelDebug})
	}
	return L
}

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) { L.Debug(msg, args...) }

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) { L.Info(msg, args...) }
