// Package logging provides a configured slog logger for cadabra.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options configures the default slog logger used by cadabra.
type Options struct {
	// Level is one of debug, info, warn, error; empty means info.
	Level string
	// Writer directs log output; defaults to os.Stderr when nil.
	Writer io.Writer
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// New constructs a slog.Logger with cadabra defaults. An unknown level name
// falls back to info.
func New(opts Options) *slog.Logger {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}
	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// Logger is a generic logging interface that abstracts slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// SlogAdapter adapts *slog.Logger to the Logger interface.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) {
	s.logger.Debug(msg, args...)
}

// Info logs an info message.
func (s *SlogAdapter) Info(msg string, args ...any) {
	s.logger.Info(msg, args...)
}

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) {
	s.logger.Warn(msg, args...)
}

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) {
	s.logger.Error(msg, args...)
}

// With returns a new Logger with the given attributes.
func (s *SlogAdapter) With(args ...any) Logger {
	return &SlogAdapter{logger: s.logger.With(args...)}
}

// Ensure SlogAdapter implements Logger interface
var _ Logger = (*SlogAdapter)(nil)

// NopLogger is a logger that discards all output.
type NopLogger struct{}

// NewNopLogger creates a new NopLogger.
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

// Debug is a no-op.
func (n *NopLogger) Debug(_ string, _ ...any) {}

// Info is a no-op.
func (n *NopLogger) Info(_ string, _ ...any) {}

// Warn is a no-op.
func (n *NopLogger) Warn(_ string, _ ...any) {}

// Error is a no-op.
func (n *NopLogger) Error(_ string, _ ...any) {}

// With returns the same NopLogger.
func (n *NopLogger) With(_ ...any) Logger {
	return n
}

// Ensure NopLogger implements Logger interface
var _ Logger = (*NopLogger)(nil)
