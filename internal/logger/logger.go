package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Constants for logging levels
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Environments, they choose log format
const (
	EnvDevelopment = "dev"
	EnvProduction  = "prod"
)

// Logger interface defines the logging contract
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger
}

// New returns a stderr logger: text for development, JSON for production
func New(env string, level string) (Logger, error) {
	return NewTo(os.Stderr, env, level)
}

// NewTo is like New but writes to w
func NewTo(w io.Writer, env string, level string) (Logger, error) {
	switch env {
	case EnvDevelopment:
		return NewTextLogger(w, level)
	case EnvProduction:
		return NewJSONLogger(w, level)
	default:
		return nil, fmt.Errorf("unknown environment %q", env)
	}
}

func NewTextLogger(w io.Writer, level string) (Logger, error) {
	return newLogger(w, level, func(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
		return slog.NewTextHandler(w, opts)
	})
}

func NewJSONLogger(w io.Writer, level string) (Logger, error) {
	return newLogger(w, level, func(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
		return slog.NewJSONHandler(w, opts)
	})
}

// NewNoOpLogger creates a logger that discards all log messages
func NewNoOpLogger() Logger {
	return &slogLogger{logger: slog.New(slog.DiscardHandler)}
}

func newLogger(w io.Writer, level string, handler func(io.Writer, *slog.HandlerOptions) slog.Handler) (Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   true,
		ReplaceAttr: replace,
	}

	return &slogLogger{logger: slog.New(handler(w, opts))}, nil
}
