package observe

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/lmittmann/tint"
)

// Logger is a minimal structured logging interface.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: logging is best-effort and must not panic.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// With returns a logger that adds fields to every entry.
	With(fields ...Field) Logger
}

// Field is a structured log field.
type Field struct {
	Key   string
	Value any
}

// F is shorthand for Field{Key: key, Value: value}.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// ParseLevel parses a level name, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch s {
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

// NewLogger creates a logger writing to w in the configured format.
// A disabled config yields a no-op logger.
func NewLogger(cfg LoggingConfig, w io.Writer) Logger {
	if !cfg.Enabled {
		return NopLogger()
	}
	level := ParseLevel(cfg.Level)

	var h slog.Handler
	switch cfg.Format {
	case "text":
		h = tint.NewHandler(w, &tint.Options{
			Level:       level,
			TimeFormat:  time.RFC3339,
			ReplaceAttr: redact,
		})
	default:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: redact,
		})
	}
	return &slogLogger{l: slog.New(h)}
}

// NewSlogLogger adapts an existing slog.Logger.
func NewSlogLogger(l *slog.Logger) Logger {
	return &slogLogger{l: l}
}

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelDebug, msg, fields)
}

func (s *slogLogger) Info(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelInfo, msg, fields)
}

func (s *slogLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelWarn, msg, fields)
}

func (s *slogLogger) Error(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelError, msg, fields)
}

func (s *slogLogger) With(fields ...Field) Logger {
	args := make([]any, 0, len(fields))
	for _, f := range fields {
		args = append(args, attr(f))
	}
	return &slogLogger{l: s.l.With(args...)}
}

func (s *slogLogger) log(ctx context.Context, level slog.Level, msg string, fields []Field) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.l.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, attr(f))
	}
	s.l.LogAttrs(ctx, level, msg, attrs...)
}

func attr(f Field) slog.Attr {
	if err, ok := f.Value.(error); ok && err != nil {
		return slog.String(f.Key, err.Error())
	}
	return slog.Any(f.Key, f.Value)
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if slices.Contains(RedactedFields, a.Key) {
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...Field) {}
func (nopLogger) Info(context.Context, string, ...Field)  {}
func (nopLogger) Warn(context.Context, string, ...Field)  {}
func (nopLogger) Error(context.Context, string, ...Field) {}
func (n nopLogger) With(...Field) Logger                  { return n }
