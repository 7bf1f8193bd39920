package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Config contains logger configuration options
type Config struct {
	// Level is the minimum level to log: debug, info, warn or error
	Level string
	// JSON enables JSON formatting instead of text
	JSON bool
	// Output is where logs will be written (defaults to os.Stderr)
	Output io.Writer
	// AddSource adds source code information to logs
	AddSource bool
}

func DefaultConfig() Config {
	return Config{
		Level:  "info",
		JSON:   true,
		Output: os.Stderr,
	}
}

// Logger wraps slog for structured logging
type Logger struct {
	*slog.Logger
}

var global *Logger

func parseLevel(s string) slog.Level {
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

// New creates a logger. The first logger created becomes the global one.
func New(config Config) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     parseLevel(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if config.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	l := &Logger{Logger: slog.New(handler)}
	if global == nil {
		global = l
	}
	return l
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func SetGlobal(logger *Logger) {
	global = logger
}

// GetGlobal returns the global logger, falling back to a default one.
func GetGlobal() *Logger {
	if global == nil {
		return New(DefaultConfig())
	}
	return global
}

// LogError logs an error with context information
func (l *Logger) LogError(err error, msg string, args ...any) {
	l.Error(msg, append([]any{"error", err.Error()}, args...)...)
}

func (l *Logger) WithRequestID(requestID string) *Logger {
	if requestID == "" {
		return l
	}
	return &Logger{Logger: l.With("request_id", requestID)}
}

func (l *Logger) WithUserID(userID string) *Logger {
	if userID == "" {
		return l
	}
	return &Logger{Logger: l.With("user_id", userID)}
}

// WithContext attaches the trace and span ids of the active span, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return l
	}
	return &Logger{Logger: l.With("trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())}
}

func (l *Logger) LogRequest(method, path string, status int, latency time.Duration) {
	level := slog.LevelInfo
	if status >= 500 {
		level = slog.LevelError
	} else if status >= 400 {
		level = slog.LevelWarn
	}
	l.Log(context.Background(), level, "request completed",
		"method", method,
		"path", path,
		"status", status,
		"latency_ms", latency.Milliseconds(),
	)
}
