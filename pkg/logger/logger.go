// Package logger builds the process-wide slog logger.
// Every component takes a *slog.Logger; this package only decides where the
// records go and how they are rendered.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the output encoding.
type Format string

const (
	// FormatJSON renders one JSON object per record. Production default.
	FormatJSON Format = "json"
	// FormatText renders human-readable key=value records.
	FormatText Format = "text"
)

// Options configures the logger.
type Options struct {
	// Output is where records are written. Defaults to os.Stdout.
	Output io.Writer

	// Level is the minimum level ("debug", "info", "warn", "error").
	Level string

	// Format is the output encoding.
	Format Format

	// AddSource attaches the file:line of the logging call.
	AddSource bool

	// Service is attached to every record as the "service" attribute.
	Service string
}

// DefaultOptions returns sensible defaults for the logger.
func DefaultOptions() Options {
	return Options{
		Output: os.Stdout,
		Level:  "info",
		Format: FormatJSON,
	}
}

// ParseLevel parses a level string, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// New creates a configured *slog.Logger.
func New(opts Options) *slog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     ParseLevel(opts.Level),
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	switch opts.Format {
	case FormatText:
		handler = slog.NewTextHandler(opts.Output, handlerOpts)
	default:
		handler = slog.NewJSONHandler(opts.Output, handlerOpts)
	}

	log := slog.New(handler)
	if opts.Service != "" {
		log = log.With("service", opts.Service)
	}
	return log
}

// Default creates a logger with default options.
func Default() *slog.Logger {
	return New(DefaultOptions())
}

type contextKey struct{}

// WithContext stores the logger in the context.
func WithContext(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, log)
}

// FromContext returns the logger stored in the context, or the default
// logger when none is stored.
func FromContext(ctx context.Context) *slog.Logger {
	if log, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
		return log
	}
	return slog.Default()
}
