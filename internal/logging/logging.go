// Package logging provides structured logging using Go's slog package.
//
// Logs always go to a caller-supplied writer, normally stderr: stdout
// carries the host protocol when running as a preprocessor.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidLevel and ErrInvalidFormat report unknown config values.
var (
	ErrInvalidLevel  = errors.New("invalid log level")
	ErrInvalidFormat = errors.New("invalid log format")
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

// BuildIDKey is the context key for build ids.
const BuildIDKey ContextKey = "build_id"

// Level represents a log level.
type Level int

const (
	// LevelDebug is for debug messages.
	LevelDebug Level = iota
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// ParseLevel converts a level name. Empty means warn, so a preprocessor
// run stays quiet unless something needs attention.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "", "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return 0, fmt.Errorf("%w: %q (want debug, info, warn or error)", ErrInvalidLevel, s)
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelError:
		return slog.LevelError
	}
	return slog.LevelWarn
}

// Format represents a log output format.
type Format int

const (
	// FormatText outputs logs in human-readable text format.
	FormatText Format = iota
	// FormatJSON outputs logs in JSON format.
	FormatJSON
)

// ParseFormat converts a format name. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return 0, fmt.Errorf("%w: %q (want text or json)", ErrInvalidFormat, s)
}

// New creates a logger writing to w.
func New(w io.Writer, level Level, format Format) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level.slog(),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize timestamp format
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewBuildID returns a fresh identifier for one preprocessing run.
func NewBuildID() string {
	return uuid.NewString()
}

// WithBuildID adds a build id to the context.
func WithBuildID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, BuildIDKey, id)
}

// BuildID retrieves the build id from the context.
func BuildID(ctx context.Context) string {
	if id, ok := ctx.Value(BuildIDKey).(string); ok {
		return id
	}
	return ""
}

// FromContext returns logger with the context's build id attached.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := BuildID(ctx); id != "" {
		return logger.With(string(BuildIDKey), id)
	}
	return logger
}
