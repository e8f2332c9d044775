// Package logger provides adapters for the logging interface.
package logger

import (
	"context"
	"maps"
)

// Logger defines the logging interface used throughout the application.
// External loggers that implement these methods can be wrapped with ZapAdapter.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]any)
	Debug(ctx context.Context, msg string, fields map[string]any)
	Warn(ctx context.Context, msg string, fields map[string]any)
	Error(ctx context.Context, msg string, err error, fields map[string]any)
}

// ZapAdapter adapts a Logger to the application's logging interface.
// It attaches a fixed set of fields, such as the harvest run, to every entry
// and drops debug entries unless verbose output was requested.
type ZapAdapter struct {
	log     Logger
	fields  map[string]any
	verbose bool
}

// Option configures a ZapAdapter.
type Option func(*ZapAdapter)

// WithVerbose enables debug entries.
func WithVerbose(verbose bool) Option {
	return func(a *ZapAdapter) {
		a.verbose = verbose
	}
}

// WithFields attaches fields to every entry.
func WithFields(fields map[string]any) Option {
	return func(a *ZapAdapter) {
		a.fields = mergeFields(a.fields, fields)
	}
}

// NewZapAdapter creates a new ZapAdapter wrapping the given logger.
func NewZapAdapter(log Logger, opts ...Option) *ZapAdapter {
	a := &ZapAdapter{log: log}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// With returns a derived adapter that adds fields to every entry.
func (a *ZapAdapter) With(fields map[string]any) *ZapAdapter {
	return &ZapAdapter{
		log:     a.log,
		fields:  mergeFields(a.fields, fields),
		verbose: a.verbose,
	}
}

// Info logs an info message.
func (a *ZapAdapter) Info(ctx context.Context, msg string, fields map[string]any) {
	a.log.Info(ctx, msg, mergeFields(a.fields, fields))
}

// Debug logs a debug message when verbose output is enabled.
func (a *ZapAdapter) Debug(ctx context.Context, msg string, fields map[string]any) {
	if !a.verbose {
		return
	}
	a.log.Debug(ctx, msg, mergeFields(a.fields, fields))
}

// Warn logs a warning message.
func (a *ZapAdapter) Warn(ctx context.Context, msg string, fields map[string]any) {
	a.log.Warn(ctx, msg, mergeFields(a.fields, fields))
}

// Error logs an error message.
func (a *ZapAdapter) Error(ctx context.Context, msg string, err error, fields map[string]any) {
	a.log.Error(ctx, msg, err, mergeFields(a.fields, fields))
}

// mergeFields returns base overlaid with extra. Entry fields win over base fields.
func mergeFields(base, extra map[string]any) map[string]any {
	if len(base) == 0 {
		return extra
	}
	merged := make(map[string]any, len(base)+len(extra))
	maps.Copy(merged, base)
	maps.Copy(merged, extra)
	return merged
}
