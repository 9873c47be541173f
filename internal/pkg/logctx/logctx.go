// Package logctx carries slog attributes on a context so that every record
// logged with that context is tagged with the task it belongs to.
package logctx

import (
	"context"
	"log/slog"
	"sort"
)

const (
	KeyTask      = "task"
	KeyRun       = "run"
	KeyCommand   = "command"
	KeyOperation = "operation"
)

type ctxKey struct{}

// WithAttrs appends attrs to those already on ctx.
func WithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	existing := Attrs(ctx)
	combined := make([]slog.Attr, 0, len(existing)+len(attrs))
	combined = append(combined, existing...)
	combined = append(combined, attrs...)
	return context.WithValue(ctx, ctxKey{}, combined)
}

// WithField adds a single key/value attribute.
func WithField(ctx context.Context, key string, value any) context.Context {
	return WithAttrs(ctx, slog.Any(key, value))
}

// WithFields adds fields in key order.
func WithFields(ctx context.Context, fields map[string]any) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	attrs := make([]slog.Attr, 0, len(keys))
	for _, key := range keys {
		attrs = append(attrs, slog.Any(key, fields[key]))
	}
	return WithAttrs(ctx, attrs...)
}

// WithTask tags ctx with a task id, the dispatch run id and the command name.
func WithTask(ctx context.Context, taskID uint64, run, command string) context.Context {
	return WithAttrs(ctx,
		slog.Uint64(KeyTask, taskID),
		slog.String(KeyRun, run),
		slog.String(KeyCommand, command),
	)
}

// Attrs returns the attributes stored on ctx.
func Attrs(ctx context.Context) []slog.Attr {
	attrs, _ := ctx.Value(ctxKey{}).([]slog.Attr)
	return attrs
}

// AttrsToArgs converts attributes to arguments for InfoContext-style APIs.
func AttrsToArgs(attrs []slog.Attr) []any {
	if len(attrs) == 0 {
		return nil
	}
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return args
}

// WrapLogger returns a logger that tags every record with the attributes
// carried on its context. Wrapping an already wrapped logger is a no-op.
func WrapLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return nil
	}
	if _, ok := logger.Handler().(taskHandler); ok {
		return logger
	}
	return slog.New(taskHandler{logger.Handler()})
}

type taskHandler struct {
	slog.Handler
}

func (h taskHandler) Handle(ctx context.Context, record slog.Record) error {
	if attrs := Attrs(ctx); len(attrs) > 0 {
		record = record.Clone()
		record.AddAttrs(attrs...)
	}
	return h.Handler.Handle(ctx, record)
}

func (h taskHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return taskHandler{h.Handler.WithAttrs(attrs)}
}

func (h taskHandler) WithGroup(name string) slog.Handler {
	return taskHandler{h.Handler.WithGroup(name)}
}
