package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	executionIDKey ctxKey = iota
	actionRefKey
	ruleNameKey
)

// WithExecutionID returns a context with the execution ID set.
func WithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionIDKey, id)
}

// WithActionRef returns a context with the action ref set.
func WithActionRef(ctx context.Context, ref string) context.Context {
	return context.WithValue(ctx, actionRefKey, ref)
}

// WithRuleName returns a context with the triage rule name set.
func WithRuleName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ruleNameKey, name)
}

// ExecutionID extracts the execution ID from the context, or "" if absent.
func ExecutionID(ctx context.Context) string {
	v, _ := ctx.Value(executionIDKey).(string)
	return v
}

// ActionRef extracts the action ref from the context, or "" if absent.
func ActionRef(ctx context.Context) string {
	v, _ := ctx.Value(actionRefKey).(string)
	return v
}

// RuleName extracts the triage rule name from the context, or "" if absent.
func RuleName(ctx context.Context) string {
	v, _ := ctx.Value(ruleNameKey).(string)
	return v
}

// WithExecution sets the execution correlation IDs on the context at once.
func WithExecution(ctx context.Context, executionID, actionRef string) context.Context {
	ctx = WithExecutionID(ctx, executionID)
	ctx = WithActionRef(ctx, actionRef)
	return ctx
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if exID := ExecutionID(ctx); exID != "" {
		logger = logger.With(slog.String("execution_id", exID))
	}
	if ref := ActionRef(ctx); ref != "" {
		logger = logger.With(slog.String("action_ref", ref))
	}
	if rule := RuleName(ctx); rule != "" {
		logger = logger.With(slog.String("rule", rule))
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := ExecutionID(ctx); v != "" {
		r.AddAttrs(slog.String("execution_id", v))
	}
	if v := ActionRef(ctx); v != "" {
		r.AddAttrs(slog.String("action_ref", v))
	}
	if v := RuleName(ctx); v != "" {
		r.AddAttrs(slog.String("rule", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
