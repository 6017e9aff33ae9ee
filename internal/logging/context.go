package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	workflowKey ctxKey = iota
	executionIDKey
	taskRefKey
	requestIDKey
)

// correlationFields lists the context keys copied into log records, in the
// order their attributes are emitted.
var correlationFields = []struct {
	key  ctxKey
	attr string
}{
	{requestIDKey, "request_id"},
	{workflowKey, "workflow"},
	{executionIDKey, "execution_id"},
	{taskRefKey, "task_ref"},
}

// WithWorkflow returns a context carrying the workflow definition name.
func WithWorkflow(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, workflowKey, name)
}

// WithExecutionID returns a context carrying the execution (workflow instance) id.
func WithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, executionIDKey, id)
}

// WithTaskRef returns a context carrying a task reference name.
func WithTaskRef(ctx context.Context, ref string) context.Context {
	return context.WithValue(ctx, taskRefKey, ref)
}

// WithRequestID returns a context carrying an HTTP or MCP request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func value(ctx context.Context, key ctxKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// Workflow returns the workflow name from the context, or "".
func Workflow(ctx context.Context) string { return value(ctx, workflowKey) }

// ExecutionID returns the execution id from the context, or "".
func ExecutionID(ctx context.Context) string { return value(ctx, executionIDKey) }

// TaskRef returns the task reference name from the context, or "".
func TaskRef(ctx context.Context) string { return value(ctx, taskRefKey) }

// RequestID returns the request id from the context, or "".
func RequestID(ctx context.Context) string { return value(ctx, requestIDKey) }

// WithGraph sets the workflow name and execution id at once. Empty values
// are left unset.
func WithGraph(ctx context.Context, workflow, executionID string) context.Context {
	if workflow != "" {
		ctx = WithWorkflow(ctx, workflow)
	}
	if executionID != "" {
		ctx = WithExecutionID(ctx, executionID)
	}
	return ctx
}

// attrs returns the non-empty correlation attributes of ctx.
func attrs(ctx context.Context) []slog.Attr {
	var out []slog.Attr
	for _, f := range correlationFields {
		if v := value(ctx, f.key); v != "" {
			out = append(out, slog.String(f.attr, v))
		}
	}
	return out
}

// LogWith returns a logger enriched with the correlation values of ctx.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range attrs(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler and adds the correlation values
// of the record's context. Use logger.InfoContext(ctx, ...) so they appear.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps inner.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if extra := attrs(ctx); len(extra) > 0 {
		r.AddAttrs(extra...)
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(as []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(as)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
