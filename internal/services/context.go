package services

import "context"

// contextKey namespaces the string values this package stores on a context.
type contextKey struct{ name string }

var (
	batchIDKey   = &contextKey{"batch_id"}
	taskIDKey    = &contextKey{"task_id"}
	stageKey     = &contextKey{"stage"}
	requestIDKey = &contextKey{"request_id"}
)

func withValue(ctx context.Context, key *contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func valueOf(ctx context.Context, key *contextKey) (string, bool) {
	v, _ := ctx.Value(key).(string)
	return v, v != ""
}

// WithBatchID tags ctx with the batch being operated on. Empty ids leave ctx
// unchanged.
func WithBatchID(ctx context.Context, id string) context.Context {
	return withValue(ctx, batchIDKey, id)
}

func BatchIDFromContext(ctx context.Context) (string, bool) { return valueOf(ctx, batchIDKey) }

// WithTaskID tags ctx with the task a worker is processing.
func WithTaskID(ctx context.Context, id string) context.Context {
	return withValue(ctx, taskIDKey, id)
}

func TaskIDFromContext(ctx context.Context) (string, bool) { return valueOf(ctx, taskIDKey) }

// WithStage records the pipeline stage ("extract" or "packaging").
func WithStage(ctx context.Context, stage string) context.Context {
	return withValue(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) { return valueOf(ctx, stageKey) }

// WithRequestID carries the HTTP correlation id into handler logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) { return valueOf(ctx, requestIDKey) }
