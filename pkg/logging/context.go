package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const (
	snapshotKeyCtxKey ctxKey = iota
	serviceNameCtxKey
)

// Field names shared by every log line that carries pipeline context.
const (
	FieldTraceID     = "trace_id"
	FieldSnapshotKey = "snapshot_key"
	FieldServiceName = "service_name"
)

// WithSnapshotKey tags ctx with the identity key of the snapshot currently
// moving through the pipeline.
func WithSnapshotKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, snapshotKeyCtxKey, key)
}

func WithServiceName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, serviceNameCtxKey, name)
}

func SnapshotKey(ctx context.Context) string {
	key, _ := ctx.Value(snapshotKeyCtxKey).(string)
	return key
}

func ServiceName(ctx context.Context) string {
	name, _ := ctx.Value(serviceNameCtxKey).(string)
	return name
}

// ContextFields flattens the context-carried values into key-value pairs for
// the sugared logger. The trace id comes from the active span, so consumer
// log lines join the producer's trace without manual plumbing.
func ContextFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 6)

	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields = append(fields, FieldTraceID, sc.TraceID().String())
	}

	if key := SnapshotKey(ctx); key != "" {
		fields = append(fields, FieldSnapshotKey, key)
	}

	if name := ServiceName(ctx); name != "" {
		fields = append(fields, FieldServiceName, name)
	}

	return fields
}
