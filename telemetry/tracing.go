package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Event is one point-in-time occurrence worth a span: a task transition, a
// RunOnce invocation, a tool call. TaskID, State and Meta are recorded as
// span attributes; a non-nil Err sets the span's error status and is
// recorded as an error event.
type Event struct {
	Name   string
	TaskID string
	State  string
	Err    error
	Meta   map[string]any
}

// Tracer emits one OpenTelemetry span per Event, started and ended
// immediately since every Event models an instant rather than a duration
// already tracked elsewhere (Metrics.RecordRunOnce owns the duration
// histogram).
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer wraps tracer. Passing nil uses otel.Tracer("loomwork").
func NewTracer(tracer trace.Tracer) *Tracer {
	if tracer == nil {
		tracer = otel.Tracer("loomwork")
	}
	return &Tracer{tracer: tracer}
}

// Emit records ev as a span.
func (t *Tracer) Emit(ctx context.Context, ev Event) {
	_, span := t.tracer.Start(ctx, ev.Name)
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.String("loomwork.task_id", ev.TaskID),
		attribute.String("loomwork.state", ev.State),
	}
	for k, v := range ev.Meta {
		attrs = append(attrs, toAttribute(k, v))
	}
	span.SetAttributes(attrs...)

	if ev.Err != nil {
		span.SetStatus(codes.Error, ev.Err.Error())
		span.RecordError(ev.Err)
	}
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}

// Flush force-flushes the global tracer provider, if it supports it (the
// SDK provider does; a no-op provider silently does nothing).
func Flush(ctx context.Context) error {
	tp := otel.GetTracerProvider()
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := tp.(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}
