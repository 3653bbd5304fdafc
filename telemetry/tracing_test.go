package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func attributeMap(attrs []attribute.KeyValue) map[string]any {
	m := make(map[string]any)
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}

func TestTracer_Emit_RecordsSpanWithAttributes(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tracer := NewTracer(tp.Tracer("test"))
	tracer.Emit(context.Background(), Event{
		Name:   "task_transition",
		TaskID: "t1",
		State:  "RUNNING",
		Meta:   map[string]any{"event": "PLANNED"},
	})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "task_transition" {
		t.Errorf("span name = %q, want %q", span.Name, "task_transition")
	}

	attrs := attributeMap(span.Attributes)
	if got := attrs["loomwork.task_id"]; got != "t1" {
		t.Errorf("task_id = %v, want %q", got, "t1")
	}
	if got := attrs["loomwork.state"]; got != "RUNNING" {
		t.Errorf("state = %v, want %q", got, "RUNNING")
	}
	if got := attrs["event"]; got != "PLANNED" {
		t.Errorf("event = %v, want %q", got, "PLANNED")
	}
}

func TestTracer_Emit_SetsErrorStatus(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tracer := NewTracer(tp.Tracer("test"))
	tracer.Emit(context.Background(), Event{Name: "task_failed", TaskID: "t1", Err: errors.New("boom")})

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Description != "boom" {
		t.Errorf("status description = %q, want %q", spans[0].Status.Description, "boom")
	}
}

func TestNewTracer_NilUsesGlobalTracer(t *testing.T) {
	tracer := NewTracer(nil)
	if tracer.tracer == nil {
		t.Fatal("expected a default tracer when nil is passed")
	}
	_ = otel.GetTracerProvider()
}
