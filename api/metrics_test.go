package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})
	return recorder
}

func spanAttributes(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	return attrs
}

func TestTaskRequestMetricsRecordsSpan(t *testing.T) {
	recorder := setupSpanRecorder(t)
	logger, hook := test.NewNullLogger()

	metrics, spanCtx := newTaskRequestMetrics(context.Background(), logger)
	if spanCtx == nil {
		t.Fatal("expected span context")
	}
	metrics.ObserveAuth(2 * time.Millisecond)
	metrics.ObserveFetch(5 * time.Millisecond)
	metrics.ObserveEncode(time.Millisecond)
	metrics.SetTasksReturned(7)
	metrics.SetBoardLoaded(true)
	metrics.Log(http.StatusOK, nil)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != tasksSpanName {
		t.Fatalf("unexpected span name %q", span.Name())
	}
	if span.Status().Code != codes.Ok {
		t.Fatalf("expected ok status, got %v", span.Status())
	}
	attrs := spanAttributes(span)
	if got := attrs["http.status_code"].AsInt64(); got != http.StatusOK {
		t.Fatalf("unexpected status attribute %d", got)
	}
	if got := attrs["board.tasks.tasks_returned"].AsInt64(); got != 7 {
		t.Fatalf("unexpected tasks_returned %d", got)
	}
	if !attrs["board.tasks.board_loaded"].AsBool() {
		t.Fatal("board_loaded attribute not set")
	}
	if attrs["board.tasks.auth_ms"].AsFloat64() <= 0 {
		t.Fatal("auth_ms attribute not recorded")
	}

	entries := hook.AllEntries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].Data["event.name"] != tasksEventName {
		t.Fatalf("unexpected event name %v", entries[0].Data["event.name"])
	}
}

func TestTaskRequestMetricsErrorStage(t *testing.T) {
	recorder := setupSpanRecorder(t)
	logger, hook := test.NewNullLogger()

	metrics, _ := newTaskRequestMetrics(context.Background(), logger)
	metrics.SetErrorStage("storage")
	metrics.Log(http.StatusInternalServerError, errors.New("table unavailable"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Fatalf("expected error status, got %v", spans[0].Status())
	}
	attrs := spanAttributes(spans[0])
	if got := attrs["board.tasks.error_stage"].AsString(); got != "storage" {
		t.Fatalf("unexpected error stage %q", got)
	}

	entries := hook.AllEntries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].Data["error"] != "table unavailable" {
		t.Fatalf("error field not logged: %v", entries[0].Data)
	}
}
