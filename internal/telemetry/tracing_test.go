package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerDisabledWithoutEndpoint(t *testing.T) {
	tp, err := InitTracer(context.Background(), Config{ServiceName: "causal"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if tp != nil {
		t.Fatal("expected no provider without an endpoint")
	}
	if err := Shutdown(context.Background(), nil); err != nil {
		t.Fatalf("shutdown of nil provider: %v", err)
	}
}

func TestStartAndEndSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := StartSpan(context.Background(), "causal.effect", attribute.String("graph_id", "g1"))
	EndSpan(span, errors.New("not identifiable"))

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	s := ended[0]
	if s.Name() != "causal.effect" {
		t.Fatalf("unexpected span name %q", s.Name())
	}
	if s.Status().Code != codes.Error {
		t.Fatalf("expected error status, got %v", s.Status().Code)
	}
	if len(s.Attributes()) != 1 || s.Attributes()[0].Value.AsString() != "g1" {
		t.Fatalf("unexpected attributes %v", s.Attributes())
	}
}
