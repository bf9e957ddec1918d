package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newTestTracerProvider returns a TracerProvider with an in-memory exporter.
func newTestTracerProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exp
}

// captureLogs redirects the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestCorrelationID_EmptyByDefault(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}
}

func TestStartSpan_CreatesSpan(t *testing.T) {
	tp, exp := newTestTracerProvider(t)
	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	ctx, span := StartSpan(context.Background(), "delivery.speak")
	if cid := CorrelationID(ctx); len(cid) != 32 {
		t.Errorf("correlation ID = %q, want 32 hex chars", cid)
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "delivery.speak" {
		t.Fatalf("spans = %v", spans)
	}
}

func TestRunID_RoundTrip(t *testing.T) {
	if got := RunID(context.Background()); got != "" {
		t.Errorf("RunID(background) = %q, want empty", got)
	}
	ctx := WithRunID(context.Background(), "run-42")
	if got := RunID(ctx); got != "run-42" {
		t.Errorf("RunID = %q, want run-42", got)
	}
}

func TestLogger_IncludesRunAndTrace(t *testing.T) {
	tp, _ := newTestTracerProvider(t)
	buf := captureLogs(t)

	ctx, span := tp.Tracer("test").Start(WithRunID(context.Background(), "run-7"), "log-test")
	defer span.End()

	Logger(ctx).Info("phase changed")

	logged := buf.String()
	for _, want := range []string{"run_id=run-7", "trace_id=", "span_id="} {
		if !strings.Contains(logged, want) {
			t.Errorf("log output missing %q, got: %s", want, logged)
		}
	}
}

func TestLogger_Plain(t *testing.T) {
	buf := captureLogs(t)

	Logger(context.Background()).Info("idle")

	logged := buf.String()
	if strings.Contains(logged, "trace_id") || strings.Contains(logged, "run_id") {
		t.Errorf("log output should carry no correlation fields, got: %s", logged)
	}
}
