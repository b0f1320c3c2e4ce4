package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry records spans and metrics in memory so tests can assert on
// instrumentation without a collector.
type TestTelemetry struct {
	*Telemetry

	Recorder *tracetest.SpanRecorder
	Reader   *sdkmetric.ManualReader
}

// NewTestTelemetry builds a Telemetry whose providers write to in-memory
// recorders instead of OTLP exporters.
func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	recorder := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	return &TestTelemetry{
		Telemetry: &Telemetry{cfg: cfg, traces: tp, meters: mp},
		Recorder:  recorder,
		Reader:    reader,
	}
}

// Collect drains the current metric state from the manual reader.
func (t *TestTelemetry) Collect(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := t.Reader.Collect(ctx, &rm)
	return rm, err
}

// SpanByName returns the first ended span with the given name, or nil.
func (t *TestTelemetry) SpanByName(name string) trace.ReadOnlySpan {
	for _, span := range t.Recorder.Ended() {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

// RequireSpan fails the test unless a span with the given name has ended.
func (t *TestTelemetry) RequireSpan(tb testing.TB, name string) trace.ReadOnlySpan {
	tb.Helper()
	span := t.SpanByName(name)
	if span == nil {
		ended := t.Recorder.Ended()
		names := make([]string, len(ended))
		for i, s := range ended {
			names[i] = s.Name()
		}
		tb.Fatalf("span %q not recorded, have %v", name, names)
	}
	return span
}

// AssertSpanAttribute checks that the named span carries the attribute.
func (t *TestTelemetry) AssertSpanAttribute(tb testing.TB, spanName string, want attribute.KeyValue) {
	tb.Helper()
	span := t.RequireSpan(tb, spanName)
	for _, attr := range span.Attributes() {
		if attr.Key != want.Key {
			continue
		}
		if attr.Value.Emit() != want.Value.Emit() {
			tb.Errorf("span %q attribute %s: got %s, want %s",
				spanName, want.Key, attr.Value.Emit(), want.Value.Emit())
		}
		return
	}
	tb.Errorf("span %q missing attribute %s", spanName, want.Key)
}
