package test

import (
	"context"

	"github.com/dogmatiq/completion/internal/telemetry"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// Telemetry is a telemetry provider that captures the metrics and spans it
// records so that tests can make assertions about them.
type Telemetry struct {
	*telemetry.Provider

	Metrics *sdkmetric.ManualReader
	Spans   *tracetest.SpanRecorder
}

// NewTelemetry returns a new [Telemetry] that logs to the test's log.
func NewTelemetry(t TestingT) *Telemetry {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	spans := tracetest.NewSpanRecorder()

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))

	t.Cleanup(func() {
		ctx := context.Background()
		_ = mp.Shutdown(ctx)
		_ = tp.Shutdown(ctx)
	})

	return &Telemetry{
		Provider: &telemetry.Provider{
			TracerProvider: tp,
			MeterProvider:  mp,
			Logger:         NewLogger(t),
		},
		Metrics: reader,
		Spans:   spans,
	}
}

// Sum returns the total of all data points of the named integer counter.
func (tel *Telemetry) Sum(t FailerT, name string) int64 {
	t.Helper()

	var total int64
	for _, m := range tel.collect(t, name) {
		if data, ok := m.Data.(metricdata.Sum[int64]); ok {
			for _, dp := range data.DataPoints {
				total += dp.Value
			}
		}
	}

	return total
}

// Count returns the number of values recorded by the named histogram.
func (tel *Telemetry) Count(t FailerT, name string) uint64 {
	t.Helper()

	var total uint64
	for _, m := range tel.collect(t, name) {
		if data, ok := m.Data.(metricdata.Histogram[float64]); ok {
			for _, dp := range data.DataPoints {
				total += dp.Count
			}
		}
	}

	return total
}

func (tel *Telemetry) collect(t FailerT, name string) []metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := tel.Metrics.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}

	var matches []metricdata.Metrics
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				matches = append(matches, m)
			}
		}
	}

	return matches
}
