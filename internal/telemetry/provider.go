package telemetry

import (
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// Provider provides Recorder instances scoped to particular subsystems.
//
// The zero value of a *Provider is equivalent to a provider configured with
// no-op tracer and meter providers and the default logger.
type Provider struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Logger         *slog.Logger
	Attrs          []Attr
}

// Recorder records traces, metrics and logs for a particular subsystem.
type Recorder struct {
	tracer trace.Tracer
	meter  metric.Meter
	logger *slog.Logger
	attrs  attribute.Set

	errorCount Instrument[int64]
}

// Recorder returns a new Recorder instance for the named subsystem.
func (p *Provider) Recorder(name string, attrs ...Attr) *Recorder {
	const pkg = "github.com/dogmatiq/completion/"

	var (
		tracerProvider trace.TracerProvider
		meterProvider  metric.MeterProvider
		logger         *slog.Logger
	)

	if p != nil {
		tracerProvider = p.TracerProvider
		meterProvider = p.MeterProvider
		logger = p.Logger

		attrs = append(
			slices.Clone(p.Attrs),
			attrs...,
		)
	}

	if tracerProvider == nil {
		tracerProvider = nooptrace.NewTracerProvider()
	}

	if meterProvider == nil {
		meterProvider = noopmetric.NewMeterProvider()
	}

	if logger == nil {
		logger = slog.Default()
	}

	kvs := asAttrKeyValues(attrs)

	r := &Recorder{
		tracer: tracerProvider.Tracer(
			pkg+name,
			tracerVersion,
			trace.WithInstrumentationAttributes(kvs...),
		),
		meter: meterProvider.Meter(
			pkg+name,
			meterVersion,
			metric.WithInstrumentationAttributes(kvs...),
		),
		logger: logger.With(
			slog.String("subsystem", name),
		).With(asLogArgs(attrs)...),
		attrs: attribute.NewSet(kvs...),
	}

	r.errorCount = r.Counter("errors", "{error}", "The number of errors that have occurred.")

	return r
}
