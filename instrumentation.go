package completion

import (
	"context"
	"log/slog"
	"time"

	"github.com/dogmatiq/completion/internal/telemetry"
	"go.opentelemetry.io/otel/metric"
)

// Instrumentation records metrics and logs about the events it is attached
// to.
//
// It is attached to events explicitly using [WithInstrumentation]. A single
// Instrumentation is typically shared by all of the events of a subsystem.
type Instrumentation struct {
	rec *telemetry.Recorder

	activatedCount telemetry.Instrument[int64]
	completedCount telemetry.Instrument[int64]
	triggerCount   telemetry.Instrument[int64]
	waiterCount    telemetry.Instrument[int64]
	violationCount telemetry.Instrument[int64]
	exhaustedCount telemetry.Instrument[int64]
	waitDuration   telemetry.Instrument[float64]
}

// InstrumentationOption configures an [Instrumentation].
type InstrumentationOption func(*telemetry.Provider)

// WithMeterProvider is an [InstrumentationOption] that sets the OpenTelemetry
// meter provider used to record metrics.
func WithMeterProvider(p metric.MeterProvider) InstrumentationOption {
	if p == nil {
		panic("meter provider must not be nil")
	}

	return func(tp *telemetry.Provider) {
		tp.MeterProvider = p
	}
}

// WithLogger is an [InstrumentationOption] that sets the logger used to
// record diagnostics.
func WithLogger(l *slog.Logger) InstrumentationOption {
	if l == nil {
		panic("logger must not be nil")
	}

	return func(tp *telemetry.Provider) {
		tp.Logger = l
	}
}

// WithSubsystem is an [InstrumentationOption] that adds an attribute
// identifying the subsystem that owns the instrumented events.
func WithSubsystem(name string) InstrumentationOption {
	return func(tp *telemetry.Provider) {
		tp.Attrs = append(tp.Attrs, telemetry.String("completion.subsystem", name))
	}
}

// NewInstrumentation returns a new [Instrumentation].
func NewInstrumentation(options ...InstrumentationOption) *Instrumentation {
	p := &telemetry.Provider{}
	for _, opt := range options {
		opt(p)
	}

	rec := p.Recorder("completion")

	return &Instrumentation{
		rec: rec,
		activatedCount: rec.Counter(
			"completion.events.activated",
			"{event}",
			"The number of events that have become active.",
		),
		completedCount: rec.Counter(
			"completion.events.completed",
			"{event}",
			"The number of events that have become done.",
		),
		triggerCount: rec.Counter(
			"completion.sets.triggered",
			"{set}",
			"The number of sets that have become done because of their members.",
		),
		waiterCount: rec.UpDownCounter(
			"completion.waiters",
			"{waiter}",
			"The number of goroutines currently blocked in Wait().",
		),
		violationCount: rec.Counter(
			"completion.protocol_violations",
			"{violation}",
			"The number of operations called with an unsatisfied precondition.",
		),
		exhaustedCount: rec.Counter(
			"completion.sets.exhausted",
			"{set}",
			"The number of times a set rejected a member because its member limit was reached.",
		),
		waitDuration: rec.Histogram(
			"completion.wait.duration",
			"ms",
			"The time spent blocked in Wait().",
		),
	}
}

func (i *Instrumentation) activated(e *Event) {
	if i == nil {
		return
	}

	i.activatedCount(context.Background(), 1, kindAttr(e))
}

func (i *Instrumentation) completed(e *Event) {
	if i == nil {
		return
	}

	ctx := context.Background()
	i.completedCount(ctx, 1, kindAttr(e))

	if e.kind != KindSimple {
		i.triggerCount(ctx, 1, telemetry.Stringer("set.kind", e.kind))
	}

	switch e.kind {
	case KindAndSet:
		i.rec.Debug(
			ctx,
			"AND set is done",
			nameAttr(e),
			telemetry.Int("set.members", len(e.slots)),
		)
	case KindOrSet:
		i.rec.Debug(
			ctx,
			"OR set is done",
			nameAttr(e),
			telemetry.Int("set.members", len(e.slots)),
			telemetry.Int("set.trigger_index", e.trigger),
		)
	}
}

func (i *Instrumentation) waitStarted(k Kind) time.Time {
	if i == nil {
		return time.Time{}
	}

	i.waiterCount(context.Background(), 1, telemetry.Stringer("event.kind", k))
	return time.Now()
}

func (i *Instrumentation) waitEnded(k Kind, start time.Time) {
	if i == nil {
		return
	}

	ctx := context.Background()
	i.waiterCount(ctx, -1, telemetry.Stringer("event.kind", k))
	i.waitDuration(
		ctx,
		float64(time.Since(start))/float64(time.Millisecond),
		telemetry.Stringer("event.kind", k),
	)
}

func (i *Instrumentation) violated(e *Event, err *ProtocolError) {
	if i == nil {
		return
	}

	ctx := context.Background()
	i.violationCount(ctx, 1, telemetry.String("operation", err.Op))
	i.rec.Error(
		ctx,
		"completion protocol violation",
		err,
		nameAttr(e),
		telemetry.String("operation", err.Op),
	)
}

func (i *Instrumentation) exhausted(e *Event) {
	if i == nil {
		return
	}

	ctx := context.Background()
	i.exhaustedCount(ctx, 1, kindAttr(e))
	i.rec.Info(
		ctx,
		"set membership is exhausted",
		nameAttr(e),
		telemetry.Int("set.member_limit", e.limit),
	)
}

// kindAttr returns an attribute describing the kind of e. e.mu must be held.
func kindAttr(e *Event) telemetry.Attr {
	return telemetry.Stringer("event.kind", e.kind)
}

func nameAttr(e *Event) telemetry.Attr {
	return telemetry.String("event.name", e.name)
}
