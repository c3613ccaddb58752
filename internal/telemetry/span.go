package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span represents a single named and timed operation.
type Span struct {
	span trace.Span
}

// StartSpan starts a new span as a child of the span in ctx, if any.
func (r *Recorder) StartSpan(
	ctx context.Context,
	name string,
	attrs ...Attr,
) (context.Context, *Span) {
	ctx, span := r.tracer.Start(
		ctx,
		name,
		trace.WithAttributes(asAttrKeyValues(attrs)...),
	)

	return ctx, &Span{span}
}

// SetAttributes sets attributes on the span.
func (s *Span) SetAttributes(attrs ...Attr) {
	s.span.SetAttributes(asAttrKeyValues(attrs)...)
}

// End completes the span. If err is non-nil the span is marked as failed.
func (s *Span) End(err error) {
	if err != nil {
		s.span.SetStatus(codes.Error, err.Error())
		s.span.RecordError(err)
	}

	s.span.End()
}

// AddEvent records a named event on the span.
func (s *Span) AddEvent(name string, attrs ...Attr) {
	s.span.AddEvent(
		name,
		trace.WithAttributes(asAttrKeyValues(attrs)...),
	)
}
