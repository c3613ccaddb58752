package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Debug logs a debug-level message, and adds it as an event to the span in
// ctx, if any.
func (r *Recorder) Debug(ctx context.Context, message string, attrs ...Attr) {
	r.log(ctx, slog.LevelDebug, message, nil, attrs)
}

// Info logs an informational message, and adds it as an event to the span in
// ctx, if any.
func (r *Recorder) Info(ctx context.Context, message string, attrs ...Attr) {
	r.log(ctx, slog.LevelInfo, message, nil, attrs)
}

// Error logs an error message, marks the span in ctx as failed and increments
// the "errors" metric.
func (r *Recorder) Error(ctx context.Context, message string, err error, attrs ...Attr) {
	r.log(ctx, slog.LevelError, message, err, attrs)
	r.errorCount(ctx, 1)

	span := trace.SpanFromContext(ctx)
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
}

func (r *Recorder) log(
	ctx context.Context,
	level slog.Level,
	message string,
	err error,
	attrs []Attr,
) {
	if !r.logger.Enabled(ctx, level) {
		return
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(
			message,
			trace.WithAttributes(asAttrKeyValues(attrs)...),
		)
	}

	logAttrs := asLogAttrs(attrs)

	if err != nil {
		logAttrs = append(logAttrs, slog.String("error", err.Error()))
	}

	if sctx := span.SpanContext(); sctx.HasSpanID() {
		logAttrs = append(
			logAttrs,
			slog.String("span_id", sctx.SpanID().String()),
		)
	}

	r.logger.LogAttrs(ctx, level, message, logAttrs...)
}
