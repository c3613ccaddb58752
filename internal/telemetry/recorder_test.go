package telemetry_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	. "github.com/dogmatiq/completion/internal/telemetry"
	"github.com/dogmatiq/completion/internal/test"
	"go.opentelemetry.io/otel/codes"
)

func TestRecorder(t *testing.T) {
	t.Parallel()

	t.Run("it can be obtained from a nil provider", func(t *testing.T) {
		t.Parallel()

		var p *Provider
		r := p.Recorder("<subsystem>")

		ctx, span := r.StartSpan(context.Background(), "<span>")
		r.Counter("<counter>", "{thing}", "<desc>")(ctx, 1)
		r.Info(ctx, "<message>")
		span.End(nil)
	})

	t.Run("func Error()", func(t *testing.T) {
		t.Parallel()

		t.Run("it marks the span as failed and counts the error", func(t *testing.T) {
			t.Parallel()

			tel := test.NewTelemetry(t)
			r := tel.Recorder("<subsystem>")

			ctx, span := r.StartSpan(context.Background(), "<span>")
			r.Error(ctx, "<message>", errors.New("<error>"), String("key", "value"))
			span.End(nil)

			spans := tel.Spans.Ended()
			test.Expect(t, "unexpected number of spans", len(spans), 1)
			test.Expect(t, "unexpected span status", spans[0].Status().Code, codes.Error)
			test.Expect(t, "unexpected span status description", spans[0].Status().Description, "<error>")
			test.Expect(t, "unexpected error count", tel.Sum(t, "errors"), 1)
		})
	})

	t.Run("func Info()", func(t *testing.T) {
		t.Parallel()

		t.Run("it logs the message with the subsystem, attributes and span ID", func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer

			tel := test.NewTelemetry(t)
			tel.Logger = slog.New(slog.NewTextHandler(&buf, nil))
			r := tel.Recorder("<subsystem>", Bool("flag", true))

			ctx, span := r.StartSpan(context.Background(), "<span>")
			r.Info(ctx, "<message>", Int("count", 3))
			span.End(nil)

			out := buf.String()
			for _, want := range []string{
				`msg=<message>`,
				`subsystem=<subsystem>`,
				`flag=true`,
				`count=3`,
				`span_id=`,
			} {
				if !strings.Contains(out, want) {
					t.Fatalf("expected log output to contain %q:\n%s", want, out)
				}
			}

			events := tel.Spans.Ended()[0].Events()
			test.Expect(t, "unexpected number of span events", len(events), 1)
			test.Expect(t, "unexpected span event", events[0].Name, "<message>")
		})

		t.Run("it does nothing if the level is disabled", func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer

			tel := test.NewTelemetry(t)
			tel.Logger = slog.New(
				slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}),
			)
			r := tel.Recorder("<subsystem>")

			r.Info(context.Background(), "<message>")

			test.Expect(t, "unexpected log output", buf.String(), "")
		})
	})
}
