// Package stress exercises completion events under concurrent load.
package stress

import (
	"context"
	"fmt"

	"github.com/dogmatiq/completion"
	"github.com/dogmatiq/completion/internal/telemetry"
)

// Runner runs stress scenarios against completion events.
type Runner struct {
	// Telemetry records spans and logs about the scenarios. If it is nil,
	// no-op providers and the default logger are used.
	Telemetry *telemetry.Provider

	// Instrumentation, if non-nil, is attached to every event the scenarios
	// create.
	Instrumentation *completion.Instrumentation
}

func (r *Runner) recorder(scenario string) *telemetry.Recorder {
	return r.Telemetry.Recorder(
		"stress",
		telemetry.String("scenario", scenario),
	)
}

// newEvent returns a new named event, instrumented if r.Instrumentation is
// set.
func (r *Runner) newEvent(format string, args ...any) *completion.Event {
	options := []completion.Option{
		completion.WithName(fmt.Sprintf(format, args...)),
	}

	if r.Instrumentation != nil {
		options = append(options, completion.WithInstrumentation(r.Instrumentation))
	}

	return completion.New(options...)
}

// wait blocks until e is done or ctx is canceled.
func wait(ctx context.Context, e *completion.Event) error {
	if e.IsDone() {
		return nil
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s did not become done: %w", e, ctx.Err())
	case <-e.Done():
		return nil
	}
}

// waitAny makes set into an OR set over members, waits for it to become done
// and returns the triggering member.
func waitAny(
	ctx context.Context,
	set *completion.Event,
	members ...*completion.Event,
) (*completion.Event, error) {
	if err := set.MakeOrSet(completion.WithCapacity(len(members))); err != nil {
		return nil, err
	}

	for _, m := range members {
		if err := set.AddMember(m); err != nil {
			return nil, err
		}
	}

	set.FinishMembership()

	if err := wait(ctx, set); err != nil {
		return nil, err
	}

	return set.TriggeringMember(), nil
}

// activateAndComplete runs the whole lifecycle of a simple event that has no
// work of its own.
func activateAndComplete(e *completion.Event) {
	e.Activate()
	e.Complete()
}
