package stress

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dogmatiq/completion"
	"github.com/dogmatiq/completion/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// dagNode is a step in the lifecycle of the event shared by the goroutines of
// the DAG scenario. Each node runs on its own goroutine.
type dagNode int

const (
	nodeInit dagNode = iota
	nodeWait1
	nodeActive
	nodeWait2
	nodeDone
	nodeWait3
	nodeFini
	nodeCount
)

func (n dagNode) String() string {
	return [...]string{
		"init",
		"wait1",
		"active",
		"wait2",
		"done",
		"wait3",
		"fini",
	}[n]
}

// dagEdge orders dst after src.
//
// If after is false dst waits for src before it runs. Otherwise dst runs
// without waiting for src, but does not signal its own dependents until src
// has run.
type dagEdge struct {
	src   dagNode
	after bool
	dst   dagNode
}

//	+---------------+
//	|               |
//	|               V
//	|   INIT ---> WAIT1
//	|    |          |
//	|    V          V
//	|  ACTIVE --> WAIT2
//	|    |          |
//	|    V          V
//	+-- DONE ---> WAIT3 --> FINI
var dagEdges = []dagEdge{
	{nodeInit, false, nodeActive},
	{nodeActive, false, nodeDone},
	{nodeDone, true, nodeWait1},
	{nodeInit, false, nodeWait1},
	{nodeActive, false, nodeWait2},
	{nodeDone, false, nodeWait3},
	{nodeWait1, true, nodeWait2},
	{nodeWait2, true, nodeWait3},
	{nodeWait3, false, nodeFini},
}

// dagRound is a single run of the DAG scenario.
type dagRound struct {
	runner *Runner
	round  int
	span   *telemetry.Span

	barrier     [nodeCount]chan struct{}
	waitBefore  [nodeCount]bool
	waitAfter   [nodeCount]bool
	signal      [nodeCount][]dagNode
	event       *completion.Event
	completions *atomic.Int64
}

// RunDAG runs the DAG scenario the given number of times.
//
// Each round creates a single event and drives it through its lifecycle from
// seven goroutines, one per lifecycle step, while three of them wait for it.
// The goroutines are ordered only by counting semaphores.
func (r *Runner) RunDAG(ctx context.Context, rounds int) error {
	rec := r.recorder("dag")

	var completions atomic.Int64

	for i := range rounds {
		if err := r.runDAGRound(ctx, rec, i, &completions); err != nil {
			return err
		}
	}

	if n := completions.Load(); n != int64(rounds) {
		return fmt.Errorf("observed %d completion(s) across %d round(s)", n, rounds)
	}

	rec.Info(
		ctx,
		"dag scenario finished",
		telemetry.Int("rounds", rounds),
	)

	return nil
}

func (r *Runner) runDAGRound(
	ctx context.Context,
	rec *telemetry.Recorder,
	round int,
	completions *atomic.Int64,
) (err error) {
	ctx, span := rec.StartSpan(
		ctx,
		"dag.round",
		telemetry.Int("round", round),
	)
	defer func() { span.End(err) }()

	d := &dagRound{
		runner:      r,
		round:       round,
		span:        span,
		completions: completions,
	}

	for n := range nodeCount {
		d.barrier[n] = make(chan struct{}, 2)
	}

	for _, e := range dagEdges {
		if len(d.signal[e.src]) == 2 {
			panic("a node may signal at most two others")
		}
		d.signal[e.src] = append(d.signal[e.src], e.dst)

		if e.after {
			d.waitAfter[e.dst] = true
		} else {
			d.waitBefore[e.dst] = true
		}
	}

	// The init node is released by the round itself.
	d.waitBefore[nodeInit] = true

	g, ctx := errgroup.WithContext(ctx)

	for n := range nodeCount {
		g.Go(func() error {
			return d.run(ctx, n)
		})
	}

	d.barrier[nodeInit] <- struct{}{}

	if err := g.Wait(); err != nil {
		rec.Error(ctx, "dag round failed", err, telemetry.Int("round", round))
		return err
	}

	span.SetAttributes(
		telemetry.Int("completions", completions.Load()),
	)

	return nil
}

func (d *dagRound) run(ctx context.Context, n dagNode) error {
	if d.waitBefore[n] {
		if err := d.down(ctx, n); err != nil {
			return err
		}
	}

	if err := d.step(n); err != nil {
		return fmt.Errorf("round %d: %s: %w", d.round, n, err)
	}

	d.span.AddEvent(n.String())

	if d.waitAfter[n] {
		if err := d.down(ctx, n); err != nil {
			return err
		}
	}

	for _, dst := range d.signal[n] {
		d.barrier[dst] <- struct{}{}
	}

	return nil
}

var (
	errDoneTooEarly = errors.New("event is done before it was completed")
	errNotDone      = errors.New("event is not done")
)

func (d *dagRound) step(n dagNode) error {
	switch n {
	case nodeInit:
		d.event = d.runner.newEvent("dag-%d", d.round)
		d.event.OnDone(func(*completion.Event) {
			d.completions.Add(1)
		})

	case nodeActive:
		if d.event.IsDone() {
			return errDoneTooEarly
		}
		d.event.Activate()

	case nodeDone:
		if d.event.IsDone() {
			return errDoneTooEarly
		}
		d.event.Complete()

	case nodeWait1, nodeWait2, nodeWait3:
		d.event.Wait()
		if !d.event.IsDone() {
			return errNotDone
		}

	case nodeFini:
		if !d.event.IsDone() {
			return errNotDone
		}
		d.event.Destroy()
	}

	return nil
}

func (d *dagRound) down(ctx context.Context, n dagNode) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("round %d: %s was not signaled: %w", d.round, n, ctx.Err())
	case <-d.barrier[n]:
		return nil
	}
}
