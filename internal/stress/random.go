package stress

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dogmatiq/completion"
	"github.com/dogmatiq/completion/internal/telemetry"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RandomConfig is the configuration of the randomized worker-pair scenario.
type RandomConfig struct {
	// Threads is the number of independent coordinators.
	Threads int

	// WorkerPairs is the number of doer/waiter pairs per coordinator. The
	// first few coordinators use fewer pairs so that small and large fan-in
	// are both exercised.
	WorkerPairs int

	// OpsPerPair is the number of events shared by each pair.
	OpsPerPair int

	// Iterations is the number of times each pair is given work.
	Iterations int

	// MaxDelay is the upper bound of the random delay between activating and
	// completing each event.
	MaxDelay time.Duration

	// Seed is the seed from which all random choices are derived. If it is
	// empty a random seed is used.
	Seed string
}

// DefaultRandomConfig returns the default configuration of the randomized
// worker-pair scenario.
func DefaultRandomConfig() RandomConfig {
	return RandomConfig{
		Threads:     0x10,
		WorkerPairs: 0x20,
		OpsPerPair:  0x8,
		Iterations:  0x10,
		MaxDelay:    3 * time.Millisecond,
	}
}

func (c RandomConfig) validate() error {
	switch {
	case c.Threads <= 0:
		return errors.New("thread count must be positive")
	case c.WorkerPairs <= 0:
		return errors.New("worker pair count must be positive")
	case c.OpsPerPair <= 0:
		return errors.New("ops per pair must be positive")
	case c.Iterations <= 0:
		return errors.New("iteration count must be positive")
	case c.MaxDelay < 0:
		return errors.New("maximum delay must not be negative")
	}
	return nil
}

// RunRandom runs the randomized worker-pair scenario.
//
// Each coordinator hands work to pairs of workers. The doer of each pair
// activates and completes a shared set of events in random order, while the
// waiter repeatedly waits for any of them using an OR set. The coordinator
// waits for any pair to finish using an OR set of per-pair AND sets. Events
// are reset or destroyed and reallocated as they are reused. After every
// iteration the coordinator verifies that the waiter observed each completion
// after the doer performed it.
func (r *Runner) RunRandom(ctx context.Context, cfg RandomConfig) (err error) {
	if err := cfg.validate(); err != nil {
		return err
	}

	if cfg.Seed == "" {
		cfg.Seed = uuid.NewString()
	}

	rec := r.recorder("random")
	runID := uuid.New()

	ctx, span := rec.StartSpan(
		ctx,
		"random",
		telemetry.Stringer("run_id", runID),
		telemetry.String("seed", cfg.Seed),
	)
	defer func() { span.End(err) }()

	rec.Info(
		ctx,
		"random scenario started",
		telemetry.Stringer("run_id", runID),
		telemetry.String("seed", cfg.Seed),
		telemetry.Int("threads", cfg.Threads),
		telemetry.Int("worker_pairs", cfg.WorkerPairs),
		telemetry.Int("ops_per_pair", cfg.OpsPerPair),
		telemetry.Int("iterations", cfg.Iterations),
		telemetry.Duration("max_delay", cfg.MaxDelay),
	)

	var verified atomic.Int64

	g, ctx := errgroup.WithContext(ctx)

	for i := range cfg.Threads {
		c := &coordinator{
			runner:   r,
			rec:      rec,
			span:     span,
			verified: &verified,
			cfg:      cfg,
			name:     fmt.Sprintf("thread-%d", i),
			pairs:    cfg.WorkerPairs,
		}

		if i < 4 {
			c.pairs = min(i+1, cfg.WorkerPairs)
		}

		c.rng = newRand(cfg.Seed, c.name)

		g.Go(func() error {
			return c.run(ctx)
		})
	}

	err = g.Wait()

	span.SetAttributes(
		telemetry.Int("verified_iterations", verified.Load()),
	)

	if err != nil {
		rec.Error(ctx, "random scenario failed", err, telemetry.Stringer("run_id", runID))
		return err
	}

	rec.Info(
		ctx,
		"random scenario finished",
		telemetry.Stringer("run_id", runID),
		telemetry.Int("verified_iterations", verified.Load()),
	)

	return nil
}

// newRand returns a random number generator seeded from the scenario seed and
// the name of the component that uses it.
func newRand(seed, name string) *rand.Rand {
	s := xxhash.Sum64String(seed + "/" + name)
	return rand.New(rand.NewPCG(s, ^s))
}

// coordinator hands out work to worker pairs.
type coordinator struct {
	runner   *Runner
	rec      *telemetry.Recorder
	span     *telemetry.Span
	verified *atomic.Int64
	cfg      RandomConfig
	name     string
	pairs    int
	rng      *rand.Rand
	seq      atomic.Int64
}

// pair is a doer and a waiter that share a set of events.
type pair struct {
	index int
	ops   []*completion.Event

	// order is the order in which the doer completes ops.
	order []int

	// written and received hold the sequence numbers at which each op was
	// completed by the doer and observed by the waiter, respectively.
	written  []int64
	received []int64

	// finished is an AND set over the finished events of both workers.
	finished *completion.Event
	pos      int

	doer, waiter *worker
}

// worker is one half of a pair.
type worker struct {
	runner *Runner
	name   string
	pair   *pair
	seq    *atomic.Int64
	rng    *rand.Rand
	delay  time.Duration
	waiter bool

	start, finished, quit *completion.Event
}

func (c *coordinator) run(ctx context.Context) error {
	pairs := make([]*pair, c.pairs)
	byEvent := map[*completion.Event]*pair{}

	g, ctx := errgroup.WithContext(ctx)

	for i := range pairs {
		p := c.newPair(i)
		pairs[i] = p
		byEvent[p.finished] = p

		// The finished set starts out done so that the first round of
		// coordination gives every pair its first piece of work.
		activateAndComplete(p.finished)

		g.Go(func() error { return p.doer.run(ctx) })
		g.Go(func() error { return p.waiter.run(ctx) })
	}

	g.Go(func() error {
		err := c.coordinate(ctx, pairs, byEvent)

		for _, p := range pairs {
			activateAndComplete(p.doer.quit)
			activateAndComplete(p.waiter.quit)
		}

		return err
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}

	for _, p := range pairs {
		p.destroy()
	}

	c.span.AddEvent(
		"thread finished",
		telemetry.String("thread", c.name),
		telemetry.Int("pairs", c.pairs),
	)

	return nil
}

func (c *coordinator) newPair(index int) *pair {
	p := &pair{
		index:    index,
		ops:      make([]*completion.Event, c.cfg.OpsPerPair),
		written:  make([]int64, c.cfg.OpsPerPair),
		received: make([]int64, c.cfg.OpsPerPair),
		finished: c.runner.newEvent("%s/pair-%d", c.name, index),
		pos:      -1,
	}

	for i := range p.ops {
		p.ops[i] = c.runner.newEvent("%s/pair-%d/op-%d", c.name, index, i)
	}

	p.doer = c.newWorker(p, 2*index, false)
	p.waiter = c.newWorker(p, 2*index+1, true)

	return p
}

func (c *coordinator) newWorker(p *pair, index int, waiter bool) *worker {
	name := fmt.Sprintf("%s/worker-%d", c.name, index)

	return &worker{
		runner:   c.runner,
		name:     name,
		pair:     p,
		seq:      &c.seq,
		rng:      newRand(c.cfg.Seed, name),
		delay:    c.cfg.MaxDelay,
		waiter:   waiter,
		start:    c.runner.newEvent("%s/start", name),
		finished: c.runner.newEvent("%s/finished", name),
		quit:     c.runner.newEvent("%s/quit", name),
	}
}

func (c *coordinator) coordinate(
	ctx context.Context,
	pairs []*pair,
	byEvent map[*completion.Event]*pair,
) error {
	set := c.runner.newEvent("%s/select", c.name)
	members := make([]*completion.Event, 0, len(pairs))

	resetPeriod := max(1, c.cfg.Iterations/2)
	resetLimit := c.cfg.Iterations / 3

	for counter := 0; ; counter++ {
		members = members[:0]
		for _, p := range pairs {
			if p.pos < c.cfg.Iterations {
				members = append(members, p.finished)
			}
		}

		if len(members) == 0 {
			break
		}

		trigger, err := waitAny(ctx, set, members...)
		if err != nil {
			return err
		}

		if counter%resetPeriod < resetLimit {
			set.Reset()
		} else {
			set.Destroy()
			set = c.runner.newEvent("%s/select", c.name)
		}

		p, ok := byEvent[trigger]
		if !ok {
			return fmt.Errorf("%s is not the finished set of any pair", trigger)
		}

		p.finished.Reset()

		if p.pos >= 0 {
			p.doer.finished.Reset()
			p.waiter.finished.Reset()

			if err := p.verify(); err != nil {
				return fmt.Errorf("pair %d, iteration %d: %w", p.index, p.pos, err)
			}

			c.verified.Add(1)

			c.rec.Debug(
				ctx,
				"pair iteration verified",
				telemetry.String("thread", c.name),
				telemetry.Int("pair", p.index),
				telemetry.Int("iteration", p.pos),
			)
		}

		p.pos++

		if p.pos < c.cfg.Iterations {
			if err := c.assign(p); err != nil {
				return err
			}
		}
	}

	set.Destroy()

	return nil
}

// assign gives the next piece of work to p.
func (c *coordinator) assign(p *pair) error {
	p.order = c.rng.Perm(len(p.ops))
	clear(p.written)
	clear(p.received)

	if err := p.finished.MakeAndSet(completion.WithCapacity(2)); err != nil {
		return err
	}
	if err := p.finished.AddMember(p.doer.finished); err != nil {
		return err
	}
	if err := p.finished.AddMember(p.waiter.finished); err != nil {
		return err
	}
	p.finished.FinishMembership()

	activateAndComplete(p.doer.start)
	activateAndComplete(p.waiter.start)

	return nil
}

// verify checks that every op was completed by the doer before the waiter
// observed it.
func (p *pair) verify() error {
	for i := range p.ops {
		w, r := p.written[i], p.received[i]

		switch {
		case w == 0:
			return fmt.Errorf("op %d was never completed", i)
		case r == 0:
			return fmt.Errorf("op %d was never observed", i)
		case w >= r:
			return fmt.Errorf("op %d was observed (seq %d) before it was completed (seq %d)", i, r, w)
		}
	}

	return nil
}

func (p *pair) destroy() {
	p.finished.Destroy()

	for _, w := range []*worker{p.doer, p.waiter} {
		w.start.Destroy()
		w.finished.Destroy()
		w.quit.Destroy()
	}

	for _, op := range p.ops {
		op.Destroy()
	}
}

func (w *worker) run(ctx context.Context) error {
	set := w.runner.newEvent("%s/select", w.name)

	for i := 0; ; i++ {
		trigger, err := waitAny(ctx, set, w.start, w.quit)
		if err != nil {
			return err
		}

		if trigger == w.quit {
			set.Destroy()
			return nil
		}

		if trigger != w.start {
			return fmt.Errorf("%s: unexpected trigger %s", w.name, trigger)
		}

		if i%6 < 3 {
			set.Reset()
		} else {
			set.Destroy()
			set = w.runner.newEvent("%s/select", w.name)
		}

		w.start.Reset()
		w.finished.Activate()

		if w.waiter {
			err = w.observe(ctx)
		} else {
			err = w.perform(ctx)
		}

		if err != nil {
			return fmt.Errorf("%s: %w", w.name, err)
		}

		w.finished.Complete()
	}
}

// perform completes each of the pair's ops in the assigned order.
func (w *worker) perform(ctx context.Context) error {
	p := w.pair

	for _, i := range p.order {
		op := p.ops[i]
		op.Activate()

		if w.delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(w.rng.Int64N(int64(w.delay)))):
			}
		}

		if p.written[i] != 0 {
			return fmt.Errorf("op %d was completed twice", i)
		}
		p.written[i] = w.seq.Add(1)

		op.Complete()
	}

	return nil
}

// observe waits for each of the pair's ops to become done, in whatever order
// that happens.
func (w *worker) observe(ctx context.Context) error {
	p := w.pair
	n := len(p.ops)
	set := w.runner.newEvent("%s/ops", w.name)

	for i := range n {
		trigger, err := waitAny(ctx, set, p.ops...)
		if err != nil {
			return err
		}

		if i < n/4 || i > 3*n/4 {
			set.Reset()
		} else {
			set.Destroy()
			set = w.runner.newEvent("%s/ops", w.name)
		}

		trigger.Reset()

		index := slices.Index(p.ops, trigger)
		switch {
		case index < 0:
			return fmt.Errorf("unexpected trigger %s", trigger)
		case p.written[index] == 0:
			return fmt.Errorf("op %d was observed before it was completed", index)
		case p.received[index] != 0:
			return fmt.Errorf("op %d was observed twice", index)
		}

		p.received[index] = w.seq.Add(1)
	}

	set.Destroy()

	return nil
}
