// Package completion provides completion events, a one-shot, resettable
// "done" signal used by asynchronous units of work, and AND/OR sets that
// combine many events into one.
package completion

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// State is the lifecycle state of an [Event].
type State uint32

const (
	// StateInit is the state of a newly created or reset event.
	StateInit State = iota

	// StateActive is the state of an event whose work is in progress.
	StateActive

	// StateDone is the state of an event whose work has completed.
	StateDone

	// stateDestroyed is the terminal state of an event after Destroy().
	stateDestroyed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateActive:
		return "active"
	case StateDone:
		return "done"
	case stateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// Kind is the kind of an [Event].
type Kind uint8

const (
	// KindSimple is an event that is completed explicitly by calling
	// [Event.Complete].
	KindSimple Kind = iota

	// KindAndSet is an event that completes once all of its members are done.
	KindAndSet

	// KindOrSet is an event that completes once any of its members is done.
	KindOrSet
)

func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindAndSet:
		return "and-set"
	case KindOrSet:
		return "or-set"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Event is a completion event.
//
// An event starts in [StateInit]. The unit of work that owns it calls
// [Event.Activate] when the work starts and [Event.Complete] when its result
// is ready. Any number of goroutines may wait for completion using
// [Event.Wait] or [Event.Done]. Everything written by the completing goroutine
// before the call to Complete is visible to a waiter once its wait returns.
//
// Calling an operation whose precondition does not hold panics with a
// [*ProtocolError].
//
// The zero value is an unnamed, uninstrumented simple event in [StateInit].
// An Event must not be copied after first use.
type Event struct {
	state atomic.Uint32

	mu    sync.Mutex
	name  string
	inst  *Instrumentation
	limit int
	kind  Kind
	wake  chan struct{}

	// parents is the set of memberships of this event in set events. Links
	// may be detached by the parent at any time.
	parents []*membership

	// The remaining fields are only used by set events.
	slots     []slot
	sealed    bool
	pending   int
	firstDone int // index+1 of the lowest done slot, zero if none
	trigger   int

	onActive, onDone, onRelease func(*Event)
}

// New returns a new event in [StateInit].
func New(options ...Option) *Event {
	e := &Event{}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// State returns the current state of the event.
func (e *Event) State() State {
	return State(e.state.Load())
}

// Kind returns the kind of the event.
func (e *Event) Kind() Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.kind
}

// IsDone returns true if the event is in [StateDone].
//
// It never blocks.
func (e *Event) IsDone() bool {
	return e.State() == StateDone
}

// Done returns a channel that is closed when the event becomes done.
//
// The channel belongs to the current generation of the event. Once the event
// is reset, subsequent calls return a new channel.
func (e *Event) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.mustBeLive("Done")
	return e.wakeChan()
}

// Wait blocks until the event is done.
func (e *Event) Wait() {
	if e.IsDone() {
		return
	}

	ch, k := e.waitFor()

	start := e.inst.waitStarted(k)
	<-ch
	e.inst.waitEnded(k, start)
}

func (e *Event) waitFor() (<-chan struct{}, Kind) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.mustBeLive("Wait")
	return e.wakeChan(), e.kind
}

// Activate marks the start of the work that the event tracks.
//
// The event must be a simple event in [StateInit].
func (e *Event) Activate() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.mustBeLive("Activate")

	if e.kind != KindSimple {
		e.violation("Activate", "set events are activated when they are made into a set")
	}

	e.activate("Activate")
}

// Complete marks the work that the event tracks as finished, releasing all
// waiters and notifying any sets that the event is a member of.
//
// The event must be a simple event in [StateActive]. Completing an event
// twice is a protocol violation.
func (e *Event) Complete() {
	e.propagate(e.complete())
}

func (e *Event) complete() transition {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.mustBeLive("Complete")

	if e.kind != KindSimple {
		e.violation("Complete", "set events complete when their members do")
	}

	if s := e.State(); s != StateActive {
		e.violation("Complete", "event is %s, want %s", s, StateActive)
	}

	return e.commit()
}

// Reset returns a done event to [StateInit] so that it can be reused,
// possibly as a different kind.
//
// Resetting a set clears its membership, but does not reset its members.
// Callbacks registered with OnActive, OnDone and OnRelease are cleared.
func (e *Event) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.mustBeLive("Reset")

	if s := e.State(); s != StateDone {
		e.violation("Reset", "event is %s, want %s", s, StateDone)
	}

	e.detachSlots()
	clear(e.slots)

	e.slots = e.slots[:0]
	e.kind = KindSimple
	e.sealed = false
	e.pending = 0
	e.firstDone = 0
	e.trigger = 0
	e.wake = nil
	e.onActive = nil
	e.onDone = nil
	e.onRelease = nil

	e.state.Store(uint32(StateInit))
}

// Destroy releases the event. Any subsequent operation other than State and
// IsDone panics.
//
// The event must not be in progress, and must not be an unsatisfied member of
// a sealed set. Destroying an unsatisfied member of a set that is not yet
// sealed withdraws it from that set.
func (e *Event) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.mustBeLive("Destroy")

	if s := e.State(); s == StateActive {
		e.violation("Destroy", "event is in progress")
	}

	for _, l := range e.parents {
		if !l.parent.canWithdraw(l) {
			e.violation("Destroy", "event is an unsatisfied member of sealed set %s", l.parent)
		}
	}

	for _, l := range e.parents {
		if !l.parent.withdraw(l) {
			// The set was sealed after it was checked above.
			e.violation("Destroy", "event is an unsatisfied member of sealed set %s", l.parent)
		}
	}

	e.parents = nil
	e.detachSlots()
	e.slots = nil
	e.onActive = nil
	e.onDone = nil
	e.onRelease = nil

	e.state.Store(uint32(stateDestroyed))
}

func (e *Event) String() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.describe()
}

// activate moves the event to StateActive. e.mu must be held.
func (e *Event) activate(op string) {
	if s := e.State(); s != StateInit {
		e.violation(op, "event is %s, want %s", s, StateInit)
	}

	if e.onActive != nil {
		e.onActive(e)
	}

	e.state.Store(uint32(StateActive))
	e.inst.activated(e)
}

// transition describes the work that remains once an event has become done
// and its lock has been released.
type transition struct {
	event   *Event
	parents []*membership
	release func(*Event)
}

// commit moves the event to StateDone and releases its waiters. e.mu must be
// held. The caller must pass the result to propagate() after releasing the
// lock.
func (e *Event) commit() transition {
	// IsDone() and Wait() observe the state without the lock, so it must not
	// change until the OnDone callback has returned.
	if e.onDone != nil {
		e.onDone(e)
	}

	e.state.Store(uint32(StateDone))
	close(e.wakeChan())
	e.detachSlots()
	e.inst.completed(e)

	t := transition{
		event:   e,
		parents: e.parents,
		release: e.onRelease,
	}
	e.parents = nil

	return t
}

// propagate notifies the parents of an event that has become done.
func (e *Event) propagate(t transition) {
	for _, l := range t.parents {
		if !l.detached.Load() {
			l.parent.propagate(l.parent.observe(l))
		}
	}

	if t.release != nil {
		t.release(t.event)
	}
}

// wakeChan returns the channel that is closed when the event becomes done.
// e.mu must be held.
func (e *Event) wakeChan() chan struct{} {
	if e.wake == nil {
		e.wake = make(chan struct{})
	}
	return e.wake
}

// mustBeLive panics if the event has been destroyed. e.mu must be held.
func (e *Event) mustBeLive(op string) {
	if e.State() == stateDestroyed {
		e.violation(op, "event has been destroyed")
	}
}

// violation panics with a [ProtocolError]. e.mu must be held.
func (e *Event) violation(op, format string, args ...any) {
	err := &ProtocolError{
		Op:     op,
		Event:  e.describe(),
		Reason: fmt.Sprintf(format, args...),
	}

	e.inst.violated(e, err)
	panic(err)
}

// describe returns a human-readable description of the event. e.mu must be
// held.
func (e *Event) describe() string {
	var w strings.Builder

	if e.name == "" {
		fmt.Fprintf(&w, "event %p", e)
	} else {
		fmt.Fprintf(&w, "event %q", e.name)
	}

	fmt.Fprintf(&w, " (%s, %s", e.kind, e.State())

	if e.kind != KindSimple {
		fmt.Fprintf(&w, ", %d member(s)", len(e.slots))
		if e.sealed {
			w.WriteString(", sealed")
		}
	}

	w.WriteByte(')')

	return w.String()
}
