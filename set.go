package completion

import "sync/atomic"

// slot is an entry in the membership of a set event.
type slot struct {
	member *Event

	// link is the membership through which the member reports its
	// completion. It is nil if the member was already done when it was added.
	link *membership

	done      bool
	withdrawn bool
}

// membership links a member event to one slot of a set event.
//
// It is owned by the parent. The member holds a reference to it only so that
// it can report its completion, and must ignore it once it is detached.
type membership struct {
	parent   *Event
	index    int
	detached atomic.Bool
}

// SetOption is an option that changes the behavior of a set created by
// [Event.MakeAndSet] or [Event.MakeOrSet].
type SetOption func(*setConfig)

type setConfig struct {
	capacity int
}

// WithCapacity is a [SetOption] that reserves space for n members.
func WithCapacity(n int) SetOption {
	if n < 0 {
		panic("capacity must not be negative")
	}

	return func(c *setConfig) {
		c.capacity = n
	}
}

// MakeAndSet converts the event into a set that becomes done once it is
// sealed and all of its members are done.
//
// The event must be a simple event in [StateInit]. The set is in
// [StateActive] until it becomes done. It returns [ErrMembershipExhausted] if
// the requested capacity exceeds the event's member limit.
func (e *Event) MakeAndSet(options ...SetOption) error {
	return e.makeSet("MakeAndSet", KindAndSet, options)
}

// MakeOrSet converts the event into a set that becomes done once it is sealed
// and any of its members is done.
//
// The event must be a simple event in [StateInit]. The set is in
// [StateActive] until it becomes done. It returns [ErrMembershipExhausted] if
// the requested capacity exceeds the event's member limit.
func (e *Event) MakeOrSet(options ...SetOption) error {
	return e.makeSet("MakeOrSet", KindOrSet, options)
}

func (e *Event) makeSet(op string, k Kind, options []SetOption) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.mustBeLive(op)

	if e.kind != KindSimple {
		e.violation(op, "event is already a set")
	}

	if s := e.State(); s != StateInit {
		e.violation(op, "event is %s, want %s", s, StateInit)
	}

	var cfg setConfig
	for _, opt := range options {
		opt(&cfg)
	}

	if e.limit > 0 && cfg.capacity > e.limit {
		e.inst.exhausted(e)
		return ErrMembershipExhausted
	}

	if cfg.capacity > cap(e.slots) {
		e.slots = make([]slot, 0, cfg.capacity)
	}

	e.kind = k
	e.activate(op)

	return nil
}

// AddMember adds m to the membership of the set.
//
// The event must be a set that has not been sealed by [Event.FinishMembership].
// Members are kept in the order they are added. m may already be done, in
// which case it counts towards the set's completion immediately.
//
// It returns [ErrMembershipExhausted] if the set already holds as many
// members as the event's member limit allows.
func (e *Event) AddMember(m *Event) error {
	t, err := e.addMember(m)
	e.propagate(t)
	return err
}

func (e *Event) addMember(m *Event) (transition, error) {
	if m == nil || m == e {
		e.mu.Lock()
		defer e.mu.Unlock()

		if m == nil {
			e.violation("AddMember", "member must not be nil")
		}
		e.violation("AddMember", "event can not be a member of itself")
	}

	// The member is always locked before the parent. Complete() never holds
	// both, and Destroy() locks them in the same order.
	m.mu.Lock()
	defer m.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.mustBeLive("AddMember")

	if e.kind == KindSimple {
		e.violation("AddMember", "event is not a set")
	}

	if e.sealed {
		e.violation("AddMember", "membership is already finished")
	}

	if m.State() == stateDestroyed {
		e.violation("AddMember", "member has been destroyed")
	}

	if e.limit > 0 && len(e.slots) >= e.limit {
		e.inst.exhausted(e)
		return transition{}, ErrMembershipExhausted
	}

	index := len(e.slots)
	e.slots = append(e.slots, slot{member: m})

	if m.State() == StateDone {
		e.markDone(index)
	} else {
		l := &membership{
			parent: e,
			index:  index,
		}

		e.slots[index].link = l
		e.pending++
		m.link(l)
	}

	return e.evaluate(), nil
}

// FinishMembership seals the membership of the set. No more members may be
// added.
//
// If the set's condition is already satisfied, the set becomes done before
// FinishMembership returns. For an OR set with several members that are
// already done, the member that was added first becomes the trigger.
func (e *Event) FinishMembership() {
	e.propagate(e.seal())
}

func (e *Event) seal() transition {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.mustBeLive("FinishMembership")

	if e.kind == KindSimple {
		e.violation("FinishMembership", "event is not a set")
	}

	if e.sealed {
		e.violation("FinishMembership", "membership is already finished")
	}

	n := 0
	for _, s := range e.slots {
		if !s.withdrawn {
			n++
		}
	}

	if n == 0 {
		e.violation("FinishMembership", "set has no members")
	}

	e.sealed = true

	return e.evaluate()
}

// TriggeringMember returns the member whose completion caused the OR set to
// become done.
//
// The event must be a done OR set.
func (e *Event) TriggeringMember() *Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.mustBeLive("TriggeringMember")

	if e.kind != KindOrSet {
		e.violation("TriggeringMember", "event is not an OR set")
	}

	if s := e.State(); s != StateDone {
		e.violation("TriggeringMember", "event is %s, want %s", s, StateDone)
	}

	return e.slots[e.trigger].member
}

// link records that the event is a member of a set. e.mu must be held.
func (e *Event) link(l *membership) {
	// Drop links that the parents no longer care about, so that an event
	// that is repeatedly added to short-lived sets does not accumulate them.
	live := e.parents[:0]
	for _, p := range e.parents {
		if !p.detached.Load() {
			live = append(live, p)
		}
	}
	clear(e.parents[len(live):])

	e.parents = append(live, l)
}

// observe records the completion of the member linked by l. It is called
// without the member's lock held.
func (e *Event) observe(l *membership) transition {
	e.mu.Lock()
	defer e.mu.Unlock()

	if l.detached.Load() {
		// The set was reset, destroyed or became done after the member
		// captured the link.
		return transition{}
	}

	l.detached.Store(true)
	e.markDone(l.index)

	return e.evaluate()
}

// canWithdraw returns true if the member linked by l could be withdrawn from
// the set without leaving the set waiting on a destroyed event.
func (e *Event) canWithdraw(l *membership) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return l.detached.Load() || !e.sealed
}

// withdraw removes the member linked by l from the set because the member is
// being destroyed. It returns false if the set is sealed and still depends on
// the member.
func (e *Event) withdraw(l *membership) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if l.detached.Load() {
		return true
	}

	if e.sealed {
		return false
	}

	l.detached.Store(true)
	e.slots[l.index].withdrawn = true
	e.pending--

	return true
}

// markDone records that the member in the given slot is done. e.mu must be
// held.
func (e *Event) markDone(index int) {
	s := &e.slots[index]
	if s.done {
		return
	}

	s.done = true
	if s.link != nil {
		e.pending--
	}

	if e.firstDone == 0 || index+1 < e.firstDone {
		e.firstDone = index + 1
	}
}

// evaluate commits the set to StateDone if its condition is satisfied. It is
// the only place where a set becomes done. e.mu must be held.
func (e *Event) evaluate() transition {
	if e.State() != StateActive || !e.sealed {
		return transition{}
	}

	switch e.kind {
	case KindAndSet:
		if e.pending != 0 {
			return transition{}
		}
	case KindOrSet:
		if e.firstDone == 0 {
			return transition{}
		}
		e.trigger = e.firstDone - 1
	default:
		return transition{}
	}

	return e.commit()
}

// detachSlots detaches every member that is still linked to the set. e.mu
// must be held.
func (e *Event) detachSlots() {
	for _, s := range e.slots {
		if s.link != nil {
			s.link.detached.Store(true)
		}
	}
}
