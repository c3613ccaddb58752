package completion

// OnActive registers fn to be called when the event becomes active.
//
// fn is called with the event's lock held and must not call any method of
// the event. It may be registered once per generation of the event, before
// the event is activated.
func (e *Event) OnActive(fn func(*Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.mustBeLive("OnActive")

	if s := e.State(); s != StateInit {
		e.violation("OnActive", "event is %s, want %s", s, StateInit)
	}

	if e.onActive != nil {
		e.violation("OnActive", "callback is already registered")
	}

	e.onActive = fn
}

// OnDone registers fn to be called when the event becomes done.
//
// fn is called with the event's lock held, before the event reports itself as
// done, before any waiter is released and before any set that the event is a
// member of is notified. It must not call any method of the event other than
State and IsDone. It may be registered once per generation of the
// event, before the event is done.
func (e *Event) OnDone(fn func(*Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.mustBeLive("OnDone")

	if s := e.State(); s == StateDone {
		e.violation("OnDone", "event is already done")
	}

	if e.onDone != nil {
		e.violation("OnDone", "callback is already registered")
	}

	e.onDone = fn
}

// OnRelease registers fn to be called once the event has become done and the
// sets it is a member of have been notified.
//
// fn is called without any lock held. Once it is called the event is no
// longer referenced by the completion machinery, so fn may reset, reuse or
// destroy it.
func (e *Event) OnRelease(fn func(*Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.mustBeLive("OnRelease")

	if s := e.State(); s == StateDone {
		e.violation("OnRelease", "event is already done")
	}

	if e.onRelease != nil {
		e.violation("OnRelease", "callback is already registered")
	}

	e.onRelease = fn
}
