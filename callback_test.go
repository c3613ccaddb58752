package completion_test

import (
	"sync/atomic"
	"testing"
	"time"

	. "github.com/dogmatiq/completion"
	"github.com/dogmatiq/completion/internal/test"
)

func TestCallbacks(t *testing.T) {
	t.Parallel()

	t.Run("it calls each callback at the appropriate point in the lifecycle", func(t *testing.T) {
		t.Parallel()

		var calls []string

		m := New()
		set := makeSet(t, KindAndSet, m)
		set.FinishMembership()

		done := m.Done()

		m.OnActive(func(*Event) {
			calls = append(calls, "active")
		})

		m.OnDone(func(e *Event) {
			if e.IsDone() {
				t.Error("event reported itself as done before the done callback returned")
			}

			select {
			case <-done:
				t.Error("waiters were released before the done callback")
			default:
			}

			if set.IsDone() {
				t.Error("set was notified before the done callback")
			}

			calls = append(calls, "done")
		})

		m.OnRelease(func(e *Event) {
			if !set.IsDone() {
				t.Error("set was not notified before the release callback")
			}

			// The event may be reused from within the release callback.
			e.Reset()

			calls = append(calls, "release")
		})

		m.Activate()
		test.Expect(t, "unexpected calls after activation", calls, []string{"active"})

		m.Complete()
		test.Expect(t, "unexpected calls after completion", calls, []string{"active", "done", "release"})
		test.Expect(t, "unexpected state of released event", m.State(), StateInit)
	})

	t.Run("it does not release a concurrent waiter until the done callback returns", func(t *testing.T) {
		t.Parallel()

		e := New()
		e.Activate()

		var (
			entered  = make(chan struct{})
			proceed  = make(chan struct{})
			finished atomic.Bool
		)

		e.OnDone(func(*Event) {
			close(entered)
			<-proceed
			finished.Store(true)
		})

		go e.Complete()
		test.ExpectChannelToClose(t, entered)

		returned := make(chan struct{})
		go func() {
			e.Wait()
			if !finished.Load() {
				t.Error("waiter returned before the done callback finished")
			}
			close(returned)
		}()

		test.ExpectChannelToBlockForDuration(t, 20*time.Millisecond, returned)
		test.Expect(t, "unexpected done status during the done callback", e.IsDone(), false)

		close(proceed)
		test.ExpectChannelToClose(t, returned)
		test.Expect(t, "unexpected done status after the done callback", e.IsDone(), true)
	})

	t.Run("it calls the callbacks of a set", func(t *testing.T) {
		t.Parallel()

		var calls []string

		set := New()
		set.OnActive(func(*Event) { calls = append(calls, "active") })
		set.OnDone(func(*Event) { calls = append(calls, "done") })

		m := New()
		if err := set.MakeOrSet(); err != nil {
			t.Fatal(err)
		}
		if err := set.AddMember(m); err != nil {
			t.Fatal(err)
		}
		set.FinishMembership()

		test.Expect(t, "unexpected calls before completion", calls, []string{"active"})

		complete(m)
		test.Expect(t, "unexpected calls after completion", calls, []string{"active", "done"})
	})

	t.Run("it clears callbacks when the event is reset", func(t *testing.T) {
		t.Parallel()

		count := 0

		e := New()
		e.OnDone(func(*Event) { count++ })

		complete(e)
		e.Reset()
		complete(e)

		test.Expect(t, "unexpected number of calls", count, 1)
	})

	t.Run("func OnActive()", func(t *testing.T) {
		t.Parallel()

		t.Run("it panics if a callback is already registered", func(t *testing.T) {
			t.Parallel()

			e := New()
			e.OnActive(func(*Event) {})

			err := test.ExpectPanic[*ProtocolError](t, func() { e.OnActive(func(*Event) {}) })
			test.Expect(t, "unexpected reason", err.Reason, "callback is already registered")
		})

		t.Run("it panics if the event is already active", func(t *testing.T) {
			t.Parallel()

			e := New()
			e.Activate()

			test.ExpectPanic[*ProtocolError](t, func() { e.OnActive(func(*Event) {}) })
		})
	})

	t.Run("func OnDone()", func(t *testing.T) {
		t.Parallel()

		t.Run("it panics if the event is already done", func(t *testing.T) {
			t.Parallel()

			e := New()
			complete(e)

			err := test.ExpectPanic[*ProtocolError](t, func() { e.OnDone(func(*Event) {}) })
			test.Expect(t, "unexpected reason", err.Reason, "event is already done")
		})
	})

	t.Run("func OnRelease()", func(t *testing.T) {
		t.Parallel()

		t.Run("it panics if a callback is already registered", func(t *testing.T) {
			t.Parallel()

			e := New()
			e.OnRelease(func(*Event) {})

			test.ExpectPanic[*ProtocolError](t, func() { e.OnRelease(func(*Event) {}) })
		})
	})
}

func TestSync(t *testing.T) {
	t.Parallel()

	t.Run("it blocks until the event is completed by another goroutine", func(t *testing.T) {
		t.Parallel()

		var result int

		Sync(func(e *Event) {
			e.Activate()

			go func() {
				result = 42
				e.Complete()
			}()
		})

		test.Expect(t, "unexpected result", result, 42)
	})

	t.Run("it supports sets", func(t *testing.T) {
		t.Parallel()

		members := newEvents(3)
		for _, m := range members {
			m.Activate()
		}

		Sync(func(e *Event) {
			if err := e.MakeAndSet(); err != nil {
				t.Error(err)
				return
			}

			for _, m := range members {
				if err := e.AddMember(m); err != nil {
					t.Error(err)
					return
				}
			}

			e.FinishMembership()

			for _, m := range members {
				go m.Complete()
			}
		})

		for _, m := range members {
			expectDone(t, m, true)
		}
	})
}
