package completion_test

import (
	"strings"
	"testing"
	"time"

	. "github.com/dogmatiq/completion"
	"github.com/dogmatiq/completion/internal/test"
)

func TestEvent(t *testing.T) {
	t.Parallel()

	t.Run("func New()", func(t *testing.T) {
		t.Parallel()

		t.Run("it returns a simple event that is not done", func(t *testing.T) {
			t.Parallel()

			e := New()

			test.Expect(t, "unexpected state", e.State(), StateInit)
			test.Expect(t, "unexpected kind", e.Kind(), KindSimple)
			test.Expect(t, "did not expect event to be done", e.IsDone(), false)
		})

		t.Run("it names the event", func(t *testing.T) {
			t.Parallel()

			e := New(WithName("<name>"))

			test.Expect(
				t,
				"unexpected description",
				e.String(),
				`event "<name>" (simple, init)`,
			)
		})
	})

	t.Run("the zero value", func(t *testing.T) {
		t.Parallel()

		t.Run("it is a usable event", func(t *testing.T) {
			t.Parallel()

			var e Event

			e.Activate()
			e.Complete()

			test.Expect(t, "expected event to be done", e.IsDone(), true)
		})
	})

	t.Run("func Activate()", func(t *testing.T) {
		t.Parallel()

		t.Run("it does not complete the event", func(t *testing.T) {
			t.Parallel()

			e := New()
			e.Activate()

			test.Expect(t, "unexpected state", e.State(), StateActive)
			test.Expect(t, "did not expect event to be done", e.IsDone(), false)
			test.ExpectChannelWouldBlock(t, e.Done())
		})

		t.Run("it panics if the event is already active", func(t *testing.T) {
			t.Parallel()

			e := New()
			e.Activate()

			err := test.ExpectPanic[*ProtocolError](t, e.Activate)
			test.Expect(t, "unexpected operation", err.Op, "Activate")
			test.Expect(t, "unexpected reason", err.Reason, "event is active, want init")
		})

		t.Run("it panics if the event is done", func(t *testing.T) {
			t.Parallel()

			e := New()
			e.Activate()
			e.Complete()

			test.ExpectPanic[*ProtocolError](t, e.Activate)
		})

		t.Run("it panics if the event is a set", func(t *testing.T) {
			t.Parallel()

			e := New()
			if err := e.MakeAndSet(); err != nil {
				t.Fatal(err)
			}

			test.ExpectPanic[*ProtocolError](t, e.Activate)
		})
	})

	t.Run("func Complete()", func(t *testing.T) {
		t.Parallel()

		t.Run("it makes the event done", func(t *testing.T) {
			t.Parallel()

			e := New()
			done := e.Done()

			e.Activate()
			e.Complete()

			test.Expect(t, "unexpected state", e.State(), StateDone)
			test.Expect(t, "expected event to be done", e.IsDone(), true)
			test.ExpectChannelToClose(t, done)
		})

		t.Run("it panics if the event has not been activated", func(t *testing.T) {
			t.Parallel()

			e := New()

			err := test.ExpectPanic[*ProtocolError](t, e.Complete)
			test.Expect(t, "unexpected reason", err.Reason, "event is init, want active")
		})

		t.Run("it panics if the event is already done", func(t *testing.T) {
			t.Parallel()

			e := New()
			e.Activate()
			e.Complete()

			test.ExpectPanic[*ProtocolError](t, e.Complete)
		})

		t.Run("it panics if the event is a set", func(t *testing.T) {
			t.Parallel()

			e := New()
			if err := e.MakeOrSet(); err != nil {
				t.Fatal(err)
			}

			test.ExpectPanic[*ProtocolError](t, e.Complete)
		})
	})

	t.Run("func Wait()", func(t *testing.T) {
		t.Parallel()

		t.Run("it returns immediately if the event is done", func(t *testing.T) {
			t.Parallel()

			e := New()
			e.Activate()
			e.Complete()
			e.Wait()
		})

		t.Run("it blocks until the event is done", func(t *testing.T) {
			t.Parallel()

			e := New()
			e.Activate()

			returned := make(chan struct{})
			go func() {
				e.Wait()
				close(returned)
			}()

			test.ExpectChannelToBlockForDuration(t, 20*time.Millisecond, returned)

			e.Complete()

			test.ExpectChannelToClose(t, returned)
		})

		t.Run("it makes writes that happen before completion visible", func(t *testing.T) {
			t.Parallel()

			for range 100 {
				var result []string

				e := New()
				e.Activate()

				go func() {
					result = append(result, "<value>")
					e.Complete()
				}()

				e.Wait()

				test.Expect(t, "unexpected result", result, []string{"<value>"})
			}
		})
	})

	t.Run("func Done()", func(t *testing.T) {
		t.Parallel()

		t.Run("it returns the same channel until the event is reset", func(t *testing.T) {
			t.Parallel()

			e := New()
			before := e.Done()

			e.Activate()
			test.Expect(t, "expected the same channel", e.Done() == before, true)

			e.Complete()
			test.Expect(t, "expected the same channel", e.Done() == before, true)

			e.Reset()
			after := e.Done()

			test.Expect(t, "expected a new channel", after != before, true)
			test.ExpectChannelWouldBlock(t, after)
		})
	})

	t.Run("func Reset()", func(t *testing.T) {
		t.Parallel()

		t.Run("it allows the event to be reused", func(t *testing.T) {
			t.Parallel()

			e := New()

			for range 3 {
				e.Activate()
				test.Expect(t, "did not expect event to be done", e.IsDone(), false)

				e.Complete()
				test.Expect(t, "expected event to be done", e.IsDone(), true)

				e.Reset()
				test.Expect(t, "unexpected state", e.State(), StateInit)
				test.Expect(t, "did not expect event to be done", e.IsDone(), false)
			}
		})

		t.Run("it allows a set to be reused as a simple event", func(t *testing.T) {
			t.Parallel()

			m := New()
			m.Activate()
			m.Complete()

			e := New()
			if err := e.MakeOrSet(); err != nil {
				t.Fatal(err)
			}
			if err := e.AddMember(m); err != nil {
				t.Fatal(err)
			}
			e.FinishMembership()

			e.Reset()

			test.Expect(t, "unexpected kind", e.Kind(), KindSimple)

			e.Activate()
			e.Complete()

			test.Expect(t, "expected event to be done", e.IsDone(), true)
		})

		t.Run("it panics if the event is not done", func(t *testing.T) {
			t.Parallel()

			e := New()
			test.ExpectPanic[*ProtocolError](t, e.Reset)

			e.Activate()
			test.ExpectPanic[*ProtocolError](t, e.Reset)
		})
	})

	t.Run("func Destroy()", func(t *testing.T) {
		t.Parallel()

		t.Run("it accepts an event that is not in progress", func(t *testing.T) {
			t.Parallel()

			New().Destroy()

			e := New()
			e.Activate()
			e.Complete()
			e.Destroy()
		})

		t.Run("it panics if the event is in progress", func(t *testing.T) {
			t.Parallel()

			e := New()
			e.Activate()

			err := test.ExpectPanic[*ProtocolError](t, e.Destroy)
			test.Expect(t, "unexpected reason", err.Reason, "event is in progress")
		})

		t.Run("it causes any further operation to panic", func(t *testing.T) {
			t.Parallel()

			cases := []struct {
				Desc string
				Op   func(*Event)
			}{
				{"Activate", (*Event).Activate},
				{"Complete", (*Event).Complete},
				{"Reset", (*Event).Reset},
				{"Destroy", (*Event).Destroy},
				{"Done", func(e *Event) { e.Done() }},
				{"MakeAndSet", func(e *Event) { _ = e.MakeAndSet() }},
				{"MakeOrSet", func(e *Event) { _ = e.MakeOrSet() }},
				{"FinishMembership", (*Event).FinishMembership},
				{"TriggeringMember", func(e *Event) { e.TriggeringMember() }},
				{"OnDone", func(e *Event) { e.OnDone(func(*Event) {}) }},
			}

			for _, c := range cases {
				t.Run(c.Desc, func(t *testing.T) {
					t.Parallel()

					e := New()
					e.Destroy()

					err := test.ExpectPanic[*ProtocolError](t, func() { c.Op(e) })
					test.Expect(t, "unexpected operation", err.Op, c.Desc)
					test.Expect(t, "unexpected reason", err.Reason, "event has been destroyed")
				})
			}
		})

		t.Run("it reports the event as destroyed", func(t *testing.T) {
			t.Parallel()

			e := New()
			e.Destroy()

			test.Expect(t, "unexpected state", e.State().String(), "destroyed")
			test.Expect(t, "did not expect event to be done", e.IsDone(), false)
		})

		t.Run("it does not affect a newly created event", func(t *testing.T) {
			t.Parallel()

			old := New()
			old.Destroy()

			e := New()
			e.Activate()
			e.Complete()

			test.Expect(t, "expected new event to be done", e.IsDone(), true)
			test.Expect(t, "unexpected state of destroyed event", old.State().String(), "destroyed")
		})
	})

	t.Run("type ProtocolError", func(t *testing.T) {
		t.Parallel()

		t.Run("it describes the operation, the event and the violation", func(t *testing.T) {
			t.Parallel()

			e := New(WithName("<name>"))

			err := test.ExpectPanic[*ProtocolError](t, e.Complete)

			test.Expect(
				t,
				"unexpected error message",
				err.Error(),
				`completion protocol violation: Complete on event "<name>" (simple, init): event is init, want active`,
			)
		})

		t.Run("it describes unnamed events by address", func(t *testing.T) {
			t.Parallel()

			err := test.ExpectPanic[*ProtocolError](t, New().Complete)

			if !strings.HasPrefix(err.Event, "event 0x") {
				t.Fatalf("unexpected event description: %s", err.Event)
			}
		})
	})
}
