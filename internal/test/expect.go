package test

import (
	"fmt"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Expect compares two values and fails the test if they are different.
func Expect[T any](
	t FailerT,
	failMessage string,
	got, want T,
	transforms ...func(T) T,
) {
	t.Helper()

	for _, fn := range transforms {
		got = fn(got)
		want = fn(want)
	}

	if diff := cmp.Diff(
		want,
		got,
		cmpopts.EquateEmpty(),
		cmpopts.EquateErrors(),
	); diff != "" {
		t.Log(failMessage)
		t.Fatal(diff)
	}
}

// ExpectPanic calls fn and fails the test unless it panics with a value of
// type P. It returns the recovered value.
func ExpectPanic[P any](t FailerT, fn func()) (p P) {
	t.Helper()

	defer func() {
		t.Helper()

		r := recover()
		if r == nil {
			t.Fatalf("expected a panic of type %T, but the function returned", p)
			return
		}

		v, ok := r.(P)
		if !ok {
			panic(fmt.Sprintf("expected a panic of type %T, got %T: %v", p, r, r))
		}

		p = v
	}()

	fn()
	return p
}

// ExpectChannelToClose waits until a channel is closed.
func ExpectChannelToClose[T any](
	t TestingT,
	ch <-chan T,
) {
	t.Helper()

	select {
	case <-time.After(channelTimeout):
		t.Fatalf("channel was not closed within %s", channelTimeout)
	case got, ok := <-ch:
		if ok {
			var want T // zero value
			Expect(
				t,
				"channel received a value while expecting channel to be closed",
				got,
				want,
			)
		}
	}
}

// ExpectChannelToBlockForDuration expects reading from the channel to block
// until the given duration elapses.
func ExpectChannelToBlockForDuration[T any](
	t TestingT,
	d time.Duration,
	ch <-chan T,
) {
	t.Helper()

	select {
	case <-time.After(d):
		// success! duration elapsed without receiving a value
	case _, ok := <-ch:
		if ok {
			t.Error("channel received a value while expecting channel to block")
		} else {
			t.Error("channel closed while expecting channel to block")
		}
	}
}

// ExpectChannelWouldBlock expects reading from the channel would block.
func ExpectChannelWouldBlock[T any](
	t TestingT,
	ch <-chan T,
) {
	t.Helper()

	select {
	default:
		// success! there is no value available on the channel
	case _, ok := <-ch:
		if ok {
			t.Error("channel received a value while expecting channel to block")
		} else {
			t.Error("channel closed while expecting channel to block")
		}
	}
}

const channelTimeout = 10 * time.Second
