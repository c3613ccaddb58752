package test

import (
	"context"
	"time"
)

// ContextWithTimeout returns a context that is canceled after the given
// timeout, or when the test completes.
func ContextWithTimeout(
	t TestingT,
	timeout time.Duration,
) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)

	return ctx
}
