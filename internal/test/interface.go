package test

import (
	"testing"

	"pgregory.net/rapid"
)

// TestingT is the subset of [testing.TB] used by helpers that register
// cleanup functions.
type TestingT interface {
	FailerT

	Cleanup(func())
}

// FailerT is the subset of [testing.TB] used by helpers that only need to
// fail the test. It is satisfied by *rapid.T so that the helpers can be used
// within property checks.
type FailerT interface {
	Helper()
	Log(...any)
	Logf(string, ...any)
	Fatal(...any)
	Fatalf(string, ...any)
	Error(...any)
	Errorf(string, ...any)
}

var (
	_ TestingT = (testing.TB)(nil)
	_ FailerT  = (*rapid.T)(nil)
)
