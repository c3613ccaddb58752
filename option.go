package completion

// An Option configures an [Event] created by [New].
type Option func(*Event)

// WithName is an [Option] that names the event. The name is used in
// diagnostics and telemetry only.
func WithName(n string) Option {
	return func(e *Event) {
		e.name = n
	}
}

// WithInstrumentation is an [Option] that records telemetry about the event
// using i.
func WithInstrumentation(i *Instrumentation) Option {
	if i == nil {
		panic("instrumentation must not be nil")
	}

	return func(e *Event) {
		e.inst = i
	}
}

// WithMemberLimit is an [Option] that limits the number of members the event
// may hold when it is used as a set. Exceeding the limit is reported as
// [ErrMembershipExhausted].
//
// By default there is no limit.
func WithMemberLimit(n int) Option {
	if n <= 0 {
		panic("member limit must be positive")
	}

	return func(e *Event) {
		e.limit = n
	}
}
