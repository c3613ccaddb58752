package completion

import (
	"errors"
	"fmt"
)

// ErrMembershipExhausted is returned when a set cannot hold any more members.
//
// It is the only error that the set operations return. Misuse of the API is
// reported by panicking with a [*ProtocolError].
var ErrMembershipExhausted = errors.New("set membership is exhausted")

// ProtocolError is the panic value used when an operation is called on an
// [Event] whose state does not satisfy the operation's precondition.
//
// It always indicates a defect in the calling code.
type ProtocolError struct {
	// Op is the name of the operation that was called, such as "Complete".
	Op string

	// Event is a description of the event at the time of the call.
	Event string

	// Reason describes the precondition that did not hold.
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf(
		"completion protocol violation: %s on %s: %s",
		e.Op,
		e.Event,
		e.Reason,
	)
}
