package lifecycle

import (
	"errors"
	"fmt"

	"github.com/gridshare/platform/internal/domain"
)

// Kind classifies why an operation is illegal in a state.
type Kind int

const (
	// PastState means the operation belongs to a stage the request has left.
	PastState Kind = iota
	// FutureState means the prerequisite stage has not been reached yet.
	FutureState
)

func (k Kind) String() string {
	if k == PastState {
		return "already past"
	}
	return "not yet reached"
}

var (
	ErrPastState   = errors.New("operation already past")
	ErrFutureState = errors.New("operation not yet reached")
	// ErrUnexpectedOutcome is returned when an operation is legal but the
	// requested target status is not one of its outcomes.
	ErrUnexpectedOutcome = errors.New("unexpected transition outcome")
)

// TransitionError reports an illegal lifecycle transition. It names the
// attempted operation, the current state and whether the operation is past
// or future relative to that state. Target is set when a concrete status
// change was rejected.
type TransitionError struct {
	Operation Operation
	State     domain.Status
	Target    domain.Status
	Kind      Kind
}

func (e *TransitionError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("illegal transition %s -> %s (%s): %s", e.State, e.Target, e.Operation, e.Kind)
	}
	return fmt.Sprintf("cannot %s permission request in state %s: %s", e.Operation, e.State, e.Kind)
}

// Is matches ErrPastState and ErrFutureState by kind.
func (e *TransitionError) Is(target error) bool {
	switch target {
	case ErrPastState:
		return e.Kind == PastState
	case ErrFutureState:
		return e.Kind == FutureState
	}
	return false
}
