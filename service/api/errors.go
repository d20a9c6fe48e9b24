package api

import (
	"errors"
	"fmt"

	"github.com/eclipse-che/debugd/pkg/proc"
)

var (
	// ErrInvalidState is matched by every InvalidStateError.
	ErrInvalidState = errors.New("invalid state")
	// ErrDisconnected is returned when the connection to the debuggee is
	// lost during an action.
	ErrDisconnected = errors.New("disconnected from the debuggee")
	// ErrTimeout is returned when the debuggee does not answer in time.
	// The session state is unchanged.
	ErrTimeout = errors.New("timed out waiting for the debuggee")
	// ErrNoBreakpoint is returned when a breakpoint ID is unknown.
	ErrNoBreakpoint = errors.New("no such breakpoint")
	// ErrInvalidHitCount is returned for hit counts lower than -1.
	ErrInvalidHitCount = proc.ErrInvalidHitCount
)

// InvalidStateError is returned when an action is not valid in the
// current session state.
type InvalidStateError struct {
	Action string
	State  SessionState
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("can not %s while %s", e.Action, e.State)
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// EvaluationError is returned when the evaluator fails an expression.
type EvaluationError struct {
	Expr string
	Err  error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("could not evaluate %q: %v", e.Expr, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }
