package proc

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Process represents the connection to a debuggee. Implementations must be
// safe for concurrent use, every method that talks to the debuggee honors
// the deadline of ctx.
type Process interface {
	// Attach connects to the debuggee. The debuggee does not run until the
	// first resuming Command.
	Attach(ctx context.Context) error
	// Command asks the debuggee to resume or stop. It returns as soon as
	// the debuggee acknowledged the request, the resulting stop is
	// reported through Events.
	Command(ctx context.Context, cmd Command) error
	SetBreakpoint(ctx context.Context, loc Location) error
	ClearBreakpoint(ctx context.Context, loc Location) error
	// Events returns the notifications of the current connection. The
	// channel is closed when the connection ends.
	Events() <-chan Event
	// Detach ends the connection.
	Detach(ctx context.Context) error
}

// Evaluator evaluates expressions in the context of a stack frame of a
// suspended debuggee.
type Evaluator interface {
	Evaluate(ctx context.Context, frame Frame, expr string) (*Variable, error)
	SetVariable(ctx context.Context, frame Frame, name, value string) error
}

// VariableLister is implemented by evaluators that can enumerate the
// variables visible in a frame.
type VariableLister interface {
	Variables(ctx context.Context, frame Frame) ([]Variable, error)
}

// CommandKind is the kind of execution control request sent to a
// debuggee.
type CommandKind uint8

const (
	Continue CommandKind = iota
	Next
	Step
	StepOut
	Halt
)

func (k CommandKind) String() string {
	switch k {
	case Continue:
		return "continue"
	case Next:
		return "next"
	case Step:
		return "step"
	case StepOut:
		return "stepout"
	case Halt:
		return "halt"
	}
	return fmt.Sprintf("CommandKind(%d)", uint8(k))
}

// Command is an execution control request.
type Command struct {
	Kind CommandKind
	// Proceed resumes an execution that stopped at a breakpoint the
	// debugger decided to skip. A step in progress keeps going.
	Proceed bool
}

// EventKind is the kind of notification sent by a debuggee.
type EventKind uint8

const (
	EventSuspended EventKind = iota
	EventResumed
	EventExited
)

func (k EventKind) String() string {
	switch k {
	case EventSuspended:
		return "suspended"
	case EventResumed:
		return "resumed"
	case EventExited:
		return "exited"
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// StopReason says why a debuggee suspended.
type StopReason uint8

const (
	StopBreakpoint StopReason = iota
	StopStep
	StopPause
	StopEntry
)

func (r StopReason) String() string {
	switch r {
	case StopBreakpoint:
		return "breakpoint"
	case StopStep:
		return "step"
	case StopPause:
		return "pause"
	case StopEntry:
		return "entry"
	}
	return fmt.Sprintf("StopReason(%d)", uint8(r))
}

// Event is an asynchronous notification from the debuggee.
type Event struct {
	Kind     EventKind
	Reason   StopReason
	Location Location
	ThreadID int
	// Breakpoint is the location of the breakpoint that was reached, if any.
	Breakpoint *Location
	ExitStatus int
	// Err is set on EventExited when the connection was lost.
	Err error
}

// Frame identifies a stack frame of a suspended debuggee.
type Frame struct {
	Location Location
	ThreadID int
	Index    int
}

// Variable is the result of an evaluation.
type Variable struct {
	Name     string
	Kind     string
	Value    string
	Children []Variable
}

// Bool interprets v as the result of a breakpoint condition.
func (v *Variable) Bool() (bool, error) {
	switch strings.ToLower(v.Value) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("condition expression not boolean: %s %s", v.Kind, v.Value)
}

// TransportError reports that the connection to the debuggee is lost.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: connection lost: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrProcessExited is returned by a Process whose debuggee terminated.
var ErrProcessExited = errors.New("process exited")

// ErrNotAttached is returned by a Process used before Attach or after Detach.
var ErrNotAttached = errors.New("not attached")

// IsTransportError returns true if err reports a lost connection.
func IsTransportError(err error) bool {
	var terr *TransportError
	return errors.As(err, &terr)
}
