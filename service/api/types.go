package api

// SessionState is the state of a debug session.
type SessionState string

const (
	// StateDisconnected means no debuggee is attached.
	StateDisconnected SessionState = "disconnected"
	// StateRunning means the debuggee is attached and executing.
	StateRunning SessionState = "running"
	// StateSuspended means the debuggee is attached and stopped.
	StateSuspended SessionState = "suspended"
)

// DebuggerState represents the current context of the debugger.
type DebuggerState struct {
	// SessionID identifies the debugger instance.
	SessionID string       `json:"sessionID"`
	State     SessionState `json:"state"`
	// Running is true if the debuggee is executing.
	Running bool `json:"running"`
	// CurrentLocation is where the debuggee is suspended, nil otherwise.
	CurrentLocation *Location `json:"currentLocation,omitempty"`
	ThreadID        int       `json:"threadID,omitempty"`
	// StopReason is why the debuggee suspended: breakpoint, step, pause or
	// entry.
	StopReason string `json:"stopReason,omitempty"`
	// Breakpoint is the current breakpoint at which the debugged process is
	// suspended, and may be empty if the process is not suspended.
	Breakpoint *Breakpoint `json:"breakPoint,omitempty"`
	// CondError is the error encountered while evaluating the condition of
	// Breakpoint.
	CondError string `json:"condError,omitempty"`
	// Exited indicates whether the debugged process has exited.
	Exited     bool `json:"exited"`
	ExitStatus int  `json:"exitStatus"`

	// Filled by RPCClient.Continue, indicates an error
	Err error `json:"-"`
}

// Breakpoint addresses a location at which process execution may be
// suspended.
type Breakpoint struct {
	// ID is a unique identifier for the breakpoint.
	ID int `json:"id"`
	// File is the source file for the breakpoint.
	File string `json:"file"`
	// Line is a line in File for the breakpoint.
	Line int `json:"line"`
	// Disabled breakpoints are kept but never suspend the debuggee.
	Disabled bool `json:"disabled"`
	// Cond is the condition that must be true for the breakpoint to
	// suspend the debuggee, empty for unconditional breakpoints.
	Cond string `json:"cond,omitempty"`
	// HitCount is the removal policy: 0 never, N after N satisfied hits,
	// -1 only active during a run to location.
	HitCount int `json:"hitCount"`
	// number of satisfied hits observed since the debuggee was attached
	TotalHitCount uint64 `json:"totalHitCount"`
	// Remaining is the number of satisfied hits left before removal, -1
	// if the breakpoint is not removed by hits.
	Remaining int `json:"remaining"`
	// Transient breakpoints were created by a run to location.
	Transient bool `json:"transient,omitempty"`
}

// Location is a position in the debuggee's source.
type Location struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// Variable describes the result of an evaluation.
type Variable struct {
	// Name of the variable or expression.
	Name string `json:"name"`
	// Kind is the type name reported by the evaluator.
	Kind string `json:"kind"`
	// Value is the printable value.
	Value string `json:"value"`
	// Children are the elements of containers.
	Children []Variable `json:"children,omitempty"`
}

// DebuggerCommand is a command which changes the debugger's execution state.
type DebuggerCommand struct {
	// Name is the command to run.
	Name string `json:"name"`
	// Location is the location spec for RunTo.
	Location string `json:"location,omitempty"`
}

const (
	// Continue resumes process execution.
	Continue = "continue"
	// Next continues to the next source line, not entering function calls.
	Next = "next"
	// Step continues to the next source line, entering function calls.
	Step = "step"
	// StepOut continues to the return address of the current function.
	StepOut = "stepOut"
	// Halt suspends the process.
	Halt = "halt"
	// RunTo continues to Location and suspends there.
	RunTo = "runTo"
)

// GetVersionIn is the argument of GetVersion.
type GetVersionIn struct {
}

// GetVersionOut is the result of GetVersion.
type GetVersionOut struct {
	DebugdVersion string
	APIVersion    int
}

// SetAPIVersionIn is the argument of SetApiVersion.
type SetAPIVersionIn struct {
	APIVersion int
}

// SetAPIVersionOut is the result of SetApiVersion.
type SetAPIVersionOut struct {
}
