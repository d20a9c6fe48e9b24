package service

import (
	"github.com/eclipse-che/debugd/service/api"
)

// Client represents a debugger service client. All client methods are
// synchronous.
type Client interface {
	// Attach connects the session to the debuggee (Che "debug" action).
	Attach() (*api.DebuggerState, error)
	// Detach disconnects the session from the debuggee, breakpoints are
	// kept.
	Detach() error
	// Disconnect closes the connection to the server, if cont is true a
	// suspended debuggee is resumed first.
	Disconnect(cont bool) error

	// GetState returns the current debugger state, waiting for the
	// debuggee to stop if it is running.
	GetState() (*api.DebuggerState, error)
	// GetStateNonBlocking returns the current debugger state, returning immediately if the target is already running.
	GetStateNonBlocking() (*api.DebuggerState, error)

	// Continue resumes the debuggee and waits for the next stop.
	Continue() (*api.DebuggerState, error)
	// Next continues to the next source line, not entering function calls.
	Next() (*api.DebuggerState, error)
	// Step continues to the next source line, entering function calls.
	Step() (*api.DebuggerState, error)
	// StepOut continues to the return address of the current function.
	StepOut() (*api.DebuggerState, error)
	// RunTo resumes until loc is reached.
	RunTo(loc string) (*api.DebuggerState, error)
	// Halt suspends the debuggee.
	Halt() (*api.DebuggerState, error)

	// GetBreakpoint gets a breakpoint by ID.
	GetBreakpoint(id int) (*api.Breakpoint, error)
	// CreateBreakpoint creates a new breakpoint.
	CreateBreakpoint(*api.Breakpoint) (*api.Breakpoint, error)
	// ListBreakpoints gets all breakpoints.
	ListBreakpoints() ([]*api.Breakpoint, error)
	// ClearBreakpoint deletes a breakpoint by ID.
	ClearBreakpoint(id int) (*api.Breakpoint, error)
	// ClearAllBreakpoints deletes every breakpoint.
	ClearAllBreakpoints() ([]*api.Breakpoint, error)
	// ToggleBreakpoint enables or disables a breakpoint.
	ToggleBreakpoint(id int) (*api.Breakpoint, error)
	// AmendBreakpoint changes the enabled flag, condition and hit count
	// of an existing breakpoint.
	AmendBreakpoint(*api.Breakpoint) error

	// EvalVariable evaluates expr where the debuggee is suspended.
	EvalVariable(expr string) (*api.Variable, error)
	// SetVariable sets the value of a variable.
	SetVariable(name, value string) error
	// ListLocalVariables lists the variables visible where the debuggee
	// is suspended.
	ListLocalVariables() ([]api.Variable, error)

	// GetVersion returns the version of the server.
	GetVersion() (*api.GetVersionOut, error)
	// IsMulticlient returns true if the headless instance is multiclient.
	IsMulticlient() bool
}
