package rpc2

import (
	"context"
	"errors"
	"fmt"

	"github.com/eclipse-che/debugd/service"
	"github.com/eclipse-che/debugd/service/api"
	"github.com/eclipse-che/debugd/service/debugger"
)

type RPCServer struct {
	// config is all the information necessary to start the debugger and server.
	config *service.Config
	// debugger is a debugger service.
	debugger *debugger.Debugger
}

func NewServer(config *service.Config, debugger *debugger.Debugger) *RPCServer {
	return &RPCServer{config, debugger}
}

type AttachIn struct {
}

type AttachOut struct {
	State api.DebuggerState
}

// Attach connects the session to the debuggee and lets it run.
func (s *RPCServer) Attach(arg AttachIn, out *AttachOut) error {
	st, err := s.debugger.Attach()
	if err != nil {
		return err
	}
	out.State = *st
	return nil
}

type DetachIn struct {
}

type DetachOut struct {
}

// Detach disconnects the session from the debuggee. Breakpoints are kept.
func (s *RPCServer) Detach(arg DetachIn, out *DetachOut) error {
	return s.debugger.Detach()
}

type StateIn struct {
	// If NonBlocking is true State will return immediately even if the
	// debuggee is running.
	NonBlocking bool
}

type StateOut struct {
	State *api.DebuggerState
}

// State returns the current debugger state.
func (s *RPCServer) State(arg StateIn, cb service.RPCCallback) {
	close(cb.SetupDoneChan())
	var out StateOut
	if arg.NonBlocking {
		out.State = s.debugger.State()
		cb.Return(out, nil)
		return
	}
	st, err := s.debugger.Wait(context.Background())
	if err != nil {
		cb.Return(nil, err)
		return
	}
	out.State = st
	cb.Return(out, nil)
}

type CommandOut struct {
	State api.DebuggerState
}

// Command interrupts, continues and steps through the debuggee.
//
// Every command except halt waits for the debuggee to stop again before
// returning.
func (s *RPCServer) Command(command api.DebuggerCommand, cb service.RPCCallback) {
	st, err := s.debugger.Command(&command)
	close(cb.SetupDoneChan())
	if err != nil {
		cb.Return(nil, err)
		return
	}
	if command.Name != api.Halt {
		st, err = s.debugger.Wait(context.Background())
		if err != nil {
			cb.Return(nil, err)
			return
		}
	}
	cb.Return(CommandOut{State: *st}, nil)
}

type GetBreakpointIn struct {
	Id int
}

type GetBreakpointOut struct {
	Breakpoint api.Breakpoint
}

// GetBreakpoint gets a breakpoint by ID.
func (s *RPCServer) GetBreakpoint(arg GetBreakpointIn, out *GetBreakpointOut) error {
	bp := s.debugger.FindBreakpoint(arg.Id)
	if bp == nil {
		return fmt.Errorf("%w: %d", api.ErrNoBreakpoint, arg.Id)
	}
	out.Breakpoint = *bp
	return nil
}

type CreateBreakpointIn struct {
	Breakpoint api.Breakpoint
}

type CreateBreakpointOut struct {
	Breakpoint api.Breakpoint
}

// CreateBreakpoint creates a new breakpoint.
//
// - If arg.Breakpoint.File is empty the file of the current stop is used.
// - HitCount is 0 (never removed), N (removed after N hits) or -1
// (only active through RunTo).
func (s *RPCServer) CreateBreakpoint(arg CreateBreakpointIn, out *CreateBreakpointOut) error {
	if arg.Breakpoint.File == "" {
		st := s.debugger.State()
		if st.CurrentLocation == nil {
			return errors.New("no file given and the debuggee is not suspended")
		}
		arg.Breakpoint.File = st.CurrentLocation.File
	}
	createdbp, err := s.debugger.CreateBreakpoint(&arg.Breakpoint)
	if err != nil {
		return err
	}
	out.Breakpoint = *createdbp
	return nil
}

type ClearBreakpointIn struct {
	Id int
}

type ClearBreakpointOut struct {
	Breakpoint *api.Breakpoint
}

// ClearBreakpoint deletes a breakpoint by ID.
func (s *RPCServer) ClearBreakpoint(arg ClearBreakpointIn, out *ClearBreakpointOut) error {
	deleted, err := s.debugger.ClearBreakpoint(arg.Id)
	if err != nil {
		return err
	}
	out.Breakpoint = deleted
	return nil
}

type ClearAllBreakpointsIn struct {
}

type ClearAllBreakpointsOut struct {
	Breakpoints []*api.Breakpoint
}

// ClearAllBreakpoints deletes every breakpoint.
func (s *RPCServer) ClearAllBreakpoints(arg ClearAllBreakpointsIn, out *ClearAllBreakpointsOut) error {
	deleted, err := s.debugger.ClearAllBreakpoints()
	if err != nil {
		return err
	}
	out.Breakpoints = deleted
	return nil
}

type ToggleBreakpointIn struct {
	Id int
}

type ToggleBreakpointOut struct {
	Breakpoint *api.Breakpoint
}

// ToggleBreakpoint toggles on or off a breakpoint by ID.
func (s *RPCServer) ToggleBreakpoint(arg ToggleBreakpointIn, out *ToggleBreakpointOut) error {
	bp, err := s.debugger.ToggleBreakpoint(arg.Id)
	if err != nil {
		return err
	}
	out.Breakpoint = bp
	return nil
}

type AmendBreakpointIn struct {
	Breakpoint api.Breakpoint
}

type AmendBreakpointOut struct {
}

// AmendBreakpoint allows user to update an existing breakpoint
// for example to change the condition or the hit count.
//
// arg.Breakpoint.ID must be a valid breakpoint ID
func (s *RPCServer) AmendBreakpoint(arg AmendBreakpointIn, out *AmendBreakpointOut) error {
	return s.debugger.AmendBreakpoint(&arg.Breakpoint)
}

type ListBreakpointsIn struct {
}

type ListBreakpointsOut struct {
	Breakpoints []*api.Breakpoint
}

// ListBreakpoints gets all breakpoints.
func (s *RPCServer) ListBreakpoints(arg ListBreakpointsIn, out *ListBreakpointsOut) error {
	out.Breakpoints = s.debugger.Breakpoints()
	return nil
}

type EvalIn struct {
	Expr string
}

type EvalOut struct {
	Variable *api.Variable
}

// Eval returns a variable in the frame where the debuggee is suspended.
func (s *RPCServer) Eval(arg EvalIn, out *EvalOut) error {
	v, err := s.debugger.EvalVariable(arg.Expr)
	if err != nil {
		return err
	}
	out.Variable = v
	return nil
}

type SetIn struct {
	Symbol string
	Value  string
}

type SetOut struct {
}

// Set sets the value of a variable, Value is an expression evaluated in
// the frame where the debuggee is suspended.
func (s *RPCServer) Set(arg SetIn, out *SetOut) error {
	return s.debugger.SetVariable(arg.Symbol, arg.Value)
}

type ListLocalVarsIn struct {
}

type ListLocalVarsOut struct {
	Variables []api.Variable
}

// ListLocalVars lists all variables visible where the debuggee is
// suspended.
func (s *RPCServer) ListLocalVars(arg ListLocalVarsIn, out *ListLocalVarsOut) error {
	vars, err := s.debugger.LocalVariables()
	if err != nil {
		return err
	}
	out.Variables = vars
	return nil
}

type IsMulticlientIn struct {
}

type IsMulticlientOut struct {
	// IsMulticlient returns true if the headless instance was started with --accept-multiclient
	IsMulticlient bool
}

func (s *RPCServer) IsMulticlient(arg IsMulticlientIn, out *IsMulticlientOut) error {
	*out = IsMulticlientOut{
		IsMulticlient: s.config.AcceptMulti,
	}
	return nil
}
