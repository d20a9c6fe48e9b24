// Package wsagent exposes a proc.Process over a websocket so that a
// debugger can drive a debuggee running in another container, and
// implements the matching proc.Process client.
//
// Every websocket message is a JSON encoded message. Requests carry an id
// echoed by their response, events are sent by the agent whenever the
// debuggee reports one.
package wsagent

import (
	"encoding/json"
	"errors"

	"github.com/eclipse-che/debugd/pkg/proc"
)

// Methods of the agent.
const (
	MethodAttach          = "attach"
	MethodCommand         = "command"
	MethodSetBreakpoint   = "setBreakpoint"
	MethodClearBreakpoint = "clearBreakpoint"
	MethodDetach          = "detach"
	MethodEvaluate        = "evaluate"
	MethodSetVariable     = "setVariable"
	MethodVariables       = "variables"
)

const (
	typeRequest  = "request"
	typeResponse = "response"
	typeEvent    = "event"
)

type message struct {
	Type   string          `json:"type"`
	ID     int             `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	// Transport is set on errors of the agent's debuggee connection.
	Transport bool `json:"transport,omitempty"`
	// Timeout is set on errors caused by the agent's action timeout.
	Timeout bool   `json:"timeout,omitempty"`
	Event   *event `json:"event,omitempty"`
}

type location struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

func fromLocation(loc proc.Location) location { return location{File: loc.File, Line: loc.Line} }

func (l location) proc() proc.Location { return proc.Location{File: l.File, Line: l.Line} }

type frame struct {
	Location location `json:"location"`
	ThreadID int      `json:"threadID"`
	Index    int      `json:"index"`
}

func fromFrame(f proc.Frame) frame {
	return frame{Location: fromLocation(f.Location), ThreadID: f.ThreadID, Index: f.Index}
}

func (f frame) proc() proc.Frame {
	return proc.Frame{Location: f.Location.proc(), ThreadID: f.ThreadID, Index: f.Index}
}

type commandParams struct {
	Kind    proc.CommandKind `json:"kind"`
	Proceed bool             `json:"proceed,omitempty"`
}

type evaluateParams struct {
	Frame frame  `json:"frame"`
	Expr  string `json:"expr"`
}

type setVariableParams struct {
	Frame frame  `json:"frame"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

type event struct {
	Kind       proc.EventKind  `json:"kind"`
	Reason     proc.StopReason `json:"reason"`
	Location   location        `json:"location"`
	ThreadID   int             `json:"threadID"`
	Breakpoint *location       `json:"breakpoint,omitempty"`
	ExitStatus int             `json:"exitStatus"`
	Err        string          `json:"err,omitempty"`
}

func fromEvent(ev proc.Event) *event {
	r := &event{
		Kind:       ev.Kind,
		Reason:     ev.Reason,
		Location:   fromLocation(ev.Location),
		ThreadID:   ev.ThreadID,
		ExitStatus: ev.ExitStatus,
	}
	if ev.Breakpoint != nil {
		bp := fromLocation(*ev.Breakpoint)
		r.Breakpoint = &bp
	}
	if ev.Err != nil {
		r.Err = ev.Err.Error()
	}
	return r
}

func (e *event) proc() proc.Event {
	r := proc.Event{
		Kind:       e.Kind,
		Reason:     e.Reason,
		Location:   e.Location.proc(),
		ThreadID:   e.ThreadID,
		ExitStatus: e.ExitStatus,
	}
	if e.Breakpoint != nil {
		bp := e.Breakpoint.proc()
		r.Breakpoint = &bp
	}
	if e.Err != "" {
		r.Err = &proc.TransportError{Op: "agent", Err: errors.New(e.Err)}
	}
	return r
}

type variable struct {
	Name     string     `json:"name"`
	Kind     string     `json:"kind"`
	Value    string     `json:"value"`
	Children []variable `json:"children,omitempty"`
}

func fromVariable(v proc.Variable) variable {
	r := variable{Name: v.Name, Kind: v.Kind, Value: v.Value}
	for _, c := range v.Children {
		r.Children = append(r.Children, fromVariable(c))
	}
	return r
}

func (v variable) proc() proc.Variable {
	r := proc.Variable{Name: v.Name, Kind: v.Kind, Value: v.Value}
	for _, c := range v.Children {
		r.Children = append(r.Children, c.proc())
	}
	return r
}
