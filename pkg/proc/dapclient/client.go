// Package dapclient implements a proc.Process that drives a debuggee
// through a Debug Adapter Protocol server, for example a language
// specific debug adapter running next to the debuggee.
package dapclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/google/go-dap"

	"github.com/eclipse-che/debugd/pkg/logflags"
	"github.com/eclipse-che/debugd/pkg/proc"
)

// Options configures the connection to a debug adapter.
type Options struct {
	// Addr is the TCP address of the debug adapter.
	Addr string
	// Attach sends an attach request instead of a launch request.
	Attach bool
	// Arguments are the implementation specific arguments of the launch
	// or attach request.
	Arguments map[string]interface{}
	// MaxVariableDepth bounds how many levels of children are loaded by
	// Evaluate, zero means 2.
	MaxVariableDepth int
}

// Process is a debuggee behind a debug adapter.
type Process struct {
	opts Options
	log  logflags.Logger

	mu   sync.Mutex
	conn *connection
}

var (
	_ proc.Process        = &Process{}
	_ proc.Evaluator      = &Process{}
	_ proc.VariableLister = &Process{}
)

// New returns a detached Process for the debug adapter at opts.Addr.
func New(opts Options) *Process {
	if opts.MaxVariableDepth <= 0 {
		opts.MaxVariableDepth = 2
	}
	return &Process{opts: opts, log: logflags.TransportLogger("dap")}
}

// Attach connects to the debug adapter and starts a debug session. The
// configuration sequence is ended by the first resuming command, so
// breakpoints set in between are installed before the debuggee runs.
func (p *Process) Attach(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return errors.New("already attached")
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.opts.Addr)
	if err != nil {
		return &proc.TransportError{Op: "attach", Err: err}
	}
	c := newConnection(conn, p.log)
	go c.readLoop()
	go c.eventLoop()

	init := &dap.InitializeRequest{Request: c.newRequest("initialize")}
	init.Arguments = dap.InitializeRequestArguments{
		ClientID:        "debugd",
		AdapterID:       "debugd",
		PathFormat:      "path",
		LinesStartAt1:   true,
		ColumnsStartAt1: true,
	}
	if _, err := c.call(ctx, init); err != nil {
		c.close()
		return err
	}

	args, err := json.Marshal(p.opts.Arguments)
	if err != nil {
		c.close()
		return err
	}
	var start dap.Message
	if p.opts.Attach {
		start = &dap.AttachRequest{Request: c.newRequest("attach"), Arguments: args}
	} else {
		start = &dap.LaunchRequest{Request: c.newRequest("launch"), Arguments: args}
	}
	if _, err := c.call(ctx, start); err != nil {
		c.close()
		return err
	}
	p.conn = c
	p.log.Debugf("attached to %s", p.opts.Addr)
	return nil
}

func (p *Process) current(op string) (*connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil, proc.ErrNotAttached
	}
	select {
	case <-p.conn.done:
		return nil, &proc.TransportError{Op: op, Err: p.conn.err()}
	default:
	}
	return p.conn, nil
}

// Command implements proc.Process. Proceed sends the previous resuming
// command again.
func (p *Process) Command(ctx context.Context, cmd proc.Command) error {
	c, err := p.current("command")
	if err != nil {
		return err
	}
	c.mu.Lock()
	kind := cmd.Kind
	if cmd.Proceed {
		kind = c.lastCmd
	} else if kind != proc.Halt {
		c.lastCmd = kind
	}
	configured := c.configured
	threadID := c.threadID
	wasStopped := c.stopped
	if kind != proc.Halt {
		c.configured = true
		c.stopped = false
	}
	c.mu.Unlock()

	if !configured && kind != proc.Halt {
		// The debuggee starts with the end of the configuration.
		_, err := c.call(ctx, &dap.ConfigurationDoneRequest{Request: c.newRequest("configurationDone")})
		return err
	}

	var req dap.Message
	switch kind {
	case proc.Continue:
		r := &dap.ContinueRequest{Request: c.newRequest("continue")}
		r.Arguments.ThreadId = threadID
		req = r
	case proc.Next:
		r := &dap.NextRequest{Request: c.newRequest("next")}
		r.Arguments.ThreadId = threadID
		req = r
	case proc.Step:
		r := &dap.StepInRequest{Request: c.newRequest("stepIn")}
		r.Arguments.ThreadId = threadID
		req = r
	case proc.StepOut:
		r := &dap.StepOutRequest{Request: c.newRequest("stepOut")}
		r.Arguments.ThreadId = threadID
		req = r
	case proc.Halt:
		r := &dap.PauseRequest{Request: c.newRequest("pause")}
		r.Arguments.ThreadId = threadID
		req = r
	default:
		return fmt.Errorf("unsupported command %s", kind)
	}
	if _, err := c.call(ctx, req); err != nil {
		if !proc.IsTransportError(err) && kind != proc.Halt {
			c.mu.Lock()
			c.stopped = wasStopped
			c.mu.Unlock()
		}
		return err
	}
	return nil
}

// SetBreakpoint implements proc.Process.
func (p *Process) SetBreakpoint(ctx context.Context, loc proc.Location) error {
	return p.updateBreakpoints(ctx, loc, true)
}

// ClearBreakpoint implements proc.Process.
func (p *Process) ClearBreakpoint(ctx context.Context, loc proc.Location) error {
	return p.updateBreakpoints(ctx, loc, false)
}

// updateBreakpoints sends the breakpoints of loc.File with loc added or
// removed. DAP replaces the breakpoints of a file as a whole.
func (p *Process) updateBreakpoints(ctx context.Context, loc proc.Location, set bool) error {
	c, err := p.current("set breakpoints")
	if err != nil {
		return err
	}
	c.bpMu.Lock()
	defer c.bpMu.Unlock()

	lines := make(map[int]bool)
	for l := range c.bps[loc.File] {
		lines[l] = true
	}
	if set {
		lines[loc.Line] = true
	} else {
		delete(lines, loc.Line)
	}
	sorted := make([]int, 0, len(lines))
	for l := range lines {
		sorted = append(sorted, l)
	}
	sort.Ints(sorted)

	req := &dap.SetBreakpointsRequest{Request: c.newRequest("setBreakpoints")}
	req.Arguments.Source = dap.Source{Path: loc.File}
	req.Arguments.Breakpoints = make([]dap.SourceBreakpoint, len(sorted))
	for i, l := range sorted {
		req.Arguments.Breakpoints[i].Line = l
	}
	resp, err := c.call(ctx, req)
	if err != nil {
		return err
	}
	got := resp.(*dap.SetBreakpointsResponse).Body.Breakpoints
	if len(got) != len(sorted) {
		return fmt.Errorf("set breakpoints: got %d breakpoints for %d lines", len(got), len(sorted))
	}

	installed := make(map[int]bool, len(sorted))
	var failure error
	c.mu.Lock()
	for i, bp := range got {
		if !bp.Verified {
			if sorted[i] == loc.Line && set {
				failure = fmt.Errorf("breakpoint at %s not verified: %s", loc, bp.Message)
			}
			continue
		}
		installed[sorted[i]] = true
		if bp.Id != 0 {
			c.bpIDs[bp.Id] = proc.Location{File: loc.File, Line: sorted[i]}
		}
	}
	c.mu.Unlock()
	c.bps[loc.File] = installed
	return failure
}

// Events implements proc.Process.
func (p *Process) Events() <-chan proc.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		ch := make(chan proc.Event)
		close(ch)
		return ch
	}
	return p.conn.events
}

// Detach implements proc.Process. The debug adapter is asked to end the
// session before the connection is closed.
func (p *Process) Detach(ctx context.Context) error {
	p.mu.Lock()
	c := p.conn
	p.conn = nil
	p.mu.Unlock()
	if c == nil {
		return proc.ErrNotAttached
	}
	defer c.close()
	select {
	case <-c.done:
		return nil
	default:
	}
	if _, err := c.call(ctx, &dap.DisconnectRequest{Request: c.newRequest("disconnect")}); err != nil {
		p.log.Debugf("disconnect: %v", err)
	}
	p.log.Debug("detached")
	return nil
}

func (p *Process) frameID(op string, frame proc.Frame) (*connection, int, error) {
	c, err := p.current(op)
	if err != nil {
		return nil, 0, err
	}
	if frame.Index != 0 {
		return nil, 0, fmt.Errorf("frame %d does not exist", frame.Index)
	}
	c.mu.Lock()
	id, ok := c.frameID, c.stopped
	c.mu.Unlock()
	if !ok {
		return nil, 0, errors.New("process is running")
	}
	return c, id, nil
}

// Evaluate implements proc.Evaluator.
func (p *Process) Evaluate(ctx context.Context, frame proc.Frame, expr string) (*proc.Variable, error) {
	c, id, err := p.frameID("evaluate", frame)
	if err != nil {
		return nil, err
	}
	req := &dap.EvaluateRequest{Request: c.newRequest("evaluate")}
	req.Arguments.Expression = expr
	req.Arguments.FrameId = id
	req.Arguments.Context = "watch"
	resp, err := c.call(ctx, req)
	if err != nil {
		return nil, err
	}
	body := resp.(*dap.EvaluateResponse).Body
	v := &proc.Variable{Name: expr, Kind: body.Type, Value: body.Result}
	if body.VariablesReference > 0 {
		if v.Children, err = c.variables(ctx, body.VariablesReference, p.opts.MaxVariableDepth-1); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// SetVariable implements proc.Evaluator.
func (p *Process) SetVariable(ctx context.Context, frame proc.Frame, name, value string) error {
	c, id, err := p.frameID("set variable", frame)
	if err != nil {
		return err
	}
	ref, err := c.localsReference(ctx, id)
	if err != nil {
		return err
	}
	req := &dap.SetVariableRequest{Request: c.newRequest("setVariable")}
	req.Arguments.VariablesReference = ref
	req.Arguments.Name = name
	req.Arguments.Value = value
	_, err = c.call(ctx, req)
	return err
}

// Variables implements proc.VariableLister.
func (p *Process) Variables(ctx context.Context, frame proc.Frame) ([]proc.Variable, error) {
	c, id, err := p.frameID("variables", frame)
	if err != nil {
		return nil, err
	}
	ref, err := c.localsReference(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.variables(ctx, ref, p.opts.MaxVariableDepth)
}
