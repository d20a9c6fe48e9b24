// Package sim implements a proc.Process that executes a scripted program.
// It is used to run the debugger without a real debuggee.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/eclipse-che/debugd/pkg/eval"
	"github.com/eclipse-che/debugd/pkg/logflags"
	"github.com/eclipse-che/debugd/pkg/proc"
)

const threadID = 1

// Options configures a simulated debuggee.
type Options struct {
	// LineDelay is slept after every executed line.
	LineDelay time.Duration
	// StrictBreakpoints rejects breakpoints on lines the script does not
	// contain.
	StrictBreakpoints bool
}

// Process is a simulated debuggee.
type Process struct {
	script *Script
	opts   Options
	log    logflags.Logger

	mu   sync.Mutex
	conn *connection
}

var (
	_ proc.Process        = &Process{}
	_ proc.Evaluator      = &Process{}
	_ proc.VariableLister = &Process{}
)

type connection struct {
	events chan proc.Event
	cmds   chan proc.Command
	done   chan struct{}
	halt   *atomic.Bool

	// Protected by Process.mu.
	bps       map[proc.Location]bool
	scope     *eval.Scope
	pc        int
	stoppedAt bool
	running   bool
	exited    bool
	lost      error
	step      *stepState
}

type stepState struct {
	kind  proc.CommandKind
	depth int
}

func (s *stepState) done(depth int) bool {
	switch s.kind {
	case proc.Step:
		return true
	case proc.Next:
		return depth <= s.depth
	case proc.StepOut:
		return depth < s.depth
	}
	return false
}

// New returns a detached simulated debuggee running script.
func New(script *Script, opts Options) *Process {
	return &Process{script: script, opts: opts, log: logflags.TransportLogger("sim")}
}

func (p *Process) current(op string) (*connection, error) {
	c := p.conn
	if c == nil {
		return nil, proc.ErrNotAttached
	}
	if c.lost != nil {
		return nil, &proc.TransportError{Op: op, Err: c.lost}
	}
	if c.exited {
		return nil, &proc.TransportError{Op: op, Err: proc.ErrProcessExited}
	}
	return c, nil
}

// Attach starts a new run of the script. Breakpoints of a previous run are
// forgotten.
func (p *Process) Attach(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return errors.New("already attached")
	}
	scope, err := eval.NewScope(p.script.Vars)
	if err != nil {
		return err
	}
	c := &connection{
		events: make(chan proc.Event, 16),
		cmds:   make(chan proc.Command, 1),
		done:   make(chan struct{}),
		halt:   atomic.NewBool(false),
		bps:    make(map[proc.Location]bool),
		scope:  scope,
	}
	p.conn = c
	go p.loop(c)
	p.log.Debugf("attached, %d lines", len(p.script.Lines))
	return nil
}

// Command implements proc.Process.
func (p *Process) Command(ctx context.Context, cmd proc.Command) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.current("command")
	if err != nil {
		return err
	}
	if cmd.Kind == proc.Halt {
		if c.running {
			c.halt.Store(true)
		}
		return nil
	}
	if c.running {
		return errors.New("process is already running")
	}
	c.running = true
	c.halt.Store(false)
	c.cmds <- cmd
	return nil
}

// SetBreakpoint implements proc.Process.
func (p *Process) SetBreakpoint(ctx context.Context, loc proc.Location) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.current("set breakpoint")
	if err != nil {
		return err
	}
	if p.opts.StrictBreakpoints && !p.script.Has(loc) {
		return fmt.Errorf("no code at %s", loc)
	}
	c.bps[loc] = true
	return nil
}

// ClearBreakpoint implements proc.Process.
func (p *Process) ClearBreakpoint(ctx context.Context, loc proc.Location) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.current("clear breakpoint")
	if err != nil {
		return err
	}
	delete(c.bps, loc)
	return nil
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

// Detach implements proc.Process.
func (p *Process) Detach(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return proc.ErrNotAttached
	}
	if p.conn.lost == nil {
		close(p.conn.done)
	}
	p.conn = nil
	p.log.Debug("detached")
	return nil
}

// Sever simulates the loss of the connection to the debuggee.
func (p *Process) Sever(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.lost != nil {
		return
	}
	p.conn.lost = err
	close(p.conn.done)
}

// Evaluate implements proc.Evaluator.
func (p *Process) Evaluate(ctx context.Context, frame proc.Frame, expr string) (*proc.Variable, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.stopped("evaluate", frame)
	if err != nil {
		return nil, err
	}
	return c.scope.Eval(ctx, expr)
}

// SetVariable implements proc.Evaluator.
func (p *Process) SetVariable(ctx context.Context, frame proc.Frame, name, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.stopped("set variable", frame)
	if err != nil {
		return err
	}
	return c.scope.Set(ctx, name, value)
}

// Variables implements proc.VariableLister.
func (p *Process) Variables(ctx context.Context, frame proc.Frame) ([]proc.Variable, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.stopped("variables", frame)
	if err != nil {
		return nil, err
	}
	return c.scope.Variables(), nil
}

func (p *Process) stopped(op string, frame proc.Frame) (*connection, error) {
	c, err := p.current(op)
	if err != nil {
		return nil, err
	}
	if c.running {
		return nil, errors.New("process is running")
	}
	if frame.Index != 0 || (frame.ThreadID != 0 && frame.ThreadID != threadID) {
		return nil, fmt.Errorf("frame %d of thread %d does not exist", frame.Index, frame.ThreadID)
	}
	return c, nil
}

func (p *Process) loop(c *connection) {
	defer close(c.events)
	for {
		var cmd proc.Command
		select {
		case <-c.done:
			p.sendLost(c)
			return
		case cmd = <-c.cmds:
		}
		ev := p.run(c, cmd)
		select {
		case c.events <- ev:
		case <-c.done:
			p.sendLost(c)
			return
		}
		if ev.Kind == proc.EventExited {
			return
		}
	}
}

func (p *Process) sendLost(c *connection) {
	p.mu.Lock()
	lost := c.lost
	p.mu.Unlock()
	if lost == nil {
		return
	}
	select {
	case c.events <- proc.Event{Kind: proc.EventExited, Err: lost}:
	default:
	}
}

// run executes lines until the next stop.
func (p *Process) run(c *connection, cmd proc.Command) proc.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !cmd.Proceed || c.step == nil {
		c.step = nil
		if cmd.Kind != proc.Continue && c.pc < len(p.script.Lines) {
			c.step = &stepState{kind: cmd.Kind, depth: p.script.Lines[c.pc].Depth}
		}
	}
	p.log.Debugf("resume %s proceed=%v at pc %d", cmd.Kind, cmd.Proceed, c.pc)

	for {
		select {
		case <-c.done:
			return proc.Event{Kind: proc.EventExited, Err: c.lost}
		default:
		}
		if c.pc >= len(p.script.Lines) {
			return p.exit(c, 0)
		}
		line := &p.script.Lines[c.pc]
		if !c.stoppedAt {
			if ev, stop := p.checkStop(c, line); stop {
				c.running = false
				c.stoppedAt = true
				return ev
			}
		}
		c.stoppedAt = false

		if err := p.execute(c, line); err != nil {
			p.log.Errorf("%s: %v", line.Location(), err)
			return p.exit(c, 2)
		}

		// Let Halt and Sever in between lines.
		p.mu.Unlock()
		if p.opts.LineDelay > 0 {
			time.Sleep(p.opts.LineDelay)
		}
		p.mu.Lock()
	}
}

func (p *Process) checkStop(c *connection, line *Line) (proc.Event, bool) {
	loc := line.Location()
	ev := proc.Event{Kind: proc.EventSuspended, Location: loc, ThreadID: threadID}
	if c.bps[loc] {
		ev.Breakpoint = &loc
	}
	if c.halt.CAS(true, false) {
		c.step = nil
		ev.Reason = proc.StopPause
		return ev, true
	}
	if c.step != nil && c.step.done(line.Depth) {
		c.step = nil
		ev.Reason = proc.StopStep
		return ev, true
	}
	if ev.Breakpoint != nil {
		ev.Reason = proc.StopBreakpoint
		return ev, true
	}
	return ev, false
}

func (p *Process) execute(c *connection, line *Line) error {
	ctx := context.Background()
	if line.Exec != "" {
		if err := c.scope.Exec(ctx, line.Exec); err != nil {
			return err
		}
	}
	dst, jump := p.script.jumps[c.pc]
	if jump && line.If != "" {
		ok, err := c.scope.Truth(ctx, line.If)
		if err != nil {
			return err
		}
		jump = ok
	}
	if jump {
		c.pc = dst
	} else {
		c.pc++
	}
	return nil
}

func (p *Process) exit(c *connection, status int) proc.Event {
	c.running = false
	c.exited = true
	p.log.Debugf("exited with status %d", status)
	return proc.Event{Kind: proc.EventExited, ExitStatus: status}
}
