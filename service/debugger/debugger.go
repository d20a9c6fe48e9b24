package debugger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eclipse-che/debugd/pkg/config"
	"github.com/eclipse-che/debugd/pkg/locspec"
	"github.com/eclipse-che/debugd/pkg/logflags"
	"github.com/eclipse-che/debugd/pkg/proc"
	"github.com/eclipse-che/debugd/pkg/store"
	"github.com/eclipse-che/debugd/service/api"
)

// Debugger service.
//
// Debugger drives a proc.Process through the debug session state machine
// (disconnected, running, suspended) and owns the session's breakpoints.
// It handles converting from internal types to the types expected by
// clients.
//
// Every action and every notification coming from the debuggee is
// serialized by sessionMutex. Every call to the debuggee is bounded by
// Config.ActionTimeout.
type Debugger struct {
	config    *Config
	target    proc.Process
	evaluator proc.Evaluator
	log       logflags.Logger
	id        string

	sessionMutex sync.Mutex
	state        api.SessionState
	bps          proc.BreakpointMap
	stop         *stopInfo
	exited       bool
	exitStatus   int
	closed       bool
	// gen identifies the current connection, notifications of older
	// connections are dropped.
	gen int
	// stopped is closed and replaced every time the session leaves the
	// running state.
	stopped chan struct{}
}

// Config provides the configuration to start a Debugger.
type Config struct {
	// ActionTimeout bounds every call made to the debuggee. Zero means
	// config.DefaultActionTimeout.
	ActionTimeout time.Duration

	// Store persists breakpoints, may be nil.
	Store store.Store
	// StoreKey is the key breakpoints are saved under.
	StoreKey string

	// SubstitutePath rewrites the paths of locations sent by clients.
	SubstitutePath config.SubstitutePathRules
}

type stopInfo struct {
	location proc.Location
	threadID int
	reason   proc.StopReason
	bpstate  *proc.BreakpointState
}

// New creates a new Debugger controlling target. If evaluator is nil and
// target implements proc.Evaluator the target is used to evaluate
// expressions. Breakpoints saved in config.Store are loaded.
func New(config *Config, target proc.Process, evaluator proc.Evaluator) (*Debugger, error) {
	if target == nil {
		return nil, errors.New("no target")
	}
	if evaluator == nil {
		evaluator, _ = target.(proc.Evaluator)
	}
	d := &Debugger{
		config:    config,
		target:    target,
		evaluator: evaluator,
		log:       logflags.DebuggerLogger(),
		id:        uuid.NewString(),
		state:     api.StateDisconnected,
		bps:       proc.NewBreakpointMap(),
		stopped:   make(chan struct{}),
	}
	d.loadBreakpoints()
	d.log.Debugf("session %s created with %d breakpoints", d.id, len(d.bps.M))
	return d, nil
}

// SessionID returns the identifier of this debugger.
func (d *Debugger) SessionID() string {
	return d.id
}

func (d *Debugger) actionContext() (context.Context, context.CancelFunc) {
	timeout := d.config.ActionTimeout
	if timeout <= 0 {
		timeout = config.DefaultActionTimeout
	}
	return context.WithTimeout(context.Background(), timeout)
}

// remoteErr converts the error returned by a call to the debuggee. A
// timeout leaves the session state unchanged, a lost connection moves the
// session to disconnected.
func (d *Debugger) remoteErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		d.log.Warnf("%s: %v", op, err)
		return fmt.Errorf("%s: %w", op, api.ErrTimeout)
	case proc.IsTransportError(err):
		d.log.Errorf("%s: %v", op, err)
		d.lost()
		return fmt.Errorf("%s: %w: %v", op, api.ErrDisconnected, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (d *Debugger) connected() bool {
	return d.state != api.StateDisconnected
}

func (d *Debugger) checkState(action string, allowed ...api.SessionState) error {
	for _, s := range allowed {
		if d.state == s {
			return nil
		}
	}
	return &api.InvalidStateError{Action: action, State: d.state}
}

// notify wakes up everybody blocked in Wait.
func (d *Debugger) notify() {
	close(d.stopped)
	d.stopped = make(chan struct{})
}

// setDisconnected ends the current connection. Run to location
// breakpoints do not survive it.
func (d *Debugger) setDisconnected() {
	d.state = api.StateDisconnected
	d.stop = nil
	d.gen++
	for _, lbp := range d.bps.Armed() {
		if lbp.Transient {
			d.bps.Remove(lbp.LogicalID)
		} else {
			d.bps.Disarm(lbp.LogicalID)
		}
	}
	d.notify()
}

// lost handles the loss of the connection.
func (d *Debugger) lost() {
	if !d.connected() {
		return
	}
	d.setDisconnected()
	ctx, cancel := d.actionContext()
	defer cancel()
	if err := d.target.Detach(ctx); err != nil {
		d.log.Debugf("detach after connection loss: %v", err)
	}
}

// Attach connects to the debuggee, installs every breakpoint and lets the
// debuggee run.
func (d *Debugger) Attach() (*api.DebuggerState, error) {
	d.sessionMutex.Lock()
	defer d.sessionMutex.Unlock()

	if d.closed {
		return nil, errors.New("debugger closed")
	}
	if err := d.checkState("attach", api.StateDisconnected); err != nil {
		return nil, err
	}

	ctx, cancel := d.actionContext()
	defer cancel()

	d.log.Infof("attaching, session %s", d.id)
	if err := d.target.Attach(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("attach: %w", api.ErrTimeout)
		}
		return nil, fmt.Errorf("could not attach: %w", err)
	}

	abort := func(op string, err error) error {
		dctx, dcancel := d.actionContext()
		defer dcancel()
		d.target.Detach(dctx)
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%s: %w", op, api.ErrTimeout)
		}
		if proc.IsTransportError(err) {
			return fmt.Errorf("%s: %w: %v", op, api.ErrDisconnected, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	d.bps.ResetHitCounts()
	for _, lbp := range d.bps.List() {
		loc := lbp.Breakpoint.Location()
		if err := d.target.SetBreakpoint(ctx, loc); err != nil {
			if errors.Is(err, context.DeadlineExceeded) || proc.IsTransportError(err) {
				return nil, abort("set breakpoint", err)
			}
			d.log.Warnf("could not install breakpoint %d at %s: %v", lbp.LogicalID, loc, err)
		}
	}

	d.gen++
	go d.handleEvents(d.gen, d.target.Events())

	if err := d.target.Command(ctx, proc.Command{Kind: proc.Continue}); err != nil {
		d.gen++
		return nil, abort("continue", err)
	}
	d.state = api.StateRunning
	d.exited = false
	d.exitStatus = 0
	return d.stateLocked(), nil
}

// Detach disconnects from the debuggee. Breakpoints are kept and installed
// again by the next Attach.
func (d *Debugger) Detach() error {
	d.sessionMutex.Lock()
	defer d.sessionMutex.Unlock()
	return d.detach()
}

func (d *Debugger) detach() error {
	if err := d.checkState("disconnect", api.StateRunning, api.StateSuspended); err != nil {
		return err
	}
	ctx, cancel := d.actionContext()
	defer cancel()
	if err := d.target.Detach(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("disconnect: %w", api.ErrTimeout)
		}
		d.log.Warnf("disconnect: %v", err)
	}
	d.log.Infof("disconnected, session %s", d.id)
	d.setDisconnected()
	return nil
}

// Close ends the session. The debuggee is detached and the in memory
// breakpoints are discarded, saved breakpoints are left in the store.
func (d *Debugger) Close() error {
	d.sessionMutex.Lock()
	defer d.sessionMutex.Unlock()
	if d.closed {
		return nil
	}
	var err error
	if d.connected() {
		err = d.detach()
	}
	d.closed = true
	d.bps.Clear()
	return err
}

// State returns the current state of the session.
func (d *Debugger) State() *api.DebuggerState {
	d.sessionMutex.Lock()
	defer d.sessionMutex.Unlock()
	return d.stateLocked()
}

func (d *Debugger) stateLocked() *api.DebuggerState {
	s := &api.DebuggerState{
		SessionID:  d.id,
		State:      d.state,
		Running:    d.state == api.StateRunning,
		Exited:     d.exited,
		ExitStatus: d.exitStatus,
	}
	if d.stop != nil {
		s.CurrentLocation = api.ConvertLocation(d.stop.location)
		s.ThreadID = d.stop.threadID
		s.StopReason = d.stop.reason.String()
		if st := d.stop.bpstate; st != nil && (st.Active || st.CondError != nil) {
			s.Breakpoint = api.ConvertLogicalBreakpoint(st.LogicalBreakpoint)
			if st.CondError != nil {
				s.CondError = st.CondError.Error()
			}
		}
	}
	return s
}

// Wait blocks until the session leaves the running state or ctx is done.
func (d *Debugger) Wait(ctx context.Context) (*api.DebuggerState, error) {
	d.sessionMutex.Lock()
	if d.state != api.StateRunning {
		s := d.stateLocked()
		d.sessionMutex.Unlock()
		return s, nil
	}
	ch := d.stopped
	d.sessionMutex.Unlock()

	select {
	case <-ch:
		return d.State(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var commandKinds = map[string]proc.CommandKind{
	api.Continue: proc.Continue,
	api.Next:     proc.Next,
	api.Step:     proc.Step,
	api.StepOut:  proc.StepOut,
	api.RunTo:    proc.Continue,
	api.Halt:     proc.Halt,
}

// Command handles commands which control the debugger lifecycle. It
// returns once the debuggee acknowledged the command, use Wait to block
// until the debuggee stops.
func (d *Debugger) Command(command *api.DebuggerCommand) (*api.DebuggerState, error) {
	d.sessionMutex.Lock()
	defer d.sessionMutex.Unlock()

	kind, ok := commandKinds[command.Name]
	if !ok {
		return nil, fmt.Errorf("unknown command %q", command.Name)
	}

	if kind == proc.Halt {
		if err := d.checkState(command.Name, api.StateRunning, api.StateSuspended); err != nil {
			return nil, err
		}
		if d.state == api.StateSuspended {
			return d.stateLocked(), nil
		}
		d.log.Debug("halting")
		ctx, cancel := d.actionContext()
		defer cancel()
		if err := d.target.Command(ctx, proc.Command{Kind: proc.Halt}); err != nil {
			return nil, d.remoteErr(command.Name, err)
		}
		return d.stateLocked(), nil
	}

	if err := d.checkState(command.Name, api.StateSuspended); err != nil {
		return nil, err
	}

	var runTo *proc.Location
	if command.Name == api.RunTo {
		loc, err := locspec.Resolve(command.Location, &d.stop.location, d.config.SubstitutePath)
		if err != nil {
			return nil, err
		}
		runTo = &loc
	}

	armed := d.bps.Armed()
	var target *proc.LogicalBreakpoint
	undo := func() {}
	if runTo != nil {
		var err error
		target, undo, err = d.arm(*runTo)
		if err != nil {
			return nil, err
		}
	}

	d.log.Debugf("%s", command.Name)
	ctx, cancel := d.actionContext()
	defer cancel()
	if err := d.target.Command(ctx, proc.Command{Kind: kind}); err != nil {
		err = d.remoteErr(command.Name, err)
		undo()
		return nil, err
	}
	d.state = api.StateRunning
	d.stop = nil
	d.disarm(armed, target)
	return d.stateLocked(), nil
}

// disarm ends the run to location of the previous command once the
// debuggee resumed. Armed breakpoints with hit count -1 are removed, the
// others go back to their own policy. keep is the target of the new run to
// location, if any.
func (d *Debugger) disarm(armed []*proc.LogicalBreakpoint, keep *proc.LogicalBreakpoint) {
	save := false
	for _, lbp := range armed {
		if lbp == keep {
			continue
		}
		if lbp.Breakpoint.HitCount() != proc.HitCountRunTo {
			d.bps.Disarm(lbp.LogicalID)
			continue
		}
		if err := d.clearRemote(lbp); err != nil {
			d.log.Warnf("could not clear breakpoint %d: %v", lbp.LogicalID, err)
		}
		d.bps.Remove(lbp.LogicalID)
		if !lbp.Transient {
			save = true
		}
	}
	if keep != nil {
		d.bps.Arm(keep.LogicalID)
	}
	if save {
		d.saveBreakpoints()
	}
}

// arm sets up a run to loc. The returned function reverts it and is used
// when the debuggee does not resume.
func (d *Debugger) arm(loc proc.Location) (*proc.LogicalBreakpoint, func(), error) {
	if lbp := d.bps.AtLocation(loc); lbp != nil {
		if lbp.Armed() {
			return lbp, func() {}, nil
		}
		d.bps.Arm(lbp.LogicalID)
		return lbp, func() { d.bps.Disarm(lbp.LogicalID) }, nil
	}
	if !loc.Valid() {
		return nil, nil, fmt.Errorf("invalid location %s", loc)
	}
	bp, err := proc.NewBreakpointWithOptions(loc, true, "", proc.HitCountRunTo)
	if err != nil {
		return nil, nil, err
	}
	if err := d.setRemote(loc); err != nil {
		return nil, nil, err
	}
	lbp, err := d.bps.Add(bp)
	if err != nil {
		return nil, nil, err
	}
	lbp.Transient = true
	d.bps.Arm(lbp.LogicalID)
	undo := func() {
		if err := d.clearRemote(lbp); err != nil {
			d.log.Debugf("could not clear run to breakpoint at %s: %v", loc, err)
		}
		d.bps.Remove(lbp.LogicalID)
	}
	return lbp, undo, nil
}

func (d *Debugger) setRemote(loc proc.Location) error {
	if !d.connected() {
		return nil
	}
	ctx, cancel := d.actionContext()
	defer cancel()
	return d.remoteErr("set breakpoint", d.target.SetBreakpoint(ctx, loc))
}

func (d *Debugger) clearRemote(lbp *proc.LogicalBreakpoint) error {
	if !d.connected() {
		return nil
	}
	ctx, cancel := d.actionContext()
	defer cancel()
	return d.remoteErr("clear breakpoint", d.target.ClearBreakpoint(ctx, lbp.Breakpoint.Location()))
}

func (d *Debugger) frame() proc.Frame {
	return proc.Frame{Location: d.stop.location, ThreadID: d.stop.threadID}
}

// EvalVariable evaluates expr in the frame where the debuggee is
// suspended.
func (d *Debugger) EvalVariable(expr string) (*api.Variable, error) {
	d.sessionMutex.Lock()
	defer d.sessionMutex.Unlock()

	if err := d.checkState("evaluate", api.StateSuspended); err != nil {
		return nil, err
	}
	if d.evaluator == nil {
		return nil, &api.EvaluationError{Expr: expr, Err: errors.New("no expression evaluator")}
	}
	ctx, cancel := d.actionContext()
	defer cancel()
	v, err := d.evaluator.Evaluate(ctx, d.frame(), expr)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || proc.IsTransportError(err) {
			return nil, d.remoteErr("evaluate", err)
		}
		return nil, &api.EvaluationError{Expr: expr, Err: err}
	}
	return api.ConvertVar(v), nil
}

// SetVariable changes the value of the variable called name.
func (d *Debugger) SetVariable(name, value string) error {
	d.sessionMutex.Lock()
	defer d.sessionMutex.Unlock()

	if err := d.checkState("change variable value", api.StateSuspended); err != nil {
		return err
	}
	expr := name + " = " + value
	if d.evaluator == nil {
		return &api.EvaluationError{Expr: expr, Err: errors.New("no expression evaluator")}
	}
	ctx, cancel := d.actionContext()
	defer cancel()
	if err := d.evaluator.SetVariable(ctx, d.frame(), name, value); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || proc.IsTransportError(err) {
			return d.remoteErr("set variable", err)
		}
		return &api.EvaluationError{Expr: expr, Err: err}
	}
	return nil
}

// LocalVariables returns the variables visible where the debuggee is
// suspended.
func (d *Debugger) LocalVariables() ([]api.Variable, error) {
	d.sessionMutex.Lock()
	defer d.sessionMutex.Unlock()

	if err := d.checkState("list variables", api.StateSuspended); err != nil {
		return nil, err
	}
	lister, ok := d.evaluator.(proc.VariableLister)
	if !ok {
		return nil, errors.New("the debuggee can not list variables")
	}
	ctx, cancel := d.actionContext()
	defer cancel()
	vars, err := lister.Variables(ctx, d.frame())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || proc.IsTransportError(err) {
			return nil, d.remoteErr("variables", err)
		}
		return nil, err
	}
	r := make([]api.Variable, len(vars))
	for i := range vars {
		r[i] = *api.ConvertVar(&vars[i])
	}
	return r, nil
}
