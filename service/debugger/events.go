package debugger

import (
	"context"
	"errors"
	"fmt"

	"github.com/eclipse-che/debugd/pkg/proc"
	"github.com/eclipse-che/debugd/service/api"
)

// handleEvents merges the notifications of connection gen into the state
// machine.
func (d *Debugger) handleEvents(gen int, events <-chan proc.Event) {
	for ev := range events {
		d.sessionMutex.Lock()
		if d.gen == gen {
			d.handleEvent(ev)
		}
		d.sessionMutex.Unlock()
	}
	d.sessionMutex.Lock()
	defer d.sessionMutex.Unlock()
	if d.gen == gen && d.connected() {
		d.log.Warn("debuggee closed the connection")
		d.lost()
	}
}

func (d *Debugger) handleEvent(ev proc.Event) {
	d.log.Debugf("event %s %s at %s", ev.Kind, ev.Reason, ev.Location)
	switch ev.Kind {
	case proc.EventResumed:
		if d.state == api.StateSuspended {
			d.state = api.StateRunning
			d.stop = nil
		}
	case proc.EventExited:
		if ev.Err != nil {
			d.log.Errorf("connection lost: %v", ev.Err)
		} else {
			d.log.Infof("debuggee exited with status %d", ev.ExitStatus)
			d.exited = true
			d.exitStatus = ev.ExitStatus
		}
		d.lost()
	case proc.EventSuspended:
		if d.state == api.StateSuspended {
			// adapters may report the same stop twice
			return
		}
		d.suspended(ev)
	}
}

func (d *Debugger) suspended(ev proc.Event) {
	stop := &stopInfo{location: ev.Location, threadID: ev.ThreadID, reason: ev.Reason}

	var lbp *proc.LogicalBreakpoint
	if ev.Breakpoint != nil {
		lbp = d.bps.AtLocation(*ev.Breakpoint)
	}

	if ev.Reason == proc.StopBreakpoint {
		if lbp == nil || !lbp.Active() {
			d.proceed(stop)
			return
		}
		bpstate := d.checkCondition(lbp, stop)
		if !d.connected() {
			return
		}
		if !bpstate.Active && bpstate.CondError == nil {
			d.proceed(stop)
			return
		}
		stop.bpstate = bpstate
	} else if lbp != nil && lbp.Active() {
		// A step or a pause ending on a breakpoint counts as a hit when
		// the condition holds.
		stop.bpstate = d.checkCondition(lbp, stop)
		if !d.connected() {
			return
		}
	}

	if stop.bpstate != nil {
		d.log.Debugf("stopped at %s", stop.bpstate)
	}
	d.state = api.StateSuspended
	d.stop = stop
	d.notify()
}

// proceed resumes the debuggee after a stop that must not suspend the
// session. If the debuggee can not be resumed the session is suspended
// at the stop.
func (d *Debugger) proceed(stop *stopInfo) {
	ctx, cancel := d.actionContext()
	defer cancel()
	err := d.target.Command(ctx, proc.Command{Kind: proc.Continue, Proceed: true})
	if err == nil {
		return
	}
	if proc.IsTransportError(err) {
		d.remoteErr("continue", err)
		return
	}
	d.log.Warnf("could not resume past %s: %v", stop.location, err)
	d.state = api.StateSuspended
	d.stop = stop
	d.notify()
}

// checkCondition evaluates the condition of lbp and applies its hit count
// policy. A false condition does not consume the budget. A condition that
// can not be evaluated suspends the debuggee without consuming the budget.
func (d *Debugger) checkCondition(lbp *proc.LogicalBreakpoint, stop *stopInfo) *proc.BreakpointState {
	bpstate := &proc.BreakpointState{LogicalBreakpoint: lbp}
	if cond := lbp.Breakpoint.Cond(); cond != "" && !lbp.Armed() {
		ok, err := d.evalCondition(cond, stop)
		if err != nil {
			bpstate.CondError = err
			return bpstate
		}
		if !ok {
			return bpstate
		}
	}
	bpstate.Active = true
	if lbp.Hit() {
		bpstate.Removed = true
		d.log.Debugf("breakpoint %d exhausted after %d hits", lbp.LogicalID, lbp.TotalHitCount)
		if err := d.clearRemote(lbp); err != nil {
			if !d.connected() {
				return bpstate
			}
			d.log.Warnf("could not clear breakpoint %d: %v", lbp.LogicalID, err)
		}
		d.bps.Remove(lbp.LogicalID)
		d.saveBreakpoints()
	}
	return bpstate
}

func (d *Debugger) evalCondition(cond string, stop *stopInfo) (bool, error) {
	if d.evaluator == nil {
		return false, errors.New("no expression evaluator")
	}
	ctx, cancel := d.actionContext()
	defer cancel()
	v, err := d.evaluator.Evaluate(ctx, proc.Frame{Location: stop.location, ThreadID: stop.threadID}, cond)
	if err != nil {
		if proc.IsTransportError(err) {
			d.remoteErr("evaluate condition", err)
			return false, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return false, fmt.Errorf("evaluating %q: %w", cond, api.ErrTimeout)
		}
		return false, &api.EvaluationError{Expr: cond, Err: err}
	}
	return v.Bool()
}
