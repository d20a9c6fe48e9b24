package debugger

import (
	"errors"
	"fmt"

	"github.com/eclipse-che/debugd/pkg/proc"
	"github.com/eclipse-che/debugd/service/api"
)

// CreateBreakpoint creates a breakpoint. It is installed in the debuggee
// right away when connected. A breakpoint is never added if the debuggee
// refused it. Creating a breakpoint where a run to location is pending
// takes over the breakpoint of the run to location.
func (d *Debugger) CreateBreakpoint(requestedBp *api.Breakpoint) (*api.Breakpoint, error) {
	d.sessionMutex.Lock()
	defer d.sessionMutex.Unlock()

	loc := proc.Location{File: d.config.SubstitutePath.Substitute(requestedBp.File), Line: requestedBp.Line}
	if !loc.Valid() {
		return nil, fmt.Errorf("invalid location %s", loc)
	}
	bp, err := proc.NewBreakpointWithOptions(loc, !requestedBp.Disabled, requestedBp.Cond, requestedBp.HitCount)
	if err != nil {
		return nil, err
	}
	if other := d.bps.AtLocation(loc); other != nil {
		if !other.Transient {
			return nil, proc.BreakpointExistsError{Location: loc, ID: other.LogicalID}
		}
		// The run to location target becomes the requested breakpoint. It
		// is already installed in the debuggee.
		if err := d.bps.Replace(other.LogicalID, bp); err != nil {
			return nil, err
		}
		other.Transient = false
		d.bps.Disarm(other.LogicalID)
		d.log.Infof("created breakpoint %d: %s", other.LogicalID, bp)
		d.saveBreakpoints()
		return api.ConvertLogicalBreakpoint(other), nil
	}
	if err := d.setRemote(loc); err != nil {
		return nil, err
	}
	lbp, err := d.bps.Add(bp)
	if err != nil {
		return nil, err
	}
	d.log.Infof("created breakpoint %d: %s", lbp.LogicalID, bp)
	d.saveBreakpoints()
	return api.ConvertLogicalBreakpoint(lbp), nil
}

func (d *Debugger) findLocked(id int) (*proc.LogicalBreakpoint, error) {
	lbp, ok := d.bps.M[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", api.ErrNoBreakpoint, id)
	}
	return lbp, nil
}

// AmendBreakpoint changes the enabled flag, the condition and the hit
// count of an existing breakpoint. The location can not be changed.
// Changing the hit count starts a new budget.
func (d *Debugger) AmendBreakpoint(amend *api.Breakpoint) error {
	d.sessionMutex.Lock()
	defer d.sessionMutex.Unlock()

	lbp, err := d.findLocked(amend.ID)
	if err != nil {
		return err
	}
	loc := lbp.Breakpoint.Location()
	if (amend.File != "" && d.config.SubstitutePath.Substitute(amend.File) != loc.File) || (amend.Line != 0 && amend.Line != loc.Line) {
		return errors.New("the location of a breakpoint can not be changed")
	}
	bp, err := proc.NewBreakpointWithOptions(loc, !amend.Disabled, amend.Cond, amend.HitCount)
	if err != nil {
		return err
	}
	if err := d.bps.Replace(lbp.LogicalID, bp); err != nil {
		return err
	}
	d.saveBreakpoints()
	return nil
}

// ToggleBreakpoint flips the enabled flag of a breakpoint.
func (d *Debugger) ToggleBreakpoint(id int) (*api.Breakpoint, error) {
	d.sessionMutex.Lock()
	defer d.sessionMutex.Unlock()

	lbp, err := d.findLocked(id)
	if err != nil {
		return nil, err
	}
	lbp.Breakpoint.SetEnabled(!lbp.Breakpoint.Enabled())
	d.saveBreakpoints()
	return api.ConvertLogicalBreakpoint(lbp), nil
}

// ClearBreakpoint removes a breakpoint.
func (d *Debugger) ClearBreakpoint(id int) (*api.Breakpoint, error) {
	d.sessionMutex.Lock()
	defer d.sessionMutex.Unlock()

	lbp, err := d.findLocked(id)
	if err != nil {
		return nil, err
	}
	if err := d.clearRemote(lbp); err != nil {
		return nil, err
	}
	d.bps.Remove(id)
	d.log.Infof("cleared breakpoint %d", id)
	d.saveBreakpoints()
	return api.ConvertLogicalBreakpoint(lbp), nil
}

// ClearAllBreakpoints removes every breakpoint. If the debuggee fails to
// remove one of them the breakpoints already removed from the debuggee
// are installed again and nothing changes.
func (d *Debugger) ClearAllBreakpoints() ([]*api.Breakpoint, error) {
	d.sessionMutex.Lock()
	defer d.sessionMutex.Unlock()

	all := d.bps.List()
	for i, lbp := range all {
		if err := d.clearRemote(lbp); err != nil {
			if d.connected() {
				for _, done := range all[:i] {
					if rerr := d.setRemote(done.Breakpoint.Location()); rerr != nil {
						d.log.Warnf("could not restore breakpoint %d: %v", done.LogicalID, rerr)
						break
					}
				}
			}
			return nil, err
		}
	}
	r := make([]*api.Breakpoint, len(all))
	for i, lbp := range all {
		r[i] = api.ConvertLogicalBreakpoint(lbp)
	}
	d.bps.Clear()
	d.log.Infof("cleared %d breakpoints", len(r))
	d.saveBreakpoints()
	return r, nil
}

// Breakpoints returns the list of current breakpoints.
func (d *Debugger) Breakpoints() []*api.Breakpoint {
	d.sessionMutex.Lock()
	defer d.sessionMutex.Unlock()

	all := d.bps.List()
	r := make([]*api.Breakpoint, len(all))
	for i, lbp := range all {
		r[i] = api.ConvertLogicalBreakpoint(lbp)
	}
	return r
}

// FindBreakpoint returns the breakpoint specified by 'id', or nil.
func (d *Debugger) FindBreakpoint(id int) *api.Breakpoint {
	d.sessionMutex.Lock()
	defer d.sessionMutex.Unlock()

	lbp, ok := d.bps.M[id]
	if !ok {
		return nil
	}
	return api.ConvertLogicalBreakpoint(lbp)
}

// FindBreakpointByLocation returns the breakpoint set at file:line, or nil.
func (d *Debugger) FindBreakpointByLocation(file string, line int) *api.Breakpoint {
	d.sessionMutex.Lock()
	defer d.sessionMutex.Unlock()

	lbp := d.bps.AtLocation(proc.Location{File: d.config.SubstitutePath.Substitute(file), Line: line})
	if lbp == nil {
		return nil
	}
	return api.ConvertLogicalBreakpoint(lbp)
}
