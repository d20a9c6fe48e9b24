package api

import (
	"github.com/eclipse-che/debugd/pkg/proc"
)

// ConvertLogicalBreakpoint converts a proc.LogicalBreakpoint into an API
// breakpoint.
func ConvertLogicalBreakpoint(lbp *proc.LogicalBreakpoint) *Breakpoint {
	bp := lbp.Breakpoint
	return &Breakpoint{
		ID:            lbp.LogicalID,
		File:          bp.Location().File,
		Line:          bp.Location().Line,
		Disabled:      !bp.Enabled(),
		Cond:          bp.Cond(),
		HitCount:      bp.HitCount(),
		TotalHitCount: lbp.TotalHitCount,
		Remaining:     lbp.Remaining(),
		Transient:     lbp.Transient,
	}
}

// ConvertLocation converts a proc.Location into an API location.
func ConvertLocation(loc proc.Location) *Location {
	return &Location{File: loc.File, Line: loc.Line}
}

// ProcLocation is the inverse of ConvertLocation.
func (loc *Location) ProcLocation() proc.Location {
	return proc.Location{File: loc.File, Line: loc.Line}
}

// ConvertVar converts a proc.Variable into an API variable.
func ConvertVar(v *proc.Variable) *Variable {
	r := &Variable{Name: v.Name, Kind: v.Kind, Value: v.Value}
	if len(v.Children) > 0 {
		r.Children = make([]Variable, len(v.Children))
		for i := range v.Children {
			r.Children[i] = *ConvertVar(&v.Children[i])
		}
	}
	return r
}
