package debugger

import (
	"errors"

	"gopkg.in/yaml.v2"

	"github.com/eclipse-che/debugd/pkg/proc"
	"github.com/eclipse-che/debugd/pkg/store"
)

// DefaultStoreKey is used when Config.StoreKey is empty.
const DefaultStoreKey = "breakpoints/default"

type savedBreakpoint struct {
	ID       int    `yaml:"id"`
	File     string `yaml:"file"`
	Line     int    `yaml:"line"`
	Enabled  bool   `yaml:"enabled"`
	Cond     string `yaml:"cond,omitempty"`
	HitCount int    `yaml:"hitCount,omitempty"`
}

func (d *Debugger) storeKey() string {
	if d.config.StoreKey != "" {
		return d.config.StoreKey
	}
	return DefaultStoreKey
}

// loadBreakpoints reads the saved breakpoints. Persistence is best effort,
// failures are logged.
func (d *Debugger) loadBreakpoints() {
	if d.config.Store == nil {
		return
	}
	ctx, cancel := d.actionContext()
	defer cancel()
	data, err := d.config.Store.Load(ctx, d.storeKey())
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		d.log.Warnf("could not load breakpoints: %v", err)
		return
	}
	var saved []savedBreakpoint
	if err := yaml.Unmarshal(data, &saved); err != nil {
		d.log.Warnf("could not decode breakpoints: %v", err)
		return
	}
	for _, s := range saved {
		bp, err := proc.NewBreakpointWithOptions(proc.Location{File: s.File, Line: s.Line}, s.Enabled, s.Cond, s.HitCount)
		if err != nil {
			d.log.Warnf("skipping saved breakpoint %d: %v", s.ID, err)
			continue
		}
		if _, err := d.bps.AddWithID(s.ID, bp); err != nil {
			d.log.Warnf("skipping saved breakpoint %d: %v", s.ID, err)
		}
	}
}

// saveBreakpoints writes every breakpoint that is not transient.
func (d *Debugger) saveBreakpoints() {
	if d.config.Store == nil {
		return
	}
	saved := []savedBreakpoint{}
	for _, lbp := range d.bps.List() {
		if lbp.Transient {
			continue
		}
		bp := lbp.Breakpoint
		saved = append(saved, savedBreakpoint{
			ID:       lbp.LogicalID,
			File:     bp.Location().File,
			Line:     bp.Location().Line,
			Enabled:  bp.Enabled(),
			Cond:     bp.Cond(),
			HitCount: bp.HitCount(),
		})
	}
	data, err := yaml.Marshal(saved)
	if err != nil {
		d.log.Errorf("could not encode breakpoints: %v", err)
		return
	}
	ctx, cancel := d.actionContext()
	defer cancel()
	if err := d.config.Store.Save(ctx, d.storeKey(), data); err != nil {
		d.log.Warnf("could not save breakpoints: %v", err)
	}
}
