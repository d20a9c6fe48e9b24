package debugger

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eclipse-che/debugd/pkg/proc"
	"github.com/eclipse-che/debugd/pkg/proc/sim"
	"github.com/eclipse-che/debugd/pkg/store"
	"github.com/eclipse-che/debugd/service/api"
)

const loopScript = `
vars:
  i: 0
lines:
  - {file: main.go, line: 3, func: main}
  - {line: 4, func: main, exec: "i = i + 1"}
  - {line: 10, func: work, depth: 1, exec: "j = i * 2"}
  - {line: 11, func: work, depth: 1}
  - {line: 5, func: main, if: "i < 5", goto: 4}
  - {line: 6, func: main}
`

const spinScript = `
vars:
  n: 0
lines:
  - {file: spin.go, line: 1, func: main, exec: "n = n + 1"}
  - {line: 2, func: main, goto: 1}
`

func newSimDebugger(t *testing.T, src string, cfg *Config) (*Debugger, *sim.Process) {
	t.Helper()
	script, err := sim.ParseScript([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	p := sim.New(script, sim.Options{})
	if cfg == nil {
		cfg = &Config{}
	}
	d, err := New(cfg, p, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	return d, p
}

func createBreakpoint(t *testing.T, d *Debugger, bp api.Breakpoint) *api.Breakpoint {
	t.Helper()
	r, err := d.CreateBreakpoint(&bp)
	if err != nil {
		t.Fatalf("CreateBreakpoint(%s:%d): %v", bp.File, bp.Line, err)
	}
	return r
}

func attach(t *testing.T, d *Debugger) {
	t.Helper()
	state, err := d.Attach()
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if state.State != api.StateRunning {
		t.Fatalf("state after attach: %s", state.State)
	}
}

func wait(t *testing.T, d *Debugger) *api.DebuggerState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, err := d.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	return state
}

func command(t *testing.T, d *Debugger, cmd *api.DebuggerCommand) *api.DebuggerState {
	t.Helper()
	if _, err := d.Command(cmd); err != nil {
		t.Fatalf("%s: %v", cmd.Name, err)
	}
	return wait(t, d)
}

func assertStoppedAt(t *testing.T, state *api.DebuggerState, file string, line int) {
	t.Helper()
	if state.State != api.StateSuspended {
		t.Fatalf("expected suspended session, got %s (exited=%v)", state.State, state.Exited)
	}
	if state.CurrentLocation == nil || state.CurrentLocation.File != file || state.CurrentLocation.Line != line {
		t.Fatalf("expected stop at %s:%d, got %#v", file, line, state.CurrentLocation)
	}
}

func assertExited(t *testing.T, state *api.DebuggerState) {
	t.Helper()
	if state.State != api.StateDisconnected || !state.Exited {
		t.Fatalf("expected exited debuggee, got %s (exited=%v)", state.State, state.Exited)
	}
}

func evalValue(t *testing.T, d *Debugger, expr string) string {
	t.Helper()
	v, err := d.EvalVariable(expr)
	if err != nil {
		t.Fatalf("EvalVariable(%q): %v", expr, err)
	}
	return v.Value
}

func TestUnlimitedBreakpoint(t *testing.T) {
	d, _ := newSimDebugger(t, loopScript, nil)
	bp := createBreakpoint(t, d, api.Breakpoint{File: "main.go", Line: 4})

	attach(t, d)
	state := wait(t, d)
	for i := 0; i < 5; i++ {
		assertStoppedAt(t, state, "main.go", 4)
		if state.StopReason != "breakpoint" {
			t.Fatalf("stop reason %q", state.StopReason)
		}
		if state.Breakpoint == nil || state.Breakpoint.ID != bp.ID {
			t.Fatalf("wrong breakpoint %#v", state.Breakpoint)
		}
		if state.Breakpoint.TotalHitCount != uint64(i+1) {
			t.Fatalf("total hit count %d, expected %d", state.Breakpoint.TotalHitCount, i+1)
		}
		if got := evalValue(t, d, "i"); got != string(rune('0'+i)) {
			t.Fatalf("i = %s at hit %d", got, i)
		}
		state = command(t, d, &api.DebuggerCommand{Name: api.Continue})
	}
	assertExited(t, state)
	if d.FindBreakpoint(bp.ID) == nil {
		t.Fatal("unlimited breakpoint was removed")
	}
}

func TestHitCountBreakpoint(t *testing.T) {
	d, _ := newSimDebugger(t, loopScript, nil)
	bp := createBreakpoint(t, d, api.Breakpoint{File: "main.go", Line: 4, HitCount: 2})

	attach(t, d)
	state := wait(t, d)
	assertStoppedAt(t, state, "main.go", 4)
	if state.Breakpoint.Remaining != 1 {
		t.Fatalf("remaining %d after first hit", state.Breakpoint.Remaining)
	}
	if d.FindBreakpoint(bp.ID) == nil {
		t.Fatal("breakpoint removed after first hit")
	}

	state = command(t, d, &api.DebuggerCommand{Name: api.Continue})
	assertStoppedAt(t, state, "main.go", 4)
	if state.Breakpoint == nil || state.Breakpoint.Remaining != 0 {
		t.Fatalf("wrong breakpoint after last hit %#v", state.Breakpoint)
	}
	if got := evalValue(t, d, "i"); got != "1" {
		t.Fatalf("i = %s", got)
	}
	if d.FindBreakpoint(bp.ID) != nil {
		t.Fatal("breakpoint not removed after its last hit")
	}

	state = command(t, d, &api.DebuggerCommand{Name: api.Continue})
	assertExited(t, state)
}

func TestConditionalBreakpoint(t *testing.T) {
	d, _ := newSimDebugger(t, loopScript, nil)
	bp := createBreakpoint(t, d, api.Breakpoint{File: "main.go", Line: 4, Cond: "i == 2", HitCount: 1})

	attach(t, d)
	state := wait(t, d)
	assertStoppedAt(t, state, "main.go", 4)
	if got := evalValue(t, d, "i"); got != "2" {
		t.Fatalf("stopped with i = %s", got)
	}
	if state.Breakpoint == nil || state.Breakpoint.TotalHitCount != 1 {
		t.Fatalf("false conditions counted as hits: %#v", state.Breakpoint)
	}
	if d.FindBreakpoint(bp.ID) != nil {
		t.Fatal("breakpoint not removed")
	}
	assertExited(t, command(t, d, &api.DebuggerCommand{Name: api.Continue}))
}

func TestConditionError(t *testing.T) {
	d, _ := newSimDebugger(t, loopScript, nil)
	bp := createBreakpoint(t, d, api.Breakpoint{File: "main.go", Line: 4, Cond: "nosuchvar > 1", HitCount: 1})

	attach(t, d)
	state := wait(t, d)
	assertStoppedAt(t, state, "main.go", 4)
	if state.CondError == "" {
		t.Fatal("condition error not reported")
	}
	if state.Breakpoint == nil || state.Breakpoint.Remaining != 1 {
		t.Fatalf("condition error consumed the budget: %#v", state.Breakpoint)
	}
	if d.FindBreakpoint(bp.ID) == nil {
		t.Fatal("breakpoint removed after a condition error")
	}
}

func TestDisabledBreakpoint(t *testing.T) {
	d, _ := newSimDebugger(t, loopScript, nil)
	createBreakpoint(t, d, api.Breakpoint{File: "main.go", Line: 4, Disabled: true})
	createBreakpoint(t, d, api.Breakpoint{File: "main.go", Line: 6})

	attach(t, d)
	state := wait(t, d)
	assertStoppedAt(t, state, "main.go", 6)
	if got := evalValue(t, d, "i"); got != "5" {
		t.Fatalf("i = %s", got)
	}
}

func TestRunToCursor(t *testing.T) {
	s := store.NewMemoryStore()
	d, _ := newSimDebugger(t, loopScript, &Config{Store: s})
	createBreakpoint(t, d, api.Breakpoint{File: "main.go", Line: 3, HitCount: 1})

	attach(t, d)
	assertStoppedAt(t, wait(t, d), "main.go", 3)

	state := command(t, d, &api.DebuggerCommand{Name: api.RunTo, Location: "11"})
	assertStoppedAt(t, state, "main.go", 11)
	if state.Breakpoint == nil || !state.Breakpoint.Transient {
		t.Fatalf("expected transient breakpoint, got %#v", state.Breakpoint)
	}
	data, err := s.Load(context.Background(), DefaultStoreKey)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "line: 11") {
		t.Fatalf("run to cursor breakpoint saved:\n%s", data)
	}

	state = command(t, d, &api.DebuggerCommand{Name: api.Continue})
	assertExited(t, state)
	if bps := d.Breakpoints(); len(bps) != 0 {
		t.Fatalf("breakpoints left after run to cursor: %#v", bps)
	}
}

func TestRunToBreakpoint(t *testing.T) {
	d, _ := newSimDebugger(t, loopScript, nil)
	createBreakpoint(t, d, api.Breakpoint{File: "main.go", Line: 5})
	runTo := createBreakpoint(t, d, api.Breakpoint{File: "main.go", Line: 10, HitCount: proc.HitCountRunTo})

	attach(t, d)
	state := wait(t, d)
	// main.go:10 already ran once, -1 breakpoints only stop through run to cursor
	assertStoppedAt(t, state, "main.go", 5)

	state = command(t, d, &api.DebuggerCommand{Name: api.RunTo, Location: "main.go:10"})
	assertStoppedAt(t, state, "main.go", 10)
	if state.Breakpoint == nil || state.Breakpoint.ID != runTo.ID {
		t.Fatalf("wrong breakpoint %#v", state.Breakpoint)
	}
	if state.Breakpoint.Remaining != 0 {
		t.Fatalf("remaining %d", state.Breakpoint.Remaining)
	}

	state = command(t, d, &api.DebuggerCommand{Name: api.Continue})
	assertStoppedAt(t, state, "main.go", 5)
	if d.FindBreakpoint(runTo.ID) != nil {
		t.Fatal("-1 breakpoint not removed on resume")
	}
	state = command(t, d, &api.DebuggerCommand{Name: api.Continue})
	assertStoppedAt(t, state, "main.go", 5)
	if got := evalValue(t, d, "i"); got != "3" {
		t.Fatalf("i = %s", got)
	}
}

func TestRunToExistingBreakpointKeepsBudget(t *testing.T) {
	d, _ := newSimDebugger(t, loopScript, nil)
	createBreakpoint(t, d, api.Breakpoint{File: "main.go", Line: 3, HitCount: 1})
	bp := createBreakpoint(t, d, api.Breakpoint{File: "main.go", Line: 11, HitCount: 2, Cond: "i > 100"})

	attach(t, d)
	assertStoppedAt(t, wait(t, d), "main.go", 3)

	state := command(t, d, &api.DebuggerCommand{Name: api.RunTo, Location: "main.go:11"})
	assertStoppedAt(t, state, "main.go", 11)
	if state.Breakpoint == nil || state.Breakpoint.ID != bp.ID || state.Breakpoint.Remaining != 2 {
		t.Fatalf("wrong breakpoint %#v", state.Breakpoint)
	}
	assertExited(t, command(t, d, &api.DebuggerCommand{Name: api.Continue}))
	if d.FindBreakpoint(bp.ID) == nil {
		t.Fatal("breakpoint removed")
	}
}

func TestStepping(t *testing.T) {
	d, _ := newSimDebugger(t, loopScript, nil)
	createBreakpoint(t, d, api.Breakpoint{File: "main.go", Line: 4, HitCount: 1})

	attach(t, d)
	assertStoppedAt(t, wait(t, d), "main.go", 4)

	state := command(t, d, &api.DebuggerCommand{Name: api.Step})
	assertStoppedAt(t, state, "main.go", 10)
	if state.StopReason != "step" {
		t.Fatalf("stop reason %q", state.StopReason)
	}
	assertStoppedAt(t, command(t, d, &api.DebuggerCommand{Name: api.StepOut}), "main.go", 5)
	assertStoppedAt(t, command(t, d, &api.DebuggerCommand{Name: api.Next}), "main.go", 4)
	assertStoppedAt(t, command(t, d, &api.DebuggerCommand{Name: api.Next}), "main.go", 5)
}

func TestEvaluateWhileRunning(t *testing.T) {
	d, _ := newSimDebugger(t, spinScript, nil)
	attach(t, d)

	if _, err := d.EvalVariable("n"); !errors.Is(err, api.ErrInvalidState) {
		t.Fatalf("EvalVariable while running: %v", err)
	}
	if err := d.SetVariable("n", "0"); !errors.Is(err, api.ErrInvalidState) {
		t.Fatalf("SetVariable while running: %v", err)
	}
	if _, err := d.Command(&api.DebuggerCommand{Name: api.Next}); !errors.Is(err, api.ErrInvalidState) {
		t.Fatalf("next while running: %v", err)
	}

	state := command(t, d, &api.DebuggerCommand{Name: api.Halt})
	if state.State != api.StateSuspended || state.StopReason != "pause" {
		t.Fatalf("after halt: %s %q", state.State, state.StopReason)
	}
	if got := evalValue(t, d, "n > 0"); got != "true" {
		t.Fatalf("n > 0 = %s", got)
	}
	if err := d.SetVariable("n", "-100"); err != nil {
		t.Fatal(err)
	}
	if got := evalValue(t, d, "n < 0"); got != "true" {
		t.Fatalf("n < 0 = %s", got)
	}
	if _, err := d.EvalVariable("n +"); !errors.As(err, new(*api.EvaluationError)) {
		t.Fatalf("expected evaluation error, got %v", err)
	}
	if vars, err := d.LocalVariables(); err != nil || len(vars) != 1 || vars[0].Name != "n" {
		t.Fatalf("LocalVariables: %v %#v", err, vars)
	}
	// halting a suspended session does nothing
	if state, err := d.Command(&api.DebuggerCommand{Name: api.Halt}); err != nil || state.State != api.StateSuspended {
		t.Fatalf("halt while suspended: %v", err)
	}
}

func TestDisconnect(t *testing.T) {
	d, _ := newSimDebugger(t, loopScript, nil)
	bp := createBreakpoint(t, d, api.Breakpoint{File: "main.go", Line: 4})

	attach(t, d)
	assertStoppedAt(t, wait(t, d), "main.go", 4)

	if err := d.Detach(); err != nil {
		t.Fatal(err)
	}
	if state := d.State(); state.State != api.StateDisconnected || state.CurrentLocation != nil {
		t.Fatalf("after disconnect: %#v", state)
	}
	for _, name := range []string{api.Continue, api.Next, api.Step, api.StepOut, api.Halt} {
		if _, err := d.Command(&api.DebuggerCommand{Name: name}); !errors.Is(err, api.ErrInvalidState) {
			t.Fatalf("%s after disconnect: %v", name, err)
		}
	}
	if _, err := d.EvalVariable("i"); !errors.Is(err, api.ErrInvalidState) {
		t.Fatalf("evaluate after disconnect: %v", err)
	}
	if err := d.Detach(); !errors.Is(err, api.ErrInvalidState) {
		t.Fatalf("second disconnect: %v", err)
	}

	// breakpoints survive the connection
	if d.FindBreakpoint(bp.ID) == nil {
		t.Fatal("breakpoint lost on disconnect")
	}
	attach(t, d)
	state := wait(t, d)
	assertStoppedAt(t, state, "main.go", 4)
	if state.Breakpoint.TotalHitCount != 1 {
		t.Fatalf("hit count not reset on attach: %d", state.Breakpoint.TotalHitCount)
	}
}

func TestConnectionLost(t *testing.T) {
	d, p := newSimDebugger(t, spinScript, nil)
	attach(t, d)
	p.Sever(io.ErrUnexpectedEOF)
	state := wait(t, d)
	if state.State != api.StateDisconnected || state.Exited {
		t.Fatalf("after connection loss: %s exited=%v", state.State, state.Exited)
	}
}

func TestBreakpointOperations(t *testing.T) {
	d, _ := newSimDebugger(t, loopScript, nil)
	bp1 := createBreakpoint(t, d, api.Breakpoint{File: "main.go", Line: 4})
	bp2 := createBreakpoint(t, d, api.Breakpoint{File: "main.go", Line: 5, Cond: "i > 1", HitCount: 3})

	if bp1.Disabled || bp1.HitCount != 0 || bp1.Remaining != -1 {
		t.Fatalf("wrong defaults %#v", bp1)
	}
	if bp2.ID == bp1.ID {
		t.Fatal("duplicate ids")
	}

	_, err := d.CreateBreakpoint(&api.Breakpoint{File: "main.go", Line: 4, Cond: "i > 2"})
	if !errors.As(err, new(proc.BreakpointExistsError)) {
		t.Fatalf("duplicate location: %v", err)
	}
	if _, err := d.CreateBreakpoint(&api.Breakpoint{File: "main.go", Line: 7, HitCount: -2}); !errors.Is(err, api.ErrInvalidHitCount) {
		t.Fatalf("hit count -2: %v", err)
	}
	if _, err := d.CreateBreakpoint(&api.Breakpoint{File: "main.go"}); err == nil {
		t.Fatal("breakpoint without a line accepted")
	}

	if err := d.AmendBreakpoint(&api.Breakpoint{ID: bp2.ID, Line: 6}); err == nil {
		t.Fatal("breakpoint moved")
	}
	if err := d.AmendBreakpoint(&api.Breakpoint{ID: bp2.ID, Cond: "i > 3", HitCount: 1, Disabled: true}); err != nil {
		t.Fatal(err)
	}
	got := d.FindBreakpoint(bp2.ID)
	if got.Cond != "i > 3" || got.HitCount != 1 || !got.Disabled || got.Line != 5 {
		t.Fatalf("amend not applied %#v", got)
	}
	if err := d.AmendBreakpoint(&api.Breakpoint{ID: 100}); !errors.Is(err, api.ErrNoBreakpoint) {
		t.Fatalf("amend missing: %v", err)
	}

	toggled, err := d.ToggleBreakpoint(bp2.ID)
	if err != nil || toggled.Disabled {
		t.Fatalf("toggle: %v %#v", err, toggled)
	}

	if _, err := d.ClearBreakpoint(bp1.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := d.ClearBreakpoint(bp1.ID); !errors.Is(err, api.ErrNoBreakpoint) {
		t.Fatalf("clear twice: %v", err)
	}
	if d.FindBreakpointByLocation("main.go", 5) == nil {
		t.Fatal("breakpoint at main.go:5 not found")
	}

	createBreakpoint(t, d, api.Breakpoint{File: "main.go", Line: 4})
	cleared, err := d.ClearAllBreakpoints()
	if err != nil || len(cleared) != 2 {
		t.Fatalf("ClearAllBreakpoints: %v %d", err, len(cleared))
	}
	if len(d.Breakpoints()) != 0 {
		t.Fatal("breakpoints left")
	}
}

func TestBreakpointsWhileConnected(t *testing.T) {
	d, _ := newSimDebugger(t, loopScript, nil)
	createBreakpoint(t, d, api.Breakpoint{File: "main.go", Line: 4, HitCount: 1})
	attach(t, d)
	assertStoppedAt(t, wait(t, d), "main.go", 4)

	bp := createBreakpoint(t, d, api.Breakpoint{File: "main.go", Line: 11})
	assertStoppedAt(t, command(t, d, &api.DebuggerCommand{Name: api.Continue}), "main.go", 11)
	if _, err := d.ClearBreakpoint(bp.ID); err != nil {
		t.Fatal(err)
	}
	assertExited(t, command(t, d, &api.DebuggerCommand{Name: api.Continue}))
}

func TestPersistence(t *testing.T) {
	s := store.NewMemoryStore()
	d1, _ := newSimDebugger(t, loopScript, &Config{Store: s, StoreKey: "breakpoints/loop"})
	bp1 := createBreakpoint(t, d1, api.Breakpoint{File: "main.go", Line: 4, Cond: "i == 1", HitCount: 2})
	bp2 := createBreakpoint(t, d1, api.Breakpoint{File: "main.go", Line: 6, Disabled: true})
	if _, err := d1.ToggleBreakpoint(bp2.ID); err != nil {
		t.Fatal(err)
	}

	d2, _ := newSimDebugger(t, loopScript, &Config{Store: s, StoreKey: "breakpoints/loop"})
	bps := d2.Breakpoints()
	if len(bps) != 2 {
		t.Fatalf("loaded %d breakpoints", len(bps))
	}
	if *bps[0] != *bp1 {
		t.Fatalf("mismatch %#v %#v", bps[0], bp1)
	}
	if bps[1].ID != bp2.ID || bps[1].Disabled {
		t.Fatalf("mismatch %#v", bps[1])
	}

	// ids continue after the loaded ones
	bp3 := createBreakpoint(t, d2, api.Breakpoint{File: "main.go", Line: 5})
	if bp3.ID <= bp2.ID {
		t.Fatalf("id %d reused", bp3.ID)
	}

	if _, err := d2.ClearAllBreakpoints(); err != nil {
		t.Fatal(err)
	}
	d3, _ := newSimDebugger(t, loopScript, &Config{Store: s, StoreKey: "breakpoints/loop"})
	if n := len(d3.Breakpoints()); n != 0 {
		t.Fatalf("%d breakpoints after clear all", n)
	}
}

// fakeProcess is a debuggee that answers commands as configured.
type fakeProcess struct {
	mu         sync.Mutex
	events     chan proc.Event
	commandErr error
	bpErr      error
	block      bool
	cmds       []proc.Command
	detached   bool
	once       sync.Once
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{events: make(chan proc.Event, 8)}
}

func (p *fakeProcess) Attach(ctx context.Context) error { return nil }

func (p *fakeProcess) Command(ctx context.Context, cmd proc.Command) error {
	p.mu.Lock()
	p.cmds = append(p.cmds, cmd)
	block, err := p.block, p.commandErr
	p.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (p *fakeProcess) SetBreakpoint(ctx context.Context, loc proc.Location) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bpErr
}

func (p *fakeProcess) ClearBreakpoint(ctx context.Context, loc proc.Location) error { return nil }
func (p *fakeProcess) Events() <-chan proc.Event                                    { return p.events }

func (p *fakeProcess) Detach(ctx context.Context) error {
	p.mu.Lock()
	p.detached = true
	p.mu.Unlock()
	p.once.Do(func() { close(p.events) })
	return nil
}

func (p *fakeProcess) set(block bool, err error) {
	p.mu.Lock()
	p.block, p.commandErr = block, err
	p.mu.Unlock()
}

func suspendedFake(t *testing.T) (*Debugger, *fakeProcess) {
	t.Helper()
	p := newFakeProcess()
	d, err := New(&Config{ActionTimeout: 50 * time.Millisecond}, p, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	attach(t, d)
	p.events <- proc.Event{Kind: proc.EventSuspended, Reason: proc.StopPause, Location: proc.Location{File: "a.go", Line: 1}, ThreadID: 1}
	assertStoppedAt(t, wait(t, d), "a.go", 1)
	return d, p
}

func TestTimeout(t *testing.T) {
	d, p := suspendedFake(t)
	p.set(true, nil)
	_, err := d.Command(&api.DebuggerCommand{Name: api.Next})
	if !errors.Is(err, api.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	assertStoppedAt(t, d.State(), "a.go", 1)

	p.set(false, nil)
	if _, err := d.Command(&api.DebuggerCommand{Name: api.Next}); err != nil {
		t.Fatal(err)
	}
	if d.State().State != api.StateRunning {
		t.Fatal("not running")
	}
}

// stopAtRunTo runs to a.go:5, where a breakpoint with hit count -1 is
// set, and waits for the stop.
func stopAtRunTo(t *testing.T, d *Debugger, p *fakeProcess) *api.Breakpoint {
	t.Helper()
	bp := createBreakpoint(t, d, api.Breakpoint{File: "a.go", Line: 5, HitCount: proc.HitCountRunTo})
	if _, err := d.Command(&api.DebuggerCommand{Name: api.RunTo, Location: "a.go:5"}); err != nil {
		t.Fatal(err)
	}
	loc := proc.Location{File: "a.go", Line: 5}
	p.events <- proc.Event{Kind: proc.EventSuspended, Reason: proc.StopBreakpoint, Location: loc, Breakpoint: &loc, ThreadID: 1}
	assertStoppedAt(t, wait(t, d), "a.go", 5)
	return bp
}

func TestTimeoutKeepsRunToBreakpoint(t *testing.T) {
	s := store.NewMemoryStore()
	p := newFakeProcess()
	d, err := New(&Config{ActionTimeout: 50 * time.Millisecond, Store: s, StoreKey: "bps"}, p, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })
	attach(t, d)
	p.events <- proc.Event{Kind: proc.EventSuspended, Reason: proc.StopPause, Location: proc.Location{File: "a.go", Line: 1}, ThreadID: 1}
	assertStoppedAt(t, wait(t, d), "a.go", 1)
	bp := stopAtRunTo(t, d, p)

	p.set(true, nil)
	if _, err := d.Command(&api.DebuggerCommand{Name: api.Continue}); !errors.Is(err, api.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	assertStoppedAt(t, d.State(), "a.go", 5)
	if d.FindBreakpoint(bp.ID) == nil {
		t.Fatal("run to breakpoint removed although the debuggee did not resume")
	}
	data, err := s.Load(context.Background(), "bps")
	if err != nil || !strings.Contains(string(data), "a.go") {
		t.Fatalf("run to breakpoint removed from the store: %q %v", data, err)
	}

	p.set(false, nil)
	if _, err := d.Command(&api.DebuggerCommand{Name: api.Continue}); err != nil {
		t.Fatal(err)
	}
	if d.FindBreakpoint(bp.ID) != nil {
		t.Fatal("run to breakpoint kept after resuming")
	}
}

func TestFailedRunToKeepsBreakpoints(t *testing.T) {
	d, p := suspendedFake(t)
	bp := stopAtRunTo(t, d, p)

	p.mu.Lock()
	p.bpErr = errors.New("no code at a.go:9")
	p.mu.Unlock()
	if _, err := d.Command(&api.DebuggerCommand{Name: api.RunTo, Location: "a.go:9"}); err == nil {
		t.Fatal("run to a refused location succeeded")
	}
	if d.FindBreakpoint(bp.ID) == nil {
		t.Fatal("breakpoint removed by a failed run to location")
	}
	if bps := d.Breakpoints(); len(bps) != 1 {
		t.Fatalf("unexpected breakpoints %v", bps)
	}

	p.mu.Lock()
	p.bpErr = nil
	p.mu.Unlock()
	p.set(true, nil)
	if _, err := d.Command(&api.DebuggerCommand{Name: api.RunTo, Location: "a.go:9"}); !errors.Is(err, api.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if d.FindBreakpointByLocation("a.go", 9) != nil {
		t.Fatal("run to breakpoint kept after a timeout")
	}
	if d.FindBreakpoint(bp.ID) == nil {
		t.Fatal("breakpoint removed by a timed out run to location")
	}
	assertStoppedAt(t, d.State(), "a.go", 5)
}

func TestCreateBreakpointAtRunToLocation(t *testing.T) {
	d, p := suspendedFake(t)
	if _, err := d.Command(&api.DebuggerCommand{Name: api.RunTo, Location: "a.go:7"}); err != nil {
		t.Fatal(err)
	}
	runTo := d.FindBreakpointByLocation("a.go", 7)
	if runTo == nil {
		t.Fatal("run to breakpoint missing")
	}

	bp := createBreakpoint(t, d, api.Breakpoint{File: "a.go", Line: 7, HitCount: 2, Cond: "i > 1"})
	if bp.ID != runTo.ID || bp.HitCount != 2 || bp.Cond != "i > 1" {
		t.Fatalf("unexpected breakpoint %#v", bp)
	}

	loc := proc.Location{File: "a.go", Line: 1}
	p.events <- proc.Event{Kind: proc.EventSuspended, Reason: proc.StopPause, Location: loc, ThreadID: 1}
	assertStoppedAt(t, wait(t, d), "a.go", 1)
	if _, err := d.Command(&api.DebuggerCommand{Name: api.Continue}); err != nil {
		t.Fatal(err)
	}
	if got := d.FindBreakpoint(bp.ID); got == nil || got.HitCount != 2 {
		t.Fatalf("breakpoint lost after resuming: %#v", got)
	}
}

func TestTransportError(t *testing.T) {
	d, p := suspendedFake(t)
	p.set(false, &proc.TransportError{Op: "command", Err: io.EOF})
	_, err := d.Command(&api.DebuggerCommand{Name: api.Continue})
	if !errors.Is(err, api.ErrDisconnected) {
		t.Fatalf("expected disconnected error, got %v", err)
	}
	if state := d.State(); state.State != api.StateDisconnected {
		t.Fatalf("state %s", state.State)
	}
	p.mu.Lock()
	detached := p.detached
	p.mu.Unlock()
	if !detached {
		t.Fatal("transport not detached after connection loss")
	}
}

func TestCommandError(t *testing.T) {
	d, p := suspendedFake(t)
	p.set(false, errors.New("refused"))
	if _, err := d.Command(&api.DebuggerCommand{Name: api.StepOut}); err == nil {
		t.Fatal("error not reported")
	}
	assertStoppedAt(t, d.State(), "a.go", 1)
	if _, err := d.Command(&api.DebuggerCommand{Name: "jump"}); err == nil {
		t.Fatal("unknown command accepted")
	}
}
