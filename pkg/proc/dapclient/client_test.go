package dapclient_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eclipse-che/debugd/pkg/proc"
	"github.com/eclipse-che/debugd/pkg/proc/dapclient"
	"github.com/eclipse-che/debugd/pkg/proc/sim"
	"github.com/eclipse-che/debugd/service"
	"github.com/eclipse-che/debugd/service/api"
	"github.com/eclipse-che/debugd/service/dap"
	"github.com/eclipse-che/debugd/service/debugger"
)

const loopScript = `
vars:
  i: 0
lines:
  - {file: main.go, line: 3, func: main}
  - {line: 4, func: main, exec: "i = i + 1"}
  - {line: 10, func: work, depth: 1}
  - {line: 11, func: work, depth: 1}
  - {line: 5, func: main, if: "i < 5", goto: 4}
  - {line: 6, func: main}
`

func loc(file string, line int) proc.Location {
	return proc.Location{File: file, Line: line}
}

// startAdapter runs a debugd DAP server over a simulated debuggee.
func startAdapter(t *testing.T, src string) (addr string, stop func()) {
	t.Helper()
	script, err := sim.ParseScript([]byte(src))
	require.NoError(t, err)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := dap.NewServer(&service.Config{
		Listener: listener,
		Target:   sim.New(script, sim.Options{}),
	})
	server.Run()
	t.Cleanup(server.Stop)
	return listener.Addr().String(), server.Stop
}

func attach(t *testing.T, addr string) *dapclient.Process {
	t.Helper()
	p := dapclient.New(dapclient.Options{Addr: addr, Arguments: map[string]interface{}{"name": "test"}})
	require.NoError(t, p.Attach(context.Background()))
	t.Cleanup(func() { p.Detach(context.Background()) })
	return p
}

func nextEvent(t *testing.T, p *dapclient.Process) proc.Event {
	t.Helper()
	select {
	case ev, ok := <-p.Events():
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for an event")
	}
	return proc.Event{}
}

func command(t *testing.T, p *dapclient.Process, kind proc.CommandKind, proceed bool) {
	t.Helper()
	require.NoError(t, p.Command(context.Background(), proc.Command{Kind: kind, Proceed: proceed}))
}

func evalString(t *testing.T, p *dapclient.Process, expr string) string {
	t.Helper()
	v, err := p.Evaluate(context.Background(), proc.Frame{ThreadID: 1}, expr)
	require.NoError(t, err)
	return v.Value
}

func requireSuspended(t *testing.T, ev proc.Event, reason proc.StopReason, at proc.Location) {
	t.Helper()
	require.Equal(t, proc.EventSuspended, ev.Kind)
	require.Equal(t, reason, ev.Reason)
	require.Equal(t, at, ev.Location)
	require.Equal(t, 1, ev.ThreadID)
}

func TestBreakpoints(t *testing.T) {
	addr, _ := startAdapter(t, loopScript)
	p := attach(t, addr)
	ctx := context.Background()

	require.NoError(t, p.SetBreakpoint(ctx, loc("main.go", 10)))
	require.NoError(t, p.SetBreakpoint(ctx, loc("main.go", 11)))
	command(t, p, proc.Continue, false)

	ev := nextEvent(t, p)
	requireSuspended(t, ev, proc.StopBreakpoint, loc("main.go", 10))
	require.NotNil(t, ev.Breakpoint)
	require.Equal(t, loc("main.go", 10), *ev.Breakpoint)
	require.Equal(t, "1", evalString(t, p, "i"))

	require.NoError(t, p.ClearBreakpoint(ctx, loc("main.go", 10)))
	command(t, p, proc.Continue, false)
	requireSuspended(t, nextEvent(t, p), proc.StopBreakpoint, loc("main.go", 11))

	// Proceeding sends the last command again.
	command(t, p, proc.Continue, true)
	requireSuspended(t, nextEvent(t, p), proc.StopBreakpoint, loc("main.go", 11))
	require.Equal(t, "2", evalString(t, p, "i"))

	require.NoError(t, p.ClearBreakpoint(ctx, loc("main.go", 11)))
	command(t, p, proc.Continue, false)
	ev = nextEvent(t, p)
	require.Equal(t, proc.EventExited, ev.Kind)
	require.NoError(t, ev.Err)
	require.Equal(t, 0, ev.ExitStatus)

	_, ok := <-p.Events()
	require.False(t, ok, "event channel open after exit")
}

func TestUnverifiedBreakpoint(t *testing.T) {
	addr, _ := startAdapter(t, loopScript)
	p := attach(t, addr)
	ctx := context.Background()

	require.NoError(t, p.SetBreakpoint(ctx, loc("main.go", 4)))
	require.Error(t, p.SetBreakpoint(ctx, loc("main.go", 0)))

	command(t, p, proc.Continue, false)
	requireSuspended(t, nextEvent(t, p), proc.StopBreakpoint, loc("main.go", 4))
}

func TestStepping(t *testing.T) {
	addr, _ := startAdapter(t, loopScript)
	p := attach(t, addr)

	require.NoError(t, p.SetBreakpoint(context.Background(), loc("main.go", 4)))
	command(t, p, proc.Continue, false)
	requireSuspended(t, nextEvent(t, p), proc.StopBreakpoint, loc("main.go", 4))

	command(t, p, proc.Step, false)
	requireSuspended(t, nextEvent(t, p), proc.StopStep, loc("main.go", 10))
	command(t, p, proc.StepOut, false)
	requireSuspended(t, nextEvent(t, p), proc.StopStep, loc("main.go", 5))

	// A step ending on a breakpoint reports it.
	command(t, p, proc.Next, false)
	ev := nextEvent(t, p)
	requireSuspended(t, ev, proc.StopStep, loc("main.go", 4))
	require.NotNil(t, ev.Breakpoint)
}

func TestVariables(t *testing.T) {
	addr, _ := startAdapter(t, `
vars:
  count: 1
  limits: {cpu: 2}
lines:
  - {file: vars.go, line: 1, func: main}
  - {line: 2, func: main}
`)
	p := attach(t, addr)
	ctx := context.Background()

	_, err := p.Evaluate(ctx, proc.Frame{}, "count")
	require.Error(t, err, "evaluate before the first stop")

	require.NoError(t, p.SetBreakpoint(ctx, loc("vars.go", 2)))
	command(t, p, proc.Continue, false)
	requireSuspended(t, nextEvent(t, p), proc.StopBreakpoint, loc("vars.go", 2))

	vars, err := p.Variables(ctx, proc.Frame{})
	require.NoError(t, err)
	require.Len(t, vars, 2)
	require.Equal(t, "count", vars[0].Name)
	require.Equal(t, "1", vars[0].Value)
	require.Equal(t, "limits", vars[1].Name)
	require.Len(t, vars[1].Children, 1)
	require.Equal(t, "2", vars[1].Children[0].Value)

	require.NoError(t, p.SetVariable(ctx, proc.Frame{}, "count", "count + 41"))
	require.Equal(t, "42", evalString(t, p, "count"))
	require.Error(t, p.SetVariable(ctx, proc.Frame{}, "nosuchvar", "1"))

	v, err := p.Evaluate(ctx, proc.Frame{}, "limits")
	require.NoError(t, err)
	require.Equal(t, "dict", v.Kind)
	require.Len(t, v.Children, 1)

	_, err = p.Evaluate(ctx, proc.Frame{Index: 1}, "count")
	require.Error(t, err)
}

func TestHalt(t *testing.T) {
	addr, _ := startAdapter(t, `
vars:
  n: 0
lines:
  - {file: spin.go, line: 1, func: main, exec: "n = n + 1"}
  - {line: 2, func: main, goto: 1}
`)
	p := attach(t, addr)

	command(t, p, proc.Continue, false)
	command(t, p, proc.Halt, false)
	ev := nextEvent(t, p)
	require.Equal(t, proc.EventSuspended, ev.Kind)
	require.Equal(t, proc.StopPause, ev.Reason)
	require.Equal(t, "spin.go", ev.Location.File)
	require.Equal(t, "true", evalString(t, p, "n > 0"))
}

func TestConnectionLost(t *testing.T) {
	addr, stop := startAdapter(t, loopScript)
	p := attach(t, addr)

	require.NoError(t, p.SetBreakpoint(context.Background(), loc("main.go", 10)))
	command(t, p, proc.Continue, false)
	nextEvent(t, p)

	stop()
	ev := nextEvent(t, p)
	require.Equal(t, proc.EventExited, ev.Kind)
	require.True(t, proc.IsTransportError(ev.Err), "got %v", ev.Err)

	err := p.Command(context.Background(), proc.Command{Kind: proc.Continue})
	require.True(t, proc.IsTransportError(err), "got %v", err)
}

func TestAttachRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()

	p := dapclient.New(dapclient.Options{Addr: addr})
	err = p.Attach(context.Background())
	require.True(t, proc.IsTransportError(err), "got %v", err)
	require.ErrorIs(t, p.Detach(context.Background()), proc.ErrNotAttached)
}

// TestDebuggerOverDAP drives a session controller through a debug
// adapter.
func TestDebuggerOverDAP(t *testing.T) {
	addr, _ := startAdapter(t, loopScript)
	p := dapclient.New(dapclient.Options{Addr: addr})
	d, err := debugger.New(&debugger.Config{ActionTimeout: 5 * time.Second}, p, nil)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	_, err = d.CreateBreakpoint(&api.Breakpoint{File: "main.go", Line: 10, Cond: "i == 3"})
	require.NoError(t, err)
	bp, err := d.CreateBreakpoint(&api.Breakpoint{File: "main.go", Line: 11, HitCount: 1})
	require.NoError(t, err)

	_, err = d.Attach()
	require.NoError(t, err)

	wait := func() *api.DebuggerState {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		state, err := d.Wait(ctx)
		require.NoError(t, err)
		return state
	}

	state := wait()
	require.Equal(t, api.StateSuspended, state.State)
	require.Equal(t, 11, state.CurrentLocation.Line)
	require.NotNil(t, state.Breakpoint)
	require.Equal(t, bp.ID, state.Breakpoint.ID)
	require.Nil(t, d.FindBreakpoint(bp.ID), "breakpoint with hit count 1 not removed")

	_, err = d.Command(&api.DebuggerCommand{Name: api.Continue})
	require.NoError(t, err)
	state = wait()
	require.Equal(t, api.StateSuspended, state.State)
	require.Equal(t, 10, state.CurrentLocation.Line)
	v, err := d.EvalVariable("i")
	require.NoError(t, err)
	require.Equal(t, "3", v.Value)

	_, err = d.Command(&api.DebuggerCommand{Name: api.Continue})
	require.NoError(t, err)
	state = wait()
	require.Equal(t, api.StateDisconnected, state.State)
	require.True(t, state.Exited)
}
