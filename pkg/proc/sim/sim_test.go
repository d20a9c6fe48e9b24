package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eclipse-che/debugd/pkg/proc"
)

const loopScript = `
vars:
  i: 0
lines:
  - {file: main.go, line: 3, func: main}
  - {line: 4, func: main, exec: "i = i + 1"}
  - {line: 10, func: work, depth: 1, exec: "j = i * 2"}
  - {line: 11, func: work, depth: 1}
  - {line: 5, func: main, if: "i < 3", goto: 4}
  - {line: 6, func: main}
`

func loc(file string, line int) proc.Location {
	return proc.Location{File: file, Line: line}
}

func startProcess(t *testing.T, src string, opts Options) *Process {
	t.Helper()
	script, err := ParseScript([]byte(src))
	require.NoError(t, err)
	p := New(script, opts)
	require.NoError(t, p.Attach(context.Background()))
	t.Cleanup(func() { p.Detach(context.Background()) })
	return p
}

func nextEvent(t *testing.T, p *Process) proc.Event {
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

func command(t *testing.T, p *Process, kind proc.CommandKind, proceed bool) {
	t.Helper()
	require.NoError(t, p.Command(context.Background(), proc.Command{Kind: kind, Proceed: proceed}))
}

func evalString(t *testing.T, p *Process, expr string) string {
	t.Helper()
	v, err := p.Evaluate(context.Background(), proc.Frame{ThreadID: 1}, expr)
	require.NoError(t, err)
	return v.Value
}

func TestParseScriptErrors(t *testing.T) {
	for _, src := range []string{
		`lines: []`,
		`lines: [{file: a.go, line: 0}]`,
		`lines: [{file: a.go, line: 1}, {line: 1}]`,
		`lines: [{file: a.go, line: 1, goto: 7}]`,
		`lines: [{file: a.go, line: 1, if: "x"}]`,
		`lines: [{file: a.go, line: 1, bogus: 1}]`,
	} {
		_, err := ParseScript([]byte(src))
		require.Error(t, err, src)
	}
}

func TestContinueToBreakpoint(t *testing.T) {
	p := startProcess(t, loopScript, Options{})
	ctx := context.Background()
	require.NoError(t, p.SetBreakpoint(ctx, loc("main.go", 10)))

	for i := 1; i <= 3; i++ {
		command(t, p, proc.Continue, false)
		ev := nextEvent(t, p)
		require.Equal(t, proc.EventSuspended, ev.Kind)
		require.Equal(t, proc.StopBreakpoint, ev.Reason)
		require.Equal(t, loc("main.go", 10), ev.Location)
		require.NotNil(t, ev.Breakpoint)
		require.Equal(t, []string{"1", "2", "3"}[i-1], evalString(t, p, "i"))
	}

	command(t, p, proc.Continue, false)
	ev := nextEvent(t, p)
	require.Equal(t, proc.EventExited, ev.Kind)
	require.Equal(t, 0, ev.ExitStatus)

	err := p.Command(ctx, proc.Command{Kind: proc.Continue})
	require.True(t, proc.IsTransportError(err))
	require.True(t, errors.Is(err, proc.ErrProcessExited))
}

func TestBreakpointOnFirstLine(t *testing.T) {
	p := startProcess(t, loopScript, Options{})
	require.NoError(t, p.SetBreakpoint(context.Background(), loc("main.go", 3)))
	command(t, p, proc.Continue, false)
	ev := nextEvent(t, p)
	require.Equal(t, loc("main.go", 3), ev.Location)
}

func TestSteps(t *testing.T) {
	p := startProcess(t, loopScript, Options{})
	require.NoError(t, p.SetBreakpoint(context.Background(), loc("main.go", 4)))
	command(t, p, proc.Continue, false)
	require.Equal(t, loc("main.go", 4), nextEvent(t, p).Location)

	command(t, p, proc.Step, false)
	ev := nextEvent(t, p)
	require.Equal(t, proc.StopStep, ev.Reason)
	require.Equal(t, loc("main.go", 10), ev.Location)

	command(t, p, proc.StepOut, false)
	ev = nextEvent(t, p)
	require.Equal(t, proc.StopStep, ev.Reason)
	require.Equal(t, loc("main.go", 5), ev.Location)

	// Jumps back to line 4, which has a breakpoint and ends the step.
	command(t, p, proc.Next, false)
	ev = nextEvent(t, p)
	require.Equal(t, proc.StopStep, ev.Reason)
	require.Equal(t, loc("main.go", 4), ev.Location)
	require.NotNil(t, ev.Breakpoint)

	command(t, p, proc.Next, false)
	ev = nextEvent(t, p)
	require.Equal(t, loc("main.go", 5), ev.Location)
	require.Equal(t, "2", evalString(t, p, "i"))
}

func TestProceedKeepsStep(t *testing.T) {
	p := startProcess(t, loopScript, Options{})
	ctx := context.Background()
	require.NoError(t, p.SetBreakpoint(ctx, loc("main.go", 4)))
	require.NoError(t, p.SetBreakpoint(ctx, loc("main.go", 11)))
	command(t, p, proc.Continue, false)
	require.Equal(t, loc("main.go", 4), nextEvent(t, p).Location)

	command(t, p, proc.Next, false)
	ev := nextEvent(t, p)
	require.Equal(t, proc.StopBreakpoint, ev.Reason)
	require.Equal(t, loc("main.go", 11), ev.Location)

	command(t, p, proc.Continue, true)
	ev = nextEvent(t, p)
	require.Equal(t, proc.StopStep, ev.Reason)
	require.Equal(t, loc("main.go", 5), ev.Location)
}

func TestHalt(t *testing.T) {
	const spin = `
lines:
  - {file: spin.go, line: 1, func: main}
  - {line: 2, func: main, goto: 1}
`
	p := startProcess(t, spin, Options{LineDelay: time.Millisecond})
	command(t, p, proc.Continue, false)
	_, err := p.Evaluate(context.Background(), proc.Frame{}, "1")
	require.Error(t, err, "evaluation must fail while running")

	command(t, p, proc.Halt, false)
	ev := nextEvent(t, p)
	require.Equal(t, proc.StopPause, ev.Reason)
	require.Equal(t, "spin.go", ev.Location.File)
}

func TestSetVariable(t *testing.T) {
	p := startProcess(t, loopScript, Options{})
	ctx := context.Background()
	require.NoError(t, p.SetBreakpoint(ctx, loc("main.go", 5)))
	command(t, p, proc.Continue, false)
	nextEvent(t, p)
	require.NoError(t, p.SetVariable(ctx, proc.Frame{}, "i", "100"))
	require.NoError(t, p.ClearBreakpoint(ctx, loc("main.go", 5)))
	command(t, p, proc.Continue, false)
	require.Equal(t, proc.EventExited, nextEvent(t, p).Kind)
}

func TestStrictBreakpoints(t *testing.T) {
	p := startProcess(t, loopScript, Options{StrictBreakpoints: true})
	require.Error(t, p.SetBreakpoint(context.Background(), loc("main.go", 99)))
	require.NoError(t, p.SetBreakpoint(context.Background(), loc("main.go", 6)))
}

func TestSever(t *testing.T) {
	p := startProcess(t, loopScript, Options{})
	lost := errors.New("connection reset")
	p.Sever(lost)
	ev := nextEvent(t, p)
	require.Equal(t, proc.EventExited, ev.Kind)
	require.ErrorIs(t, ev.Err, lost)

	err := p.SetBreakpoint(context.Background(), loc("main.go", 4))
	require.True(t, proc.IsTransportError(err))

	require.NoError(t, p.Detach(context.Background()))
	require.NoError(t, p.Attach(context.Background()))
}
