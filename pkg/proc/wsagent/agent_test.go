package wsagent

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eclipse-che/debugd/pkg/proc"
	"github.com/eclipse-che/debugd/pkg/proc/sim"
	"github.com/eclipse-che/debugd/service/api"
	"github.com/eclipse-che/debugd/service/debugger"
)

const loopScript = `
vars:
  i: 0
  names: [x, y]
lines:
  - {file: main.go, line: 3, func: main}
  - {line: 4, func: main, exec: "i = i + 1"}
  - {line: 10, func: work, depth: 1}
  - {line: 11, func: work, depth: 1}
  - {line: 5, func: main, if: "i < 3", goto: 4}
  - {line: 6, func: main}
`

func loc(file string, line int) proc.Location {
	return proc.Location{File: file, Line: line}
}

func startAgent(t *testing.T, target proc.Process, timeout time.Duration) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(NewAgent(target, timeout))
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func startSim(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	script, err := sim.ParseScript([]byte(loopScript))
	require.NoError(t, err)
	return startAgent(t, sim.New(script, sim.Options{}), 0)
}

func attach(t *testing.T, url string) *Client {
	t.Helper()
	c := NewClient(url)
	require.NoError(t, c.Attach(context.Background()))
	t.Cleanup(func() { c.Detach(context.Background()) })
	return c
}

func nextEvent(t *testing.T, c *Client) proc.Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for an event")
	}
	return proc.Event{}
}

func TestAgentSession(t *testing.T) {
	_, url := startSim(t)
	c := attach(t, url)
	ctx := context.Background()

	require.NoError(t, c.SetBreakpoint(ctx, loc("main.go", 10)))
	require.NoError(t, c.Command(ctx, proc.Command{Kind: proc.Continue}))

	ev := nextEvent(t, c)
	require.Equal(t, proc.EventSuspended, ev.Kind)
	require.Equal(t, proc.StopBreakpoint, ev.Reason)
	require.Equal(t, loc("main.go", 10), ev.Location)
	require.NotNil(t, ev.Breakpoint)
	require.Equal(t, loc("main.go", 10), *ev.Breakpoint)

	frame := proc.Frame{Location: ev.Location, ThreadID: ev.ThreadID}
	v, err := c.Evaluate(ctx, frame, "i * 10")
	require.NoError(t, err)
	require.Equal(t, "10", v.Value)
	require.Equal(t, "int", v.Kind)

	v, err = c.Evaluate(ctx, frame, "names")
	require.NoError(t, err)
	require.Len(t, v.Children, 2)
	require.Equal(t, `"y"`, v.Children[1].Value)

	_, err = c.Evaluate(ctx, frame, "nosuchvar")
	require.Error(t, err)
	require.False(t, proc.IsTransportError(err))

	require.NoError(t, c.SetVariable(ctx, frame, "i", "2"))
	vars, err := c.Variables(ctx, frame)
	require.NoError(t, err)
	require.Equal(t, "i", vars[0].Name)
	require.Equal(t, "2", vars[0].Value)

	require.NoError(t, c.ClearBreakpoint(ctx, loc("main.go", 10)))
	require.NoError(t, c.Command(ctx, proc.Command{Kind: proc.Step}))
	ev = nextEvent(t, c)
	require.Equal(t, proc.StopStep, ev.Reason)
	require.Equal(t, loc("main.go", 11), ev.Location)

	require.NoError(t, c.Command(ctx, proc.Command{Kind: proc.Continue}))
	ev = nextEvent(t, c)
	require.Equal(t, proc.EventExited, ev.Kind)
	require.NoError(t, ev.Err)
}

func TestAgentBusy(t *testing.T) {
	_, url := startSim(t)
	attach(t, url)

	err := NewClient(url).Attach(context.Background())
	require.True(t, proc.IsTransportError(err), "got %v", err)
}

func TestAgentReattach(t *testing.T) {
	_, url := startSim(t)
	ctx := context.Background()

	c := NewClient(url)
	require.NoError(t, c.Attach(ctx))
	require.NoError(t, c.Command(ctx, proc.Command{Kind: proc.Continue}))
	require.NoError(t, c.Detach(ctx))
	require.ErrorIs(t, c.Detach(ctx), proc.ErrNotAttached)
	require.ErrorIs(t, c.Command(ctx, proc.Command{Kind: proc.Continue}), proc.ErrNotAttached)

	// The agent accepts a new client once the previous one is gone.
	require.Eventually(t, func() bool {
		c2 := NewClient(url)
		if err := c2.Attach(ctx); err != nil {
			return false
		}
		c2.Detach(ctx)
		return true
	}, 5*time.Second, 10*time.Millisecond)
}

func TestAgentDebuggeeLost(t *testing.T) {
	script, err := sim.ParseScript([]byte(loopScript))
	require.NoError(t, err)
	target := sim.New(script, sim.Options{})
	_, url := startAgent(t, target, 0)
	c := attach(t, url)

	target.Sever(errors.New("network unreachable"))
	ev := nextEvent(t, c)
	require.Equal(t, proc.EventExited, ev.Kind)
	require.True(t, proc.IsTransportError(ev.Err), "got %v", ev.Err)
	require.Contains(t, ev.Err.Error(), "network unreachable")

	err = c.Command(context.Background(), proc.Command{Kind: proc.Continue})
	require.True(t, proc.IsTransportError(err), "got %v", err)
}

func TestAgentConnectionLost(t *testing.T) {
	_, url := startSim(t)
	c := attach(t, url)

	c.conn.ws.Close()
	ev := nextEvent(t, c)
	require.Equal(t, proc.EventExited, ev.Kind)
	require.True(t, proc.IsTransportError(ev.Err), "got %v", ev.Err)

	err := c.Command(context.Background(), proc.Command{Kind: proc.Continue})
	require.True(t, proc.IsTransportError(err), "got %v", err)
}

// blockingProcess never answers commands before their deadline.
type blockingProcess struct {
	events chan proc.Event
}

func (p *blockingProcess) Attach(ctx context.Context) error { return nil }

func (p *blockingProcess) Command(ctx context.Context, cmd proc.Command) error {
	<-ctx.Done()
	return ctx.Err()
}

func (p *blockingProcess) SetBreakpoint(ctx context.Context, loc proc.Location) error {
	return errors.New("no code at " + loc.String())
}

func (p *blockingProcess) ClearBreakpoint(ctx context.Context, loc proc.Location) error {
	return nil
}

func (p *blockingProcess) Events() <-chan proc.Event { return p.events }

func (p *blockingProcess) Detach(ctx context.Context) error {
	close(p.events)
	return nil
}

func TestAgentErrors(t *testing.T) {
	_, url := startAgent(t, &blockingProcess{events: make(chan proc.Event)}, 50*time.Millisecond)
	c := attach(t, url)
	ctx := context.Background()

	err := c.Command(ctx, proc.Command{Kind: proc.Continue})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	err = c.SetBreakpoint(ctx, loc("main.go", 1))
	require.EqualError(t, err, "no code at main.go:1")

	_, err = c.Evaluate(ctx, proc.Frame{}, "1")
	require.Error(t, err)
}

func TestDebuggerOverAgent(t *testing.T) {
	_, url := startSim(t)
	d, err := debugger.New(&debugger.Config{ActionTimeout: 5 * time.Second}, NewClient(url), nil)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	bp, err := d.CreateBreakpoint(&api.Breakpoint{File: "main.go", Line: 11, HitCount: 2})
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

	for i := 1; i <= 2; i++ {
		state := wait()
		require.Equal(t, api.StateSuspended, state.State)
		require.Equal(t, 11, state.CurrentLocation.Line)
		require.Equal(t, bp.ID, state.Breakpoint.ID)
		require.Equal(t, 2-i, state.Breakpoint.Remaining)
		v, err := d.EvalVariable("i")
		require.NoError(t, err)
		require.Equal(t, string(rune('0'+i)), v.Value)
		_, err = d.Command(&api.DebuggerCommand{Name: api.Continue})
		require.NoError(t, err)
	}
	state := wait()
	require.Equal(t, api.StateDisconnected, state.State)
	require.True(t, state.Exited)
	require.Empty(t, d.Breakpoints())
}
