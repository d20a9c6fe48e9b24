package dapclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/go-dap"

	"github.com/eclipse-che/debugd/pkg/config"
	"github.com/eclipse-che/debugd/pkg/logflags"
	"github.com/eclipse-che/debugd/pkg/proc"
)

var errDetached = errors.New("detached")

// connection is one debug session with a debug adapter.
type connection struct {
	conn   net.Conn
	reader *bufio.Reader
	log    logflags.Logger

	sendMu sync.Mutex
	seq    int

	pendingMu sync.Mutex
	pending   map[int]chan dap.Message

	// queue carries events from the read loop to the event loop, events
	// is the channel returned by Process.Events.
	queue  chan dap.Message
	events chan proc.Event

	failOnce sync.Once
	done     chan struct{}
	lost     error

	// bpMu serializes setBreakpoints requests. bps holds the lines with
	// a verified breakpoint per file.
	bpMu sync.Mutex
	bps  map[string]map[int]bool

	mu         sync.Mutex
	bpIDs      map[int]proc.Location
	configured bool
	lastCmd    proc.CommandKind
	stopped    bool
	threadID   int
	frameID    int
	exitCode   int
	terminated bool
}

func newConnection(conn net.Conn, log logflags.Logger) *connection {
	return &connection{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		log:     log,
		pending: make(map[int]chan dap.Message),
		queue:   make(chan dap.Message, 64),
		events:  make(chan proc.Event, 16),
		done:    make(chan struct{}),
		bps:     make(map[string]map[int]bool),
		bpIDs:   make(map[int]proc.Location),
	}
}

func (c *connection) newRequest(command string) dap.Request {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.seq++
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Seq: c.seq, Type: "request"},
		Command:         command,
	}
}

// fail ends the connection. The first error is kept.
func (c *connection) fail(err error) {
	c.failOnce.Do(func() {
		c.lost = err
		close(c.done)
		c.conn.Close()
	})
}

func (c *connection) close() {
	c.fail(errDetached)
}

func (c *connection) err() error {
	<-c.done
	return c.lost
}

// call sends req and waits for its response. Error responses are
// returned as errors.
func (c *connection) call(ctx context.Context, req dap.Message) (dap.Message, error) {
	command := req.(dap.RequestMessage).GetRequest().Command
	ch := make(chan dap.Message, 1)
	c.pendingMu.Lock()
	c.pending[req.GetSeq()] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.GetSeq())
		c.pendingMu.Unlock()
	}()

	c.sendMu.Lock()
	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
	}
	err := dap.WriteProtocolMessage(c.conn, req)
	c.sendMu.Unlock()
	if err != nil {
		c.fail(err)
		return nil, &proc.TransportError{Op: command, Err: err}
	}

	select {
	case resp := <-ch:
		if er, ok := resp.(*dap.ErrorResponse); ok {
			return nil, responseError(er)
		}
		if r, ok := resp.(dap.ResponseMessage); ok && !r.GetResponse().Success {
			return nil, fmt.Errorf("%s: %s", command, r.GetResponse().Message)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, &proc.TransportError{Op: command, Err: c.lost}
	}
}

func responseError(er *dap.ErrorResponse) error {
	if er.Body.Error != nil && er.Body.Error.Format != "" {
		return errors.New(er.Body.Error.Format)
	}
	return fmt.Errorf("%s: %s", er.Command, er.Message)
}

// readLoop dispatches responses to their callers and events to the
// event loop until the connection ends.
func (c *connection) readLoop() {
	defer close(c.queue)
	for {
		m, err := dap.ReadProtocolMessage(c.reader)
		if err != nil {
			var fieldErr *dap.DecodeProtocolMessageFieldError
			if errors.As(err, &fieldErr) {
				c.log.Debugf("ignoring message: %v", err)
				continue
			}
			c.fail(err)
			return
		}
		switch m := m.(type) {
		case dap.ResponseMessage:
			c.pendingMu.Lock()
			ch := c.pending[m.GetResponse().RequestSeq]
			c.pendingMu.Unlock()
			if ch != nil {
				ch <- m
			}
		case dap.EventMessage:
			select {
			case c.queue <- m:
			case <-c.done:
				return
			}
		default:
			c.log.Debugf("ignoring %T", m)
		}
	}
}

// eventLoop converts the events of the debug adapter into proc events.
func (c *connection) eventLoop() {
	defer close(c.events)
	for m := range c.queue {
		ev, ok := c.convert(m)
		if !ok {
			continue
		}
		c.events <- ev
		if ev.Kind == proc.EventExited {
			return
		}
	}
	if err := c.err(); err != errDetached {
		c.events <- proc.Event{Kind: proc.EventExited, Err: &proc.TransportError{Op: "read", Err: err}}
	}
}

func stopReason(reason string) proc.StopReason {
	switch reason {
	case "breakpoint", "function breakpoint", "data breakpoint", "instruction breakpoint":
		return proc.StopBreakpoint
	case "step", "goto":
		return proc.StopStep
	case "entry":
		return proc.StopEntry
	}
	return proc.StopPause
}

func (c *connection) convert(m dap.Message) (proc.Event, bool) {
	switch e := m.(type) {
	case *dap.StoppedEvent:
		return c.suspended(e)
	case *dap.ContinuedEvent:
		c.mu.Lock()
		c.stopped = false
		c.mu.Unlock()
		return proc.Event{Kind: proc.EventResumed, ThreadID: e.Body.ThreadId}, true
	case *dap.ExitedEvent:
		c.mu.Lock()
		c.exitCode = e.Body.ExitCode
		c.mu.Unlock()
	case *dap.TerminatedEvent:
		c.mu.Lock()
		defer c.mu.Unlock()
		c.terminated = true
		c.stopped = false
		return proc.Event{Kind: proc.EventExited, ExitStatus: c.exitCode}, true
	case *dap.OutputEvent:
		c.log.Debugf("[%s] %s", e.Body.Category, e.Body.Output)
	case *dap.InitializedEvent:
	default:
		c.log.Debugf("ignoring event %T", m)
	}
	return proc.Event{}, false
}

// suspended reads the top frame of the stopped thread.
func (c *connection) suspended(e *dap.StoppedEvent) (proc.Event, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultActionTimeout)
	defer cancel()

	threadID := e.Body.ThreadId
	req := &dap.StackTraceRequest{Request: c.newRequest("stackTrace")}
	req.Arguments.ThreadId = threadID
	req.Arguments.Levels = 1
	resp, err := c.call(ctx, req)
	if err != nil {
		if proc.IsTransportError(err) {
			return proc.Event{Kind: proc.EventExited, Err: err}, true
		}
		c.log.Errorf("stopped without a location: %v", err)
		return proc.Event{}, false
	}
	frames := resp.(*dap.StackTraceResponse).Body.StackFrames
	if len(frames) == 0 || frames[0].Source == nil {
		c.log.Errorf("stopped without a location")
		return proc.Event{}, false
	}
	top := frames[0]
	ev := proc.Event{
		Kind:     proc.EventSuspended,
		Reason:   stopReason(e.Body.Reason),
		Location: proc.Location{File: top.Source.Path, Line: top.Line},
		ThreadID: threadID,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.threadID = threadID
	c.frameID = top.Id
	if ev.Reason == proc.StopBreakpoint {
		loc := ev.Location
		for _, id := range e.Body.HitBreakpointIds {
			if l, ok := c.bpIDs[id]; ok {
				loc = l
				break
			}
		}
		ev.Breakpoint = &loc
	} else if c.bps[ev.Location.File][ev.Location.Line] {
		loc := ev.Location
		ev.Breakpoint = &loc
	}
	return ev, true
}

// localsReference returns the reference of the first scope of frame.
func (c *connection) localsReference(ctx context.Context, frameID int) (int, error) {
	req := &dap.ScopesRequest{Request: c.newRequest("scopes")}
	req.Arguments.FrameId = frameID
	resp, err := c.call(ctx, req)
	if err != nil {
		return 0, err
	}
	scopes := resp.(*dap.ScopesResponse).Body.Scopes
	if len(scopes) == 0 {
		return 0, errors.New("no scope")
	}
	for _, s := range scopes {
		if s.Name == "Locals" {
			return s.VariablesReference, nil
		}
	}
	return scopes[0].VariablesReference, nil
}

// variables loads the children of ref, depth levels deep.
func (c *connection) variables(ctx context.Context, ref, depth int) ([]proc.Variable, error) {
	req := &dap.VariablesRequest{Request: c.newRequest("variables")}
	req.Arguments.VariablesReference = ref
	resp, err := c.call(ctx, req)
	if err != nil {
		return nil, err
	}
	vars := resp.(*dap.VariablesResponse).Body.Variables
	r := make([]proc.Variable, len(vars))
	for i, v := range vars {
		r[i] = proc.Variable{Name: v.Name, Kind: v.Type, Value: v.Value}
		if v.VariablesReference > 0 && depth > 1 {
			if r[i].Children, err = c.variables(ctx, v.VariablesReference, depth-1); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}
