package wsagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/eclipse-che/debugd/pkg/logflags"
	"github.com/eclipse-che/debugd/pkg/proc"
)

var errDetached = errors.New("detached")

// Client is a proc.Process whose debuggee is served by an Agent.
type Client struct {
	url string
	log logflags.Logger

	mu   sync.Mutex
	conn *clientConn
}

var (
	_ proc.Process        = &Client{}
	_ proc.Evaluator      = &Client{}
	_ proc.VariableLister = &Client{}
)

// NewClient returns a detached Client for the agent at url, for example
// ws://localhost:4040/.
func NewClient(url string) *Client {
	return &Client{url: url, log: logflags.TransportLogger("wsagent")}
}

type clientConn struct {
	ws  *websocket.Conn
	log logflags.Logger

	writeMu sync.Mutex
	seq     int

	pendingMu sync.Mutex
	pending   map[int]chan *message

	queue  chan *event
	events chan proc.Event

	failOnce sync.Once
	done     chan struct{}
	lost     error
}

func (c *clientConn) fail(err error) {
	c.failOnce.Do(func() {
		c.lost = err
		close(c.done)
		c.ws.Close()
	})
}

func (c *clientConn) err() error {
	<-c.done
	return c.lost
}

// Attach implements proc.Process.
func (cl *Client) Attach(ctx context.Context) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.conn != nil {
		return errors.New("already attached")
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, cl.url, nil)
	if err != nil {
		return &proc.TransportError{Op: "attach", Err: err}
	}
	c := &clientConn{
		ws:      ws,
		log:     cl.log,
		pending: make(map[int]chan *message),
		queue:   make(chan *event, 64),
		events:  make(chan proc.Event, 16),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	go c.eventLoop()
	if err := c.call(ctx, MethodAttach, nil, nil); err != nil {
		c.fail(errDetached)
		return err
	}
	cl.conn = c
	cl.log.Debugf("attached to %s", cl.url)
	return nil
}

func (cl *Client) current(op string) (*clientConn, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.conn == nil {
		return nil, proc.ErrNotAttached
	}
	select {
	case <-cl.conn.done:
		return nil, &proc.TransportError{Op: op, Err: cl.conn.err()}
	default:
	}
	return cl.conn, nil
}

func (cl *Client) call(ctx context.Context, method string, params, result interface{}) error {
	c, err := cl.current(method)
	if err != nil {
		return err
	}
	return c.call(ctx, method, params, result)
}

// Command implements proc.Process.
func (cl *Client) Command(ctx context.Context, cmd proc.Command) error {
	return cl.call(ctx, MethodCommand, commandParams{Kind: cmd.Kind, Proceed: cmd.Proceed}, nil)
}

// SetBreakpoint implements proc.Process.
func (cl *Client) SetBreakpoint(ctx context.Context, loc proc.Location) error {
	return cl.call(ctx, MethodSetBreakpoint, fromLocation(loc), nil)
}

// ClearBreakpoint implements proc.Process.
func (cl *Client) ClearBreakpoint(ctx context.Context, loc proc.Location) error {
	return cl.call(ctx, MethodClearBreakpoint, fromLocation(loc), nil)
}

// Events implements proc.Process.
func (cl *Client) Events() <-chan proc.Event {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.conn == nil {
		ch := make(chan proc.Event)
		close(ch)
		return ch
	}
	return cl.conn.events
}

// Detach implements proc.Process.
func (cl *Client) Detach(ctx context.Context) error {
	cl.mu.Lock()
	c := cl.conn
	cl.conn = nil
	cl.mu.Unlock()
	if c == nil {
		return proc.ErrNotAttached
	}
	select {
	case <-c.done:
		return nil
	default:
	}
	err := c.call(ctx, MethodDetach, nil, nil)
	c.writeMu.Lock()
	c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	c.fail(errDetached)
	return err
}

// Evaluate implements proc.Evaluator.
func (cl *Client) Evaluate(ctx context.Context, f proc.Frame, expr string) (*proc.Variable, error) {
	var v variable
	if err := cl.call(ctx, MethodEvaluate, evaluateParams{Frame: fromFrame(f), Expr: expr}, &v); err != nil {
		return nil, err
	}
	r := v.proc()
	return &r, nil
}

// SetVariable implements proc.Evaluator.
func (cl *Client) SetVariable(ctx context.Context, f proc.Frame, name, value string) error {
	return cl.call(ctx, MethodSetVariable, setVariableParams{Frame: fromFrame(f), Name: name, Value: value}, nil)
}

// Variables implements proc.VariableLister.
func (cl *Client) Variables(ctx context.Context, f proc.Frame) ([]proc.Variable, error) {
	var vars []variable
	if err := cl.call(ctx, MethodVariables, fromFrame(f), &vars); err != nil {
		return nil, err
	}
	r := make([]proc.Variable, len(vars))
	for i := range vars {
		r[i] = vars[i].proc()
	}
	return r, nil
}

func (c *clientConn) call(ctx context.Context, method string, params, result interface{}) error {
	req := &message{Type: typeRequest, Method: method}
	if params != nil {
		var err error
		if req.Params, err = json.Marshal(params); err != nil {
			return err
		}
	}
	ch := make(chan *message, 1)

	c.writeMu.Lock()
	c.seq++
	req.ID = c.seq
	c.pendingMu.Lock()
	c.pending[req.ID] = ch
	c.pendingMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		c.ws.SetWriteDeadline(deadline)
	}
	err := c.ws.WriteJSON(req)
	c.writeMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.ID)
		c.pendingMu.Unlock()
	}()
	if err != nil {
		c.fail(err)
		return &proc.TransportError{Op: method, Err: err}
	}

	select {
	case resp := <-ch:
		switch {
		case resp.Transport:
			return &proc.TransportError{Op: method, Err: errors.New(resp.Error)}
		case resp.Timeout:
			return fmt.Errorf("%s: %w", method, context.DeadlineExceeded)
		case resp.Error != "":
			return errors.New(resp.Error)
		}
		if result != nil && len(resp.Result) > 0 {
			return json.Unmarshal(resp.Result, result)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return &proc.TransportError{Op: method, Err: c.lost}
	}
}

func (c *clientConn) readLoop() {
	defer close(c.queue)
	for {
		var m message
		if err := c.ws.ReadJSON(&m); err != nil {
			c.fail(err)
			return
		}
		switch m.Type {
		case typeResponse:
			c.pendingMu.Lock()
			ch := c.pending[m.ID]
			c.pendingMu.Unlock()
			if ch != nil {
				ch <- &m
			}
		case typeEvent:
			if m.Event == nil {
				continue
			}
			select {
			case c.queue <- m.Event:
			case <-c.done:
				return
			}
		default:
			c.log.Debugf("ignoring %s message", m.Type)
		}
	}
}

func (c *clientConn) eventLoop() {
	defer close(c.events)
	for ev := range c.queue {
		c.events <- ev.proc()
	}
	if err := c.err(); err != errDetached {
		c.events <- proc.Event{Kind: proc.EventExited, Err: &proc.TransportError{Op: "read", Err: err}}
	}
}
