package wsagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eclipse-che/debugd/pkg/config"
	"github.com/eclipse-che/debugd/pkg/logflags"
	"github.com/eclipse-che/debugd/pkg/proc"
)

// Agent serves one debuggee to one websocket client at a time.
type Agent struct {
	target   proc.Process
	timeout  time.Duration
	log      logflags.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	busy bool
}

// NewAgent returns an Agent serving target. Every call made to target is
// bounded by timeout, zero means config.DefaultActionTimeout.
func NewAgent(target proc.Process, timeout time.Duration) *Agent {
	if timeout <= 0 {
		timeout = config.DefaultActionTimeout
	}
	return &Agent{
		target:  target,
		timeout: timeout,
		log:     logflags.TransportLogger("wsagent"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Serve accepts connections on l until it is closed.
func (a *Agent) Serve(l net.Listener) error {
	logflags.WriteAgentListeningMessage(l.Addr())
	srv := &http.Server{Handler: a}
	err := srv.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ServeHTTP upgrades the request to a websocket and serves the debuggee
// until the client goes away.
func (a *Agent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	if a.busy {
		a.mu.Unlock()
		http.Error(w, "debuggee already in use", http.StatusConflict)
		return
	}
	a.busy = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.busy = false
		a.mu.Unlock()
	}()

	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Errorf("upgrade: %v", err)
		return
	}
	s := &agentSession{agent: a, ws: ws, log: a.log.WithField("remote", r.RemoteAddr)}
	s.serve()
}

type agentSession struct {
	agent *Agent
	ws    *websocket.Conn
	log   logflags.Logger

	writeMu  sync.Mutex
	attached bool
	// forwarded is closed once the events of the debuggee are forwarded.
	forwarded chan struct{}
}

func (s *agentSession) write(m *message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.WriteJSON(m)
}

func (s *agentSession) serve() {
	defer s.ws.Close()
	s.log.Debug("client connected")
	for {
		var req message
		if err := s.ws.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debugf("read: %v", err)
			}
			break
		}
		if req.Type != typeRequest {
			s.log.Debugf("ignoring %s message", req.Type)
			continue
		}
		resp := s.handle(&req)
		if err := s.write(resp); err != nil {
			s.log.Debugf("write: %v", err)
			break
		}
	}
	if s.attached {
		s.detach()
	}
	s.log.Debug("client disconnected")
}

func (s *agentSession) detach() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.agent.timeout)
	defer cancel()
	err := s.agent.target.Detach(ctx)
	s.attached = false
	<-s.forwarded
	return err
}

// forward sends the events of the debuggee until the connection ends.
func (s *agentSession) forward(events <-chan proc.Event) {
	defer close(s.forwarded)
	for ev := range events {
		if err := s.write(&message{Type: typeEvent, Event: fromEvent(ev)}); err != nil {
			s.log.Debugf("forward %s: %v", ev.Kind, err)
		}
	}
}

func (s *agentSession) handle(req *message) *message {
	ctx, cancel := context.WithTimeout(context.Background(), s.agent.timeout)
	defer cancel()

	result, err := s.call(ctx, req)
	resp := &message{Type: typeResponse, ID: req.ID}
	if err != nil {
		resp.Error = err.Error()
		resp.Transport = proc.IsTransportError(err)
		resp.Timeout = errors.Is(err, context.DeadlineExceeded)
		return resp
	}
	if result != nil {
		if resp.Result, err = json.Marshal(result); err != nil {
			resp.Error = err.Error()
		}
	}
	return resp
}

func (s *agentSession) call(ctx context.Context, req *message) (interface{}, error) {
	target := s.agent.target
	switch req.Method {
	case MethodAttach:
		if s.attached {
			return nil, errors.New("already attached")
		}
		if err := target.Attach(ctx); err != nil {
			return nil, err
		}
		s.attached = true
		s.forwarded = make(chan struct{})
		go s.forward(target.Events())
		return nil, nil
	case MethodDetach:
		if !s.attached {
			return nil, proc.ErrNotAttached
		}
		return nil, s.detach()
	}

	if !s.attached {
		return nil, proc.ErrNotAttached
	}
	switch req.Method {
	case MethodCommand:
		var p commandParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		return nil, target.Command(ctx, proc.Command{Kind: p.Kind, Proceed: p.Proceed})
	case MethodSetBreakpoint, MethodClearBreakpoint:
		var loc location
		if err := json.Unmarshal(req.Params, &loc); err != nil {
			return nil, err
		}
		if req.Method == MethodSetBreakpoint {
			return nil, target.SetBreakpoint(ctx, loc.proc())
		}
		return nil, target.ClearBreakpoint(ctx, loc.proc())
	case MethodEvaluate:
		ev, ok := target.(proc.Evaluator)
		if !ok {
			return nil, errors.New("the debuggee can not evaluate expressions")
		}
		var p evaluateParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		v, err := ev.Evaluate(ctx, p.Frame.proc(), p.Expr)
		if err != nil {
			return nil, err
		}
		return fromVariable(*v), nil
	case MethodSetVariable:
		ev, ok := target.(proc.Evaluator)
		if !ok {
			return nil, errors.New("the debuggee can not set variables")
		}
		var p setVariableParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, err
		}
		return nil, ev.SetVariable(ctx, p.Frame.proc(), p.Name, p.Value)
	case MethodVariables:
		vl, ok := target.(proc.VariableLister)
		if !ok {
			return nil, errors.New("the debuggee can not list variables")
		}
		var f frame
		if err := json.Unmarshal(req.Params, &f); err != nil {
			return nil, err
		}
		vars, err := vl.Variables(ctx, f.proc())
		if err != nil {
			return nil, err
		}
		r := make([]variable, len(vars))
		for i := range vars {
			r[i] = fromVariable(vars[i])
		}
		return r, nil
	}
	return nil, fmt.Errorf("unknown method %q", req.Method)
}
