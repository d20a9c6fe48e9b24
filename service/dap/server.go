// Package dap implements VSCode's Debug Adaptor Protocol (DAP).
// This allows debugd to communicate with frontends using DAP
// without a separate adaptor. The frontend will run debugd
// (which then doubles as an adaptor) in server mode listening on
// a port and communicating over TCP.
// For DAP details see https://microsoft.github.io/debug-adapter-protocol.
package dap

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/go-dap"

	"github.com/eclipse-che/debugd/pkg/config"
	"github.com/eclipse-che/debugd/pkg/logflags"
	"github.com/eclipse-che/debugd/service"
	"github.com/eclipse-che/debugd/service/api"
	"github.com/eclipse-che/debugd/service/debugger"
	"github.com/eclipse-che/debugd/service/internal/sameuser"
)

// Server implements a DAP server that can accept a single client for
// a single debug session.
// The server operates via three kinds of goroutines:
// (1) Main goroutine where the server is created via NewServer(),
// started via Run() and stopped via Stop().
// (2) Run goroutine started from Run() that accepts a client connection,
// reads, decodes and processes each request, issuing commands to the
// underlying debugger and sending back events and responses.
// (3) Wait goroutines, started after every command that resumes the
// debuggee, which send the stopped or terminated event.
type Server struct {
	// config is all the information necessary to start the debugger and server.
	config *service.Config
	// listener is used to accept the client connection.
	listener net.Listener
	// conn is the accepted client connection.
	conn net.Conn
	// stopChan is closed when the server is Stop()-ed. This can be used to signal
	// to goroutines run by the server that it's time to quit.
	stopChan chan struct{}
	stopOnce sync.Once
	// reader is used to read requests from the connection.
	reader *bufio.Reader
	// debugger is the underlying debugger service, created by the launch
	// or attach request.
	debugger *debugger.Debugger
	// log is used for structured logging.
	log logflags.Logger
	// sendingMu synchronizes writing to the connection.
	sendingMu sync.Mutex
	// variableHandles maps compound variables to unique references.
	// Only accessed by the run goroutine.
	variableHandles *variablesHandlesMap
	// substitutePath is applied to the paths of breakpoints.
	substitutePath config.SubstitutePathRules
	// resumed is set by request handlers that resumed the debuggee.
	resumed bool
}

// NewServer creates a new DAP Server. It takes an opened Listener
// via config and assumes its ownership. config.DisconnectChan has to be set;
// it will be closed by the server when the client disconnects or requests
// shutdown. Once DisconnectChan is closed, Server.Stop() must be called.
func NewServer(config *service.Config) *Server {
	logger := logflags.DAPLogger()
	logflags.WriteDAPListeningMessage(config.Listener.Addr())
	return &Server{
		config:          config,
		listener:        config.Listener,
		stopChan:        make(chan struct{}),
		log:             logger,
		variableHandles: newVariablesHandlesMap(),
		substitutePath:  config.Debugger.SubstitutePath,
	}
}

// Stop stops the DAP debugger service, closes the listener and the client
// connection. It disconnects the session from the debuggee.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.listener.Close()
		close(s.stopChan)
	})
	if s.conn != nil {
		// Unless Stop() was called after serveDAPCodec()
		// returned, this will result in closed connection error
		// on next read, breaking out of the read loop and
		// allowing the run goroutine to exit.
		s.conn.Close()
	}
	if s.debugger != nil {
		if err := s.debugger.Close(); err != nil {
			s.log.Error(err)
		}
	}
}

// signalDisconnect closes config.DisconnectChan if not nil, which
// signals that the client disconnected or there was a client
// connection failure. Since the server currently services only one
// client, this can be used as a signal to the entire server via
// Stop(). It is only called from the run goroutine.
func (s *Server) signalDisconnect() {
	if s.config.DisconnectChan != nil {
		close(s.config.DisconnectChan)
		s.config.DisconnectChan = nil
	}
}

// Run launches a new goroutine where it accepts a client connection
// and starts processing requests from it. Use Stop() to close connection.
// The server does not support multiple clients, serially or in parallel.
// The debug session won't be started until launch/attach request is received.
func (s *Server) Run() {
	go func() {
		var conn net.Conn
		for {
			var err error
			conn, err = s.listener.Accept()
			if err != nil {
				select {
				case <-s.stopChan:
				default:
					s.log.Errorf("Error accepting client connection: %s\n", err)
				}
				s.signalDisconnect()
				return
			}
			if !s.config.CheckLocalConnUser || sameuser.CanAccept(s.listener.Addr(), conn.LocalAddr(), conn.RemoteAddr(), s.log) {
				break
			}
			conn.Close()
		}
		s.conn = conn
		s.serveDAPCodec()
	}()
}

// serveDAPCodec reads and decodes requests from the client
// until it encounters an error or EOF, when it sends
// the disconnect signal and returns.
func (s *Server) serveDAPCodec() {
	defer s.signalDisconnect()
	s.reader = bufio.NewReader(s.conn)
	for {
		request, err := dap.ReadProtocolMessage(s.reader)
		if err != nil {
			var fieldErr *dap.DecodeProtocolMessageFieldError
			if errors.As(err, &fieldErr) {
				// Send an error response to the users if we were unable to process the message.
				s.sendInternalErrorResponse(fieldErr.Seq, err.Error())
				continue
			}
			stopRequested := false
			select {
			case <-s.stopChan:
				stopRequested = true
			default:
			}
			if err != io.EOF && !stopRequested {
				s.log.Error("DAP error: ", err)
			}
			return
		}
		s.handleRequest(request)
		if s.resumed {
			s.resumed = false
			s.variableHandles.reset()
			go s.waitForStop()
		}
	}
}

func (s *Server) handleRequest(request dap.Message) {
	defer func() {
		// In case a handler panics, we catch the panic and send an error response
		// back to the client.
		if ierr := recover(); ierr != nil {
			s.sendInternalErrorResponse(request.GetSeq(), fmt.Sprintf("%v", ierr))
		}
	}()

	jsonmsg, _ := json.Marshal(request)
	s.log.Debug("[<- from client]", string(jsonmsg))

	if _, ok := request.(dap.RequestMessage); !ok {
		s.sendInternalErrorResponse(request.GetSeq(), fmt.Sprintf("Unable to process non-request %#v\n", request))
		return
	}

	switch request := request.(type) {
	case *dap.InitializeRequest:
		s.onInitializeRequest(request)
	case *dap.LaunchRequest:
		s.onLaunchRequest(request)
	case *dap.AttachRequest:
		s.onAttachRequest(request)
	case *dap.DisconnectRequest:
		s.onDisconnectRequest(request)
	case *dap.SetBreakpointsRequest:
		s.onSetBreakpointsRequest(request)
	case *dap.SetExceptionBreakpointsRequest:
		s.onSetExceptionBreakpointsRequest(request)
	case *dap.ConfigurationDoneRequest:
		s.onConfigurationDoneRequest(request)
	case *dap.ContinueRequest:
		s.onContinueRequest(request)
	case *dap.NextRequest:
		s.onNextRequest(request)
	case *dap.StepInRequest:
		s.onStepInRequest(request)
	case *dap.StepOutRequest:
		s.onStepOutRequest(request)
	case *dap.PauseRequest:
		s.onPauseRequest(request)
	case *dap.ThreadsRequest:
		s.onThreadsRequest(request)
	case *dap.StackTraceRequest:
		s.onStackTraceRequest(request)
	case *dap.ScopesRequest:
		s.onScopesRequest(request)
	case *dap.VariablesRequest:
		s.onVariablesRequest(request)
	case *dap.EvaluateRequest:
		s.onEvaluateRequest(request)
	case *dap.SetVariableRequest:
		s.onSetVariableRequest(request)
	case *dap.TerminateRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.RestartRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.SetFunctionBreakpointsRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.StepBackRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.ReverseContinueRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.SourceRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.GotoRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	case *dap.RestartFrameRequest:
		s.sendUnsupportedErrorResponse(request.Request)
	default:
		// This is a DAP message that go-dap has a struct for, so
		// decoding succeeded, but this function does not know how
		// to handle.
		s.sendUnsupportedErrorResponse(dap.Request{ProtocolMessage: dap.ProtocolMessage{Seq: request.GetSeq()}})
	}
}

func (s *Server) send(message dap.Message) {
	jsonmsg, _ := json.Marshal(message)
	s.log.Debug("[-> to client]", string(jsonmsg))
	s.sendingMu.Lock()
	defer s.sendingMu.Unlock()
	if err := dap.WriteProtocolMessage(s.conn, message); err != nil {
		s.log.Debug(err)
	}
}

func (s *Server) onInitializeRequest(request *dap.InitializeRequest) {
	response := &dap.InitializeResponse{Response: *newResponse(request.Request)}
	response.Body.SupportsConfigurationDoneRequest = true
	response.Body.SupportsConditionalBreakpoints = true
	response.Body.SupportsHitConditionalBreakpoints = true
	response.Body.SupportsSetVariable = true
	response.Body.SupportsEvaluateForHovers = true
	response.Body.SupportsFunctionBreakpoints = false
	response.Body.SupportsTerminateRequest = false
	response.Body.SupportsRestartRequest = false
	response.Body.SupportsStepBack = false
	s.send(response)
}

func (s *Server) onLaunchRequest(request *dap.LaunchRequest) {
	var args LaunchConfig
	if err := unmarshalLaunchAttachArgs(request.Arguments, &args); err != nil {
		s.sendErrorResponse(request.Request, FailedToLaunch, "Failed to launch", err.Error())
		return
	}
	if err := s.startSession(args.LaunchAttachCommonConfig); err != nil {
		s.sendErrorResponse(request.Request, FailedToLaunch, "Failed to launch", err.Error())
		return
	}
	s.log.Infof("debug configuration %q launched", args.Name)
	// Notify the client that the debugger is ready to start accepting
	// configuration requests for setting breakpoints, etc. The client
	// will end the configuration sequence with 'configurationDone'.
	s.send(&dap.InitializedEvent{Event: *newEvent("initialized")})
	s.send(&dap.LaunchResponse{Response: *newResponse(request.Request)})
}

func (s *Server) onAttachRequest(request *dap.AttachRequest) {
	var args AttachConfig
	if err := unmarshalLaunchAttachArgs(request.Arguments, &args); err != nil {
		s.sendErrorResponse(request.Request, FailedToAttach, "Failed to attach", err.Error())
		return
	}
	if err := s.startSession(args.LaunchAttachCommonConfig); err != nil {
		s.sendErrorResponse(request.Request, FailedToAttach, "Failed to attach", err.Error())
		return
	}
	s.send(&dap.InitializedEvent{Event: *newEvent("initialized")})
	s.send(&dap.AttachResponse{Response: *newResponse(request.Request)})
}

// startSession creates the debugger. The debuggee is attached by the
// configurationDone request, once the client has sent its breakpoints.
func (s *Server) startSession(args LaunchAttachCommonConfig) error {
	if s.debugger != nil {
		return errors.New("debug session already in progress")
	}
	cfg := s.config.Debugger
	rules := append(config.SubstitutePathRules{}, s.substitutePath...)
	for _, sp := range args.SubstitutePath {
		rules = append(rules, config.SubstitutePathRule{From: sp.From, To: sp.To})
	}
	s.substitutePath = rules
	cfg.SubstitutePath = rules
	d, err := debugger.New(&cfg, s.config.Target, s.config.Evaluator)
	if err != nil {
		return err
	}
	s.debugger = d
	return nil
}

// onDisconnectRequest handles the DisconnectRequest. Per the DAP spec,
// it disconnects the debuggee and signals that the debug adaptor
// (in our case this TCP server) can be terminated.
func (s *Server) onDisconnectRequest(request *dap.DisconnectRequest) {
	if s.debugger != nil && s.debugger.State().State != api.StateDisconnected {
		if err := s.debugger.Detach(); err != nil {
			s.log.Error(err)
		}
	}
	s.send(&dap.DisconnectResponse{Response: *newResponse(request.Request)})
	// TODO(che): wait for the client to close the connection when
	// accept-multiclient is supported by the DAP server.
	s.signalDisconnect()
}

// onSetBreakpointsRequest replaces the breakpoints of a source file with
// the requested ones. Breakpoints already set on a requested line are
// amended, so they keep their ID and hit budget.
func (s *Server) onSetBreakpointsRequest(request *dap.SetBreakpointsRequest) {
	if s.debugger == nil {
		s.sendErrorResponse(request.Request, UnableToSetBreakpoints, "Unable to set or clear breakpoints", "no debug session")
		return
	}
	path := request.Arguments.Source.Path
	if path == "" {
		s.sendErrorResponse(request.Request, UnableToSetBreakpoints, "Unable to set or clear breakpoints", "empty file path")
		return
	}
	file := s.substitutePath.Substitute(path)

	wanted := make(map[int]bool, len(request.Arguments.Breakpoints))
	for _, want := range request.Arguments.Breakpoints {
		wanted[want.Line] = true
	}
	for _, bp := range s.debugger.Breakpoints() {
		if bp.File != file || wanted[bp.Line] || bp.Transient {
			continue
		}
		if _, err := s.debugger.ClearBreakpoint(bp.ID); err != nil {
			s.log.Errorf("could not clear breakpoint %d: %v", bp.ID, err)
		}
	}

	response := &dap.SetBreakpointsResponse{Response: *newResponse(request.Request)}
	response.Body.Breakpoints = make([]dap.Breakpoint, len(request.Arguments.Breakpoints))
	for i, want := range request.Arguments.Breakpoints {
		response.Body.Breakpoints[i].Line = want.Line
		bp, err := s.setBreakpoint(path, want)
		if err != nil {
			response.Body.Breakpoints[i].Verified = false
			response.Body.Breakpoints[i].Message = err.Error()
			continue
		}
		response.Body.Breakpoints[i].Id = bp.ID
		response.Body.Breakpoints[i].Verified = true
		response.Body.Breakpoints[i].Line = bp.Line
	}
	s.send(response)
}

func (s *Server) setBreakpoint(path string, want dap.SourceBreakpoint) (*api.Breakpoint, error) {
	hitCount, err := parseHitCondition(want.HitCondition)
	if err != nil {
		return nil, err
	}
	req := &api.Breakpoint{File: path, Line: want.Line, Cond: want.Condition, HitCount: hitCount}
	if got := s.debugger.FindBreakpointByLocation(path, want.Line); got != nil {
		if got.Cond == req.Cond && got.HitCount == req.HitCount && !got.Disabled {
			return got, nil
		}
		req.ID = got.ID
		req.File = ""
		if err := s.debugger.AmendBreakpoint(req); err != nil {
			return nil, err
		}
		return s.debugger.FindBreakpoint(got.ID), nil
	}
	return s.debugger.CreateBreakpoint(req)
}

func (s *Server) onSetExceptionBreakpointsRequest(request *dap.SetExceptionBreakpointsRequest) {
	// Unlike what DAP documentation claims, this request is always sent
	// even though we specified no filters at initialization. Handle as no-op.
	s.send(&dap.SetExceptionBreakpointsResponse{Response: *newResponse(request.Request)})
}

func (s *Server) onConfigurationDoneRequest(request *dap.ConfigurationDoneRequest) {
	if s.debugger == nil {
		s.sendErrorResponse(request.Request, FailedToAttach, "Failed to attach", "launch or attach first")
		return
	}
	if _, err := s.debugger.Attach(); err != nil {
		s.sendErrorResponse(request.Request, FailedToAttach, "Failed to attach", err.Error())
		return
	}
	s.send(&dap.ConfigurationDoneResponse{Response: *newResponse(request.Request)})
	s.resumed = true
}

// resume sends a command that resumes the debuggee. The stopped event is
// sent once the response of the current request is on the wire.
func (s *Server) resume(cmd *api.DebuggerCommand) error {
	if s.debugger == nil {
		return errors.New("no debug session")
	}
	if _, err := s.debugger.Command(cmd); err != nil {
		return err
	}
	s.resumed = true
	return nil
}

func (s *Server) onContinueRequest(request *dap.ContinueRequest) {
	if err := s.resume(&api.DebuggerCommand{Name: api.Continue}); err != nil {
		s.sendErrorResponse(request.Request, UnableToContinue, "Unable to continue", err.Error())
		return
	}
	s.send(&dap.ContinueResponse{
		Response: *newResponse(request.Request),
		Body:     dap.ContinueResponseBody{AllThreadsContinued: true},
	})
}

func (s *Server) onNextRequest(request *dap.NextRequest) {
	if err := s.resume(&api.DebuggerCommand{Name: api.Next}); err != nil {
		s.sendErrorResponse(request.Request, UnableToContinue, "Unable to step over", err.Error())
		return
	}
	s.send(&dap.NextResponse{Response: *newResponse(request.Request)})
}

func (s *Server) onStepInRequest(request *dap.StepInRequest) {
	if err := s.resume(&api.DebuggerCommand{Name: api.Step}); err != nil {
		s.sendErrorResponse(request.Request, UnableToContinue, "Unable to step into", err.Error())
		return
	}
	s.send(&dap.StepInResponse{Response: *newResponse(request.Request)})
}

func (s *Server) onStepOutRequest(request *dap.StepOutRequest) {
	if err := s.resume(&api.DebuggerCommand{Name: api.StepOut}); err != nil {
		s.sendErrorResponse(request.Request, UnableToContinue, "Unable to step out", err.Error())
		return
	}
	s.send(&dap.StepOutResponse{Response: *newResponse(request.Request)})
}

// onPauseRequest halts the debuggee. The stopped event is sent by the
// goroutine waiting since the debuggee was resumed.
func (s *Server) onPauseRequest(request *dap.PauseRequest) {
	if s.debugger == nil {
		s.sendErrorResponse(request.Request, UnableToHalt, "Unable to halt execution", "no debug session")
		return
	}
	if _, err := s.debugger.Command(&api.DebuggerCommand{Name: api.Halt}); err != nil {
		s.sendErrorResponse(request.Request, UnableToHalt, "Unable to halt execution", err.Error())
		return
	}
	s.send(&dap.PauseResponse{Response: *newResponse(request.Request)})
}

func threadID(state *api.DebuggerState) int {
	if state.ThreadID > 0 {
		return state.ThreadID
	}
	return 1
}

func (s *Server) onThreadsRequest(request *dap.ThreadsRequest) {
	if s.debugger == nil {
		s.sendErrorResponse(request.Request, UnableToDisplayThreads, "Unable to display threads", "no debug session")
		return
	}
	// The DAP spec states that "even if a debug adapter does not support
	// multiple threads, it must implement the threads request and return
	// a single (dummy) thread".
	state := s.debugger.State()
	thread := dap.Thread{Id: threadID(state), Name: "main"}
	if state.CurrentLocation != nil {
		thread.Name = fmt.Sprintf("%s:%d", filepath.Base(state.CurrentLocation.File), state.CurrentLocation.Line)
	}
	s.send(&dap.ThreadsResponse{
		Response: *newResponse(request.Request),
		Body:     dap.ThreadsResponseBody{Threads: []dap.Thread{thread}},
	})
}

func (s *Server) onStackTraceRequest(request *dap.StackTraceRequest) {
	if s.debugger == nil {
		s.sendErrorResponse(request.Request, UnableToProduceStackTrace, "Unable to produce stack trace", "no debug session")
		return
	}
	state := s.debugger.State()
	if state.CurrentLocation == nil {
		s.sendErrorResponse(request.Request, UnableToProduceStackTrace, "Unable to produce stack trace", "the debuggee is not suspended")
		return
	}
	loc := state.CurrentLocation
	frame := dap.StackFrame{
		Id:     startHandle,
		Name:   fmt.Sprintf("%s:%d", filepath.Base(loc.File), loc.Line),
		Source: &dap.Source{Name: filepath.Base(loc.File), Path: loc.File},
		Line:   loc.Line,
		Column: 1,
	}
	s.send(&dap.StackTraceResponse{
		Response: *newResponse(request.Request),
		Body:     dap.StackTraceResponseBody{StackFrames: []dap.StackFrame{frame}, TotalFrames: 1},
	})
}

func (s *Server) onScopesRequest(request *dap.ScopesRequest) {
	if s.debugger == nil {
		s.sendErrorResponse(request.Request, UnableToListLocals, "Unable to list locals", "no debug session")
		return
	}
	if request.Arguments.FrameId != startHandle {
		s.sendErrorResponse(request.Request, UnableToListLocals, "Unable to list locals", fmt.Sprintf("unknown frame id %d", request.Arguments.FrameId))
		return
	}
	locals, err := s.debugger.LocalVariables()
	if err != nil {
		s.sendErrorResponse(request.Request, UnableToListLocals, "Unable to list locals", err.Error())
		return
	}
	scope := &fullyQualifiedVariable{&api.Variable{Name: "Locals", Children: locals}, "", true}
	s.send(&dap.ScopesResponse{
		Response: *newResponse(request.Request),
		Body: dap.ScopesResponseBody{Scopes: []dap.Scope{
			{Name: "Locals", VariablesReference: s.variableHandles.create(scope)},
		}},
	})
}

func (s *Server) onVariablesRequest(request *dap.VariablesRequest) {
	v, ok := s.variableHandles.get(request.Arguments.VariablesReference)
	if !ok {
		s.sendErrorResponse(request.Request, UnableToLookupVariable, "Unable to lookup variable", fmt.Sprintf("unknown reference %d", request.Arguments.VariablesReference))
		return
	}
	children := make([]dap.Variable, len(v.Children))
	for i := range v.Children {
		c := &v.Children[i]
		fqn := childName(v, c)
		value, ref := s.convertVariable(c, fqn)
		children[i] = dap.Variable{
			Name:               c.Name,
			EvaluateName:       fqn,
			Type:               c.Kind,
			Value:              value,
			VariablesReference: ref,
		}
	}
	s.send(&dap.VariablesResponse{
		Response: *newResponse(request.Request),
		Body:     dap.VariablesResponseBody{Variables: children},
	})
}

// childName returns the expression that evaluates to child.
func childName(parent *fullyQualifiedVariable, child *api.Variable) string {
	switch {
	case parent.isScope:
		return child.Name
	case parent.fullyQualifiedNameOrExpr == "":
		return ""
	case parent.Kind == "dict":
		return fmt.Sprintf("%s[%s]", parent.fullyQualifiedNameOrExpr, child.Name)
	}
	return parent.fullyQualifiedNameOrExpr + child.Name
}

// convertVariable returns the printable value of v and, for values with
// children, a new reference to them.
func (s *Server) convertVariable(v *api.Variable, qualifiedNameOrExpr string) (value string, variablesReference int) {
	if len(v.Children) > 0 {
		variablesReference = s.variableHandles.create(&fullyQualifiedVariable{v, qualifiedNameOrExpr, false})
	}
	return v.SinglelineString(), variablesReference
}

// onEvaluateRequest evaluates an expression where the debuggee is
// suspended. In the debug console, expressions starting with "debugd "
// are commands, see debugCommands.
func (s *Server) onEvaluateRequest(request *dap.EvaluateRequest) {
	showErrorToUser := request.Arguments.Context != "watch" && request.Arguments.Context != "hover"
	if s.debugger == nil {
		s.sendErrorResponseWithOpts(request.Request, UnableToEvaluateExpression, "Unable to evaluate expression", "no debug session", showErrorToUser)
		return
	}

	expr := request.Arguments.Expression
	response := &dap.EvaluateResponse{Response: *newResponse(request.Request)}
	if request.Arguments.Context == "repl" && strings.HasPrefix(expr, "debugd ") {
		res, err := s.replCmd(strings.TrimPrefix(expr, "debugd "))
		if err != nil {
			s.resumed = false
			s.sendErrorResponseWithOpts(request.Request, UnableToEvaluateExpression, "Unable to run command", err.Error(), showErrorToUser)
			return
		}
		response.Body.Result = res
		s.send(response)
		return
	}

	v, err := s.debugger.EvalVariable(expr)
	if err != nil {
		s.sendErrorResponseWithOpts(request.Request, UnableToEvaluateExpression, "Unable to evaluate expression", err.Error(), showErrorToUser)
		return
	}
	response.Body.Result, response.Body.VariablesReference = s.convertVariable(v, expr)
	response.Body.Type = v.Kind
	s.send(response)
}

// onSetVariableRequest changes the value of a local variable. Values are
// expressions evaluated where the debuggee is suspended.
func (s *Server) onSetVariableRequest(request *dap.SetVariableRequest) {
	if s.debugger == nil {
		s.sendErrorResponse(request.Request, UnableToSetVariable, "Unable to set variable", "no debug session")
		return
	}
	arg := request.Arguments
	parent, ok := s.variableHandles.get(arg.VariablesReference)
	if !ok {
		s.sendErrorResponse(request.Request, UnableToSetVariable, "Unable to set variable", fmt.Sprintf("unknown reference %d", arg.VariablesReference))
		return
	}
	if !parent.isScope {
		s.sendErrorResponse(request.Request, UnableToSetVariable, "Unable to set variable", "only local variables can be set")
		return
	}
	if err := s.debugger.SetVariable(arg.Name, arg.Value); err != nil {
		s.sendErrorResponse(request.Request, UnableToSetVariable, "Unable to set variable", err.Error())
		return
	}
	v, err := s.debugger.EvalVariable(arg.Name)
	if err != nil {
		s.sendErrorResponse(request.Request, UnableToSetVariable, "Unable to lookup variable", err.Error())
		return
	}
	response := &dap.SetVariableResponse{Response: *newResponse(request.Request)}
	response.Body.Value, response.Body.VariablesReference = s.convertVariable(v, arg.Name)
	response.Body.Type = v.Kind
	s.send(response)
}

func (s *Server) sendErrorResponseWithOpts(request dap.Request, id int, summary, details string, showUser bool) {
	er := &dap.ErrorResponse{}
	er.Type = "response"
	er.Command = request.Command
	er.RequestSeq = request.Seq
	er.Success = false
	er.Message = summary
	er.Body.Error = &dap.ErrorMessage{
		Id:       id,
		Format:   fmt.Sprintf("%s: %s", summary, details),
		ShowUser: showUser,
	}
	s.log.Debug(er.Body.Error.Format)
	s.send(er)
}

func (s *Server) sendErrorResponse(request dap.Request, id int, summary, details string) {
	s.sendErrorResponseWithOpts(request, id, summary, details, true)
}

func (s *Server) sendInternalErrorResponse(seq int, details string) {
	er := &dap.ErrorResponse{}
	er.Type = "response"
	er.RequestSeq = seq
	er.Success = false
	er.Message = "Internal Error"
	er.Body.Error = &dap.ErrorMessage{Id: InternalError, Format: fmt.Sprintf("%s: %s", er.Message, details)}
	s.log.Error(er.Body.Error.Format)
	s.send(er)
}

func (s *Server) sendUnsupportedErrorResponse(request dap.Request) {
	s.sendErrorResponse(request, UnsupportedCommand, "Unsupported command",
		fmt.Sprintf("cannot process %q request", request.Command))
}

func newResponse(request dap.Request) *dap.Response {
	return &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "response",
		},
		Command:    request.Command,
		RequestSeq: request.Seq,
		Success:    true,
	}
}

func newEvent(event string) *dap.Event {
	return &dap.Event{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "event",
		},
		Event: event,
	}
}

// waitForStop blocks until the debuggee stops and reports it to the
// client.
func (s *Server) waitForStop() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()
	state, err := s.debugger.Wait(ctx)
	if err != nil {
		return
	}
	s.handleStop(state)
}

func (s *Server) handleStop(state *api.DebuggerState) {
	switch state.State {
	case api.StateSuspended:
		if state.CondError != "" {
			s.send(&dap.OutputEvent{
				Event: *newEvent("output"),
				Body: dap.OutputEventBody{
					Category: "stderr",
					Output:   fmt.Sprintf("could not evaluate the condition of breakpoint %d: %s\n", state.Breakpoint.ID, state.CondError),
				},
			})
		}
		e := &dap.StoppedEvent{Event: *newEvent("stopped")}
		e.Body.Reason = state.StopReason
		e.Body.ThreadId = threadID(state)
		e.Body.AllThreadsStopped = true
		if bp := state.Breakpoint; bp != nil {
			e.Body.HitBreakpointIds = []int{bp.ID}
			if bp.HitCount > 0 && bp.Remaining == 0 {
				s.send(&dap.BreakpointEvent{
					Event: *newEvent("breakpoint"),
					Body:  dap.BreakpointEventBody{Reason: "removed", Breakpoint: dap.Breakpoint{Id: bp.ID}},
				})
			}
		}
		s.send(e)
	case api.StateDisconnected:
		if state.Exited {
			s.send(&dap.ExitedEvent{Event: *newEvent("exited"), Body: dap.ExitedEventBody{ExitCode: state.ExitStatus}})
		} else {
			s.send(&dap.OutputEvent{
				Event: *newEvent("output"),
				Body:  dap.OutputEventBody{Category: "console", Output: "detached from the debuggee\n"},
			})
		}
		s.send(&dap.TerminatedEvent{Event: *newEvent("terminated")})
	}
}
