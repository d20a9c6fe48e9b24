package rpccommon

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"

	"github.com/eclipse-che/debugd/pkg/logflags"
	"github.com/eclipse-che/debugd/pkg/version"
	"github.com/eclipse-che/debugd/service"
	"github.com/eclipse-che/debugd/service/api"
	"github.com/eclipse-che/debugd/service/debugger"
	"github.com/eclipse-che/debugd/service/internal/sameuser"
	"github.com/eclipse-che/debugd/service/rpc2"
)

// ServerImpl implements a JSON-RPC server.
type ServerImpl struct {
	// config is all the information necessary to start the debugger and server.
	config *service.Config
	// listener is used to serve JSON-RPC.
	listener net.Listener
	// stopChan is used to stop the listener goroutine.
	stopChan chan struct{}
	stopOnce sync.Once
	// debugger is the debugger service.
	debugger *debugger.Debugger
	// s2 is APIv2 server.
	s2 *rpc2.RPCServer
	// methods served over JSON-RPC.
	methods map[string]method
	log     logflags.Logger
}

type RPCCallback struct {
	s         *ServerImpl
	sending   *sync.Mutex
	codec     rpc.ServerCodec
	req       rpc.Request
	setupDone chan struct{}
}

var _ service.RPCCallback = &RPCCallback{}

// RPCServer implements the RPC method calls common to all versions of the API.
type RPCServer struct {
	s *ServerImpl
}

// NewServer creates a new RPCServer.
func NewServer(config *service.Config) *ServerImpl {
	logger := logflags.RPCLogger()
	if config.APIVersion < 2 {
		config.APIVersion = 2
	}
	return &ServerImpl{
		config:   config,
		listener: config.Listener,
		stopChan: make(chan struct{}),
		log:      logger,
	}
}

// Stop stops the JSON-RPC server and ends the debug session.
func (s *ServerImpl) Stop() error {
	s.log.Debug("stopping")
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.listener.Close()
	})
	if s.debugger == nil {
		return nil
	}
	return s.debugger.Close()
}

// Run starts a debugger and exposes it with a JSON-RPC server. The
// debugger itself can be stopped with the `detach` API.
func (s *ServerImpl) Run() error {
	var err error

	if s.config.APIVersion != 2 {
		return errors.New("unknown API version")
	}

	// Create and start the debugger
	if s.debugger, err = debugger.New(&s.config.Debugger, s.config.Target, s.config.Evaluator); err != nil {
		return err
	}
	if s.config.AttachOnStart {
		if _, err := s.debugger.Attach(); err != nil {
			return err
		}
	}

	s.s2 = rpc2.NewServer(s.config, s.debugger)

	s.methods = methodTable(&RPCServer{s}, s.s2)

	go func() {
		defer s.listener.Close()
		for {
			c, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.stopChan:
					// We were supposed to exit, do nothing and return
					return
				default:
					s.log.Errorf("accept: %v", err)
					return
				}
			}
			if s.config.CheckLocalConnUser && !sameuser.CanAccept(s.listener.Addr(), c.LocalAddr(), c.RemoteAddr(), s.log) {
				c.Close()
				continue
			}
			go s.serveJSONCodec(c)
			if !s.config.AcceptMulti {
				break
			}
		}
	}()
	return nil
}

// method is one entry of the JSON-RPC dispatch table. newArg allocates the
// value the request body is decoded into, call runs the method and answers
// through the callback. Asynchronous methods run on their own goroutine
// and close the setup channel of the callback once the server can read the
// next request.
type method struct {
	newArg func() interface{}
	call   func(arg interface{}, cb service.RPCCallback)
	async  bool
}

func syncMethod[In, Out any](fn func(In, *Out) error) method {
	return method{
		newArg: func() interface{} { return new(In) },
		call: func(arg interface{}, cb service.RPCCallback) {
			out := new(Out)
			err := fn(*arg.(*In), out)
			cb.Return(out, err)
		},
	}
}

func asyncMethod[In any](fn func(In, service.RPCCallback)) method {
	return method{
		newArg: func() interface{} { return new(In) },
		call: func(arg interface{}, cb service.RPCCallback) {
			fn(*arg.(*In), cb)
		},
		async: true,
	}
}

// methodTable lists every method of API v2 under the name the client calls.
func methodTable(common *RPCServer, s2 *rpc2.RPCServer) map[string]method {
	return map[string]method{
		"RPCServer.GetVersion":          syncMethod(common.GetVersion),
		"RPCServer.SetApiVersion":       syncMethod(common.SetApiVersion),
		"RPCServer.Attach":              syncMethod(s2.Attach),
		"RPCServer.Detach":              syncMethod(s2.Detach),
		"RPCServer.State":               asyncMethod(s2.State),
		"RPCServer.Command":             asyncMethod(s2.Command),
		"RPCServer.GetBreakpoint":       syncMethod(s2.GetBreakpoint),
		"RPCServer.CreateBreakpoint":    syncMethod(s2.CreateBreakpoint),
		"RPCServer.ClearBreakpoint":     syncMethod(s2.ClearBreakpoint),
		"RPCServer.ClearAllBreakpoints": syncMethod(s2.ClearAllBreakpoints),
		"RPCServer.ToggleBreakpoint":    syncMethod(s2.ToggleBreakpoint),
		"RPCServer.AmendBreakpoint":     syncMethod(s2.AmendBreakpoint),
		"RPCServer.ListBreakpoints":     syncMethod(s2.ListBreakpoints),
		"RPCServer.Eval":                syncMethod(s2.Eval),
		"RPCServer.Set":                 syncMethod(s2.Set),
		"RPCServer.ListLocalVars":       syncMethod(s2.ListLocalVars),
		"RPCServer.IsMulticlient":       syncMethod(s2.IsMulticlient),
	}
}

func (s *ServerImpl) serveJSONCodec(conn io.ReadWriteCloser) {
	defer func() {
		if !s.config.AcceptMulti && s.config.DisconnectChan != nil {
			close(s.config.DisconnectChan)
		}
	}()

	sending := new(sync.Mutex)
	codec := jsonrpc.NewServerCodec(conn)
	defer codec.Close()
	for {
		var req rpc.Request
		if err := codec.ReadRequestHeader(&req); err != nil {
			if err != io.EOF {
				s.log.Errorf("rpc: %v", err)
			}
			return
		}

		m, ok := s.methods[req.ServiceMethod]
		if !ok {
			s.log.Errorf("rpc: can't find method %s", req.ServiceMethod)
			codec.ReadRequestBody(nil)
			s.sendResponse(sending, &req, nil, codec, fmt.Sprintf("unknown method: %s", req.ServiceMethod))
			continue
		}

		arg := m.newArg()
		if err := codec.ReadRequestBody(arg); err != nil {
			s.log.Errorf("rpc: %s: %v", req.ServiceMethod, err)
			return
		}
		s.log.Debugf("<- %s(%T%+v)", req.ServiceMethod, arg, arg)

		cb := &RPCCallback{s, sending, codec, req, make(chan struct{})}
		if !m.async {
			m.call(arg, cb)
			continue
		}
		go m.call(arg, cb)
		<-cb.setupDone
	}
}

// A value sent as a placeholder for the server's response value when the server
// receives an invalid request. It is never decoded by the client since the Response
// contains an error when it is used.
var invalidRequest = struct{}{}

func (s *ServerImpl) sendResponse(sending *sync.Mutex, req *rpc.Request, reply interface{}, codec rpc.ServerCodec, errmsg string) {
	resp := &rpc.Response{ServiceMethod: req.ServiceMethod, Seq: req.Seq}
	if errmsg != "" {
		resp.Error = errmsg
		reply = invalidRequest
	}
	sending.Lock()
	defer sending.Unlock()
	s.log.Debugf("-> %s error=%q", req.ServiceMethod, errmsg)
	err := codec.WriteResponse(resp, reply)
	if err != nil {
		s.log.Errorf("writing response: %v", err)
	}
}

func (cb *RPCCallback) Return(out interface{}, err error) {
	select {
	case <-cb.setupDone:
	default:
		close(cb.setupDone)
	}
	errmsg := ""
	if err != nil {
		errmsg = err.Error()
	}
	cb.s.sendResponse(cb.sending, &cb.req, out, cb.codec, errmsg)
}

func (cb *RPCCallback) SetupDoneChan() chan struct{} {
	return cb.setupDone
}

// GetVersion returns the version of debugd as well as the API version
// currently served.
func (s *RPCServer) GetVersion(args api.GetVersionIn, out *api.GetVersionOut) error {
	out.DebugdVersion = version.DebugdVersion.String()
	out.APIVersion = s.s.config.APIVersion
	return nil
}

// SetApiVersion changes version of the API being served.
func (s *RPCServer) SetApiVersion(args api.SetAPIVersionIn, out *api.SetAPIVersionOut) error {
	if args.APIVersion < 2 {
		args.APIVersion = 2
	}
	if args.APIVersion > 2 {
		return errors.New("unknown API version")
	}
	s.s.config.APIVersion = args.APIVersion
	return nil
}
