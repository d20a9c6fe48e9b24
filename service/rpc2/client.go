package rpc2

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"

	"github.com/eclipse-che/debugd/service"
	"github.com/eclipse-che/debugd/service/api"
)

// RPCClient is a RPC service.Client.
type RPCClient struct {
	client *rpc.Client
}

// Ensure the implementation satisfies the interface.
var _ service.Client = &RPCClient{}

// NewClient creates a new RPCClient.
func NewClient(addr string) (*RPCClient, error) {
	client, err := jsonrpc.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return newFromRPCClient(client)
}

func newFromRPCClient(client *rpc.Client) (*RPCClient, error) {
	c := &RPCClient{client: client}
	if err := c.call("SetApiVersion", api.SetAPIVersionIn{APIVersion: 2}, &api.SetAPIVersionOut{}); err != nil {
		client.Close()
		return nil, err
	}
	return c, nil
}

// NewClientFromConn creates a new RPCClient from the given connection.
func NewClientFromConn(conn net.Conn) (*RPCClient, error) {
	return newFromRPCClient(jsonrpc.NewClient(conn))
}

func (c *RPCClient) Attach() (*api.DebuggerState, error) {
	var out AttachOut
	err := c.call("Attach", AttachIn{}, &out)
	return &out.State, err
}

func (c *RPCClient) Detach() error {
	return c.call("Detach", DetachIn{}, new(DetachOut))
}

func (c *RPCClient) Disconnect(cont bool) error {
	if cont {
		out := new(CommandOut)
		c.client.Go("RPCServer.Command", &api.DebuggerCommand{Name: api.Continue}, &out, nil)
	}
	return c.client.Close()
}

func (c *RPCClient) GetState() (*api.DebuggerState, error) {
	var out StateOut
	err := c.call("State", StateIn{NonBlocking: false}, &out)
	return out.State, err
}

func (c *RPCClient) GetStateNonBlocking() (*api.DebuggerState, error) {
	var out StateOut
	err := c.call("State", StateIn{NonBlocking: true}, &out)
	return out.State, err
}

func (c *RPCClient) command(cmd *api.DebuggerCommand) (*api.DebuggerState, error) {
	var out CommandOut
	err := c.call("Command", cmd, &out)
	return &out.State, err
}

func (c *RPCClient) Continue() (*api.DebuggerState, error) {
	return c.command(&api.DebuggerCommand{Name: api.Continue})
}

func (c *RPCClient) Next() (*api.DebuggerState, error) {
	return c.command(&api.DebuggerCommand{Name: api.Next})
}

func (c *RPCClient) Step() (*api.DebuggerState, error) {
	return c.command(&api.DebuggerCommand{Name: api.Step})
}

func (c *RPCClient) StepOut() (*api.DebuggerState, error) {
	return c.command(&api.DebuggerCommand{Name: api.StepOut})
}

func (c *RPCClient) RunTo(loc string) (*api.DebuggerState, error) {
	return c.command(&api.DebuggerCommand{Name: api.RunTo, Location: loc})
}

func (c *RPCClient) Halt() (*api.DebuggerState, error) {
	return c.command(&api.DebuggerCommand{Name: api.Halt})
}

func (c *RPCClient) GetBreakpoint(id int) (*api.Breakpoint, error) {
	var out GetBreakpointOut
	err := c.call("GetBreakpoint", GetBreakpointIn{id}, &out)
	return &out.Breakpoint, err
}

func (c *RPCClient) CreateBreakpoint(breakPoint *api.Breakpoint) (*api.Breakpoint, error) {
	var out CreateBreakpointOut
	err := c.call("CreateBreakpoint", CreateBreakpointIn{*breakPoint}, &out)
	return &out.Breakpoint, err
}

func (c *RPCClient) ListBreakpoints() ([]*api.Breakpoint, error) {
	var out ListBreakpointsOut
	err := c.call("ListBreakpoints", ListBreakpointsIn{}, &out)
	return out.Breakpoints, err
}

func (c *RPCClient) ClearBreakpoint(id int) (*api.Breakpoint, error) {
	var out ClearBreakpointOut
	err := c.call("ClearBreakpoint", ClearBreakpointIn{id}, &out)
	return out.Breakpoint, err
}

func (c *RPCClient) ClearAllBreakpoints() ([]*api.Breakpoint, error) {
	var out ClearAllBreakpointsOut
	err := c.call("ClearAllBreakpoints", ClearAllBreakpointsIn{}, &out)
	return out.Breakpoints, err
}

func (c *RPCClient) ToggleBreakpoint(id int) (*api.Breakpoint, error) {
	var out ToggleBreakpointOut
	err := c.call("ToggleBreakpoint", ToggleBreakpointIn{id}, &out)
	return out.Breakpoint, err
}

func (c *RPCClient) AmendBreakpoint(bp *api.Breakpoint) error {
	out := new(AmendBreakpointOut)
	return c.call("AmendBreakpoint", AmendBreakpointIn{*bp}, out)
}

func (c *RPCClient) EvalVariable(expr string) (*api.Variable, error) {
	var out EvalOut
	err := c.call("Eval", EvalIn{expr}, &out)
	return out.Variable, err
}

func (c *RPCClient) SetVariable(symbol, value string) error {
	out := new(SetOut)
	return c.call("Set", SetIn{symbol, value}, out)
}

func (c *RPCClient) ListLocalVariables() ([]api.Variable, error) {
	var out ListLocalVarsOut
	err := c.call("ListLocalVars", ListLocalVarsIn{}, &out)
	return out.Variables, err
}

func (c *RPCClient) GetVersion() (*api.GetVersionOut, error) {
	var out api.GetVersionOut
	err := c.call("GetVersion", api.GetVersionIn{}, &out)
	return &out, err
}

// IsMulticlient returns true if the headless instance is multiclient.
func (c *RPCClient) IsMulticlient() bool {
	var out IsMulticlientOut
	c.call("IsMulticlient", IsMulticlientIn{}, &out)
	return out.IsMulticlient
}

func (c *RPCClient) call(method string, args, reply interface{}) error {
	return c.client.Call("RPCServer."+method, args, reply)
}
