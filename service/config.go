package service

import (
	"net"

	"github.com/eclipse-che/debugd/pkg/proc"
	"github.com/eclipse-che/debugd/service/debugger"
)

// Config provides the configuration to start a Debugger and expose it with a
// service.
type Config struct {
	// Listener is used to serve requests.
	Listener net.Listener

	// Target is the debuggee the session controls.
	Target proc.Process
	// Evaluator evaluates expressions, when nil Target is used if it
	// implements proc.Evaluator.
	Evaluator proc.Evaluator

	// AttachOnStart connects to the debuggee as soon as the server runs.
	AttachOnStart bool

	// AcceptMulti configures the server to accept multiple connection.
	// Note that the server API is not reentrant and clients will have to coordinate.
	AcceptMulti bool
	// CheckLocalConnUser is true if the server should only accept
	// connections to a loopback listener from the user running it.
	CheckLocalConnUser bool
	// APIVersion selects which version of the API to serve (default: 2).
	APIVersion int

	// Debugger is the configuration of the session controller.
	Debugger debugger.Config

	// DisconnectChan will be closed by the server when the client disconnects
	DisconnectChan chan<- struct{}
}
