package service

import (
	"net"
	"sync"
)

// pipeAddr is the address of both ends of an in-process session.
type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "debugd" }

// ListenerPipe connects a server to a terminal client running in the same
// process. The listener hands out the server end of an in-memory
// connection once, later calls to Accept block until the listener is
// closed.
// Closing the listener before the server end was accepted closes that end
// too, so the client sees EOF instead of waiting for a session that will
// never be served.
func ListenerPipe() (net.Listener, net.Conn) {
	server, client := net.Pipe()
	l := &pipeListener{
		pending: make(chan net.Conn, 1),
		closed:  make(chan struct{}),
	}
	l.pending <- server
	return l, client
}

type pipeListener struct {
	pending   chan net.Conn
	closed    chan struct{}
	closeOnce sync.Once
}

func (l *pipeListener) Accept() (net.Conn, error) {
	select {
	case <-l.closed:
		return nil, net.ErrClosed
	default:
	}
	select {
	case conn := <-l.pending:
		return conn, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *pipeListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		select {
		case conn := <-l.pending:
			conn.Close()
		default:
		}
	})
	return nil
}

func (l *pipeListener) Addr() net.Addr { return pipeAddr{} }
