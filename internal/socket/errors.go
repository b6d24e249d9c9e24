package socket

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a connection that has already been
// closed. A closed connection is never reused; dial a new one to reconnect.
var ErrClosed = errors.New("socket: connection closed")

// ConnError reports a resource-acquisition failure: bind, connect, accept or
// join. It is fatal to the loop that raised it and is reported through the
// status callback.
type ConnError struct {
	Op   string // "dial", "listen", "accept", "join"
	Addr string
	Err  error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("socket: %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

// StreamFault reports a mid-session read or write failure on one peer.
// It is contained to that peer: the connection is closed and deregistered,
// and the server keeps running.
type StreamFault struct {
	Addr string
	Err  error
}

func (e *StreamFault) Error() string {
	return fmt.Sprintf("socket: stream fault on %s: %v", e.Addr, e.Err)
}

func (e *StreamFault) Unwrap() error { return e.Err }
