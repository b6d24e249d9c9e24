// Package socket implements the stream variant of the line broadcast engine:
// a connection type with line-delimited I/O, a dialing client, and a
// Broadcaster that accepts peers and fans outbound messages to all of them
// concurrently.
package socket

// Handler receives inbound messages and socket status transitions.
// Implementations are injected by the caller; both methods may be invoked
// from transport goroutines and must be fast or hand off to another
// execution context. A slow OnMessage stalls further reads on the one
// connection that delivered it, never on other peers.
type Handler interface {
	// OnMessage is invoked once per inbound line, in receipt order per
	// connection.
	OnMessage(msg string)

	// OnClosedStatus is invoked once per open/close transition of any
	// connection the component manages. The initial state at startup is
	// conventionally reported as closed.
	OnClosedStatus(closed bool)
}

// HandlerFuncs adapts plain functions to the Handler interface.
// Nil fields are skipped, so partial handlers are fine.
type HandlerFuncs struct {
	Message      func(msg string)
	ClosedStatus func(closed bool)
}

func (h HandlerFuncs) OnMessage(msg string) {
	if h.Message != nil {
		h.Message(msg)
	}
}

func (h HandlerFuncs) OnClosedStatus(closed bool) {
	if h.ClosedStatus != nil {
		h.ClosedStatus(closed)
	}
}
