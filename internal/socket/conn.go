package socket

import (
	"bufio"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// Conn wraps one stream peer endpoint with line-delimited text I/O.
//
// A Conn is open from creation until Close. Close is terminal: a closed Conn
// is never reused, a new one must be dialed or accepted to reconnect. The
// status hook fires closed=true exactly once per Conn no matter how many
// paths race into Close.
type Conn struct {
	nc net.Conn
	br *bufio.Reader

	writeMu      sync.Mutex
	writeTimeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}
	onClosed  func() // fired exactly once, may be nil
}

func newConn(nc net.Conn, writeTimeout time.Duration, onClosed func()) *Conn {
	return &Conn{
		nc:           nc,
		br:           bufio.NewReader(nc),
		writeTimeout: writeTimeout,
		closed:       make(chan struct{}),
		onClosed:     onClosed,
	}
}

// RemoteAddr returns the peer's address.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// ReadLine blocks until one newline-delimited unit of text is available or
// the stream ends. The trailing newline is stripped. A clean close by the
// peer yields io.EOF; any other failure yields a *StreamFault.
func (c *Conn) ReadLine() (string, error) {
	line, err := c.br.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			if line != "" {
				// Final line without a trailing newline; EOF surfaces on
				// the next call.
				return strings.TrimRight(line, "\r"), nil
			}
			return "", io.EOF
		}
		if c.isClosed() {
			return "", ErrClosed
		}
		return "", &StreamFault{Addr: c.nc.RemoteAddr().String(), Err: err}
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// WriteLine writes one line of text followed by a newline. The write is
// bounded by the configured write timeout so a stalled peer cannot block the
// caller past the OS socket buffer. Any failure means the connection must be
// torn down by the caller.
func (c *Conn) WriteLine(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.isClosed() {
		return ErrClosed
	}
	if c.writeTimeout > 0 {
		if err := c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return &StreamFault{Addr: c.nc.RemoteAddr().String(), Err: err}
		}
	}
	if _, err := c.nc.Write([]byte(line + "\n")); err != nil {
		return &StreamFault{Addr: c.nc.RemoteAddr().String(), Err: err}
	}
	return nil
}

// Close releases the socket. Idempotent: only the first call closes the
// underlying connection and fires the status hook. A blocked ReadLine
// unblocks with an error once the socket is closed out from under it.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.nc.Close() //nolint:errcheck
		if c.onClosed != nil {
			c.onClosed()
		}
	})
	return nil
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
