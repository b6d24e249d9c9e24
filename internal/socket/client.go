package socket

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/jtconnors/go-socket/internal/config"
	"github.com/jtconnors/go-socket/internal/diag"
)

// ClientConfig configures a dialing Client.
type ClientConfig struct {
	Host         string        // defaults to config.DefaultHost
	Port         int           // defaults to config.DefaultPort
	DialTimeout  time.Duration // 0 = no bound beyond the OS
	WriteTimeout time.Duration // defaults to config.DefaultWriteTimeout
}

func (c *ClientConfig) withDefaults() {
	if c.Host == "" {
		c.Host = config.DefaultHost
	}
	if c.Port == 0 {
		c.Port = config.DefaultPort
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = config.DefaultWriteTimeout
	}
}

// Client is the client role of the stream transport: one connection to a
// remote broadcast server, with a reader goroutine delivering each inbound
// line to the handler in receipt order.
type Client struct {
	conn    *Conn
	handler Handler
	log     *diag.Logger
}

// Dial connects to the remote endpoint and starts the reader loop. The local
// socket is created with SO_REUSEADDR so redialing works even while a prior
// connection's port is in TIME_WAIT. On failure the returned error is a
// *ConnError and no connection exists.
func Dial(cfg ClientConfig, h Handler, log *diag.Logger) (*Client, error) {
	cfg.withDefaults()
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))

	d := net.Dialer{Timeout: cfg.DialTimeout, Control: ReuseAddr}
	nc, err := d.Dial("tcp", addr)
	if err != nil {
		return nil, &ConnError{Op: "dial", Addr: addr, Err: err}
	}

	c := &Client{handler: h, log: log}
	c.conn = newConn(nc, cfg.WriteTimeout, func() {
		log.Statusf("connection to %s closed", addr)
		h.OnClosedStatus(true)
	})
	log.Statusf("connected to %s", addr)
	h.OnClosedStatus(false)

	go c.readLoop()
	return c, nil
}

// Send writes one line to the server.
func (c *Client) Send(line string) error {
	c.log.Send(line)
	if err := c.conn.WriteLine(line); err != nil {
		c.log.Exception(err, "send failed")
		c.conn.Close() //nolint:errcheck
		return err
	}
	return nil
}

// Close tears the connection down. Idempotent; the handler sees exactly one
// closed=true transition.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) readLoop() {
	defer c.conn.Close() //nolint:errcheck
	for {
		line, err := c.conn.ReadLine()
		if err != nil {
			if err != io.EOF && !errors.Is(err, ErrClosed) {
				c.log.Exception(err, "read failed")
			}
			return
		}
		c.log.Recv(line)
		c.handler.OnMessage(line)
	}
}
