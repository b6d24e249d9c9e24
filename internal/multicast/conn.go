// Package multicast implements the group variant of the broadcast engine:
// one shared datagram channel joined to a multicast group. There is exactly
// one logical peer (the group), so sending needs no registry or fan-out,
// only the same handler contract as the stream variant.
package multicast

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/net/ipv4"

	"github.com/jtconnors/go-socket/internal/config"
	"github.com/jtconnors/go-socket/internal/diag"
	"github.com/jtconnors/go-socket/internal/socket"
)

// OversizeError reports a datagram payload exceeding the configured bound.
// Oversize payloads are rejected, never truncated: Send refuses them, and
// the receive loop drops them with a diagnostic.
type OversizeError struct {
	Size int // observed size; at least Max+1 on the receive path
	Max  int
}

func (e *OversizeError) Error() string {
	return fmt.Sprintf("multicast: datagram of %d bytes exceeds maximum %d", e.Size, e.Max)
}

// Config configures a multicast Conn.
type Config struct {
	GroupAddr   string // defaults to config.DefaultGroupAddr
	Port        int    // defaults to config.DefaultPort
	MaxDatagram int    // defaults to config.MaxDatagramSize
}

func (c *Config) withDefaults() {
	if c.GroupAddr == "" {
		c.GroupAddr = config.DefaultGroupAddr
	}
	if c.Port == 0 {
		c.Port = config.DefaultPort
	}
	if c.MaxDatagram <= 0 {
		c.MaxDatagram = config.MaxDatagramSize
	}
}

// Conn is one endpoint on a multicast group. Join is the only constructor;
// leaving is terminal, matching the stream variant's close semantics.
type Conn struct {
	cfg   Config
	udp   *net.UDPConn
	pc    *ipv4.PacketConn
	group *net.UDPAddr
	ifis  []net.Interface // interfaces the group was joined on

	handler socket.Handler
	log     *diag.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// Join binds a local datagram endpoint on the group port and joins the
// multicast group on every up, multicast-capable interface. The local socket
// takes SO_REUSEADDR and SO_REUSEPORT so several processes on one host can
// share the group. A background reader delivers each datagram's payload to
// the handler. Bind or join failure yields a *socket.ConnError.
func Join(cfg Config, h socket.Handler, log *diag.Logger) (*Conn, error) {
	cfg.withDefaults()
	h.OnClosedStatus(true)

	ip := net.ParseIP(cfg.GroupAddr)
	if ip = ip.To4(); ip == nil || !ip.IsMulticast() {
		return nil, &socket.ConnError{
			Op:   "join",
			Addr: cfg.GroupAddr,
			Err:  errors.New("not an IPv4 multicast address"),
		}
	}

	bindAddr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	lc := net.ListenConfig{Control: socket.ReusePort}
	pconn, err := lc.ListenPacket(context.Background(), "udp4", bindAddr)
	if err != nil {
		return nil, &socket.ConnError{Op: "join", Addr: bindAddr, Err: err}
	}
	udp := pconn.(*net.UDPConn)

	c := &Conn{
		cfg:     cfg,
		udp:     udp,
		pc:      ipv4.NewPacketConn(udp),
		group:   &net.UDPAddr{IP: ip, Port: cfg.Port},
		handler: h,
		log:     log,
		closed:  make(chan struct{}),
	}

	ifis, _ := net.Interfaces()
	for _, ifi := range ifis {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := c.pc.JoinGroup(&ifi, &net.UDPAddr{IP: ip}); err == nil {
			c.ifis = append(c.ifis, ifi)
		}
	}
	if len(c.ifis) == 0 {
		// No per-interface join succeeded; try the system default route.
		if err := c.pc.JoinGroup(nil, &net.UDPAddr{IP: ip}); err != nil {
			udp.Close() //nolint:errcheck
			return nil, &socket.ConnError{Op: "join", Addr: c.group.String(), Err: err}
		}
	}
	// Same-host senders see their own and each other's datagrams.
	c.pc.SetMulticastLoopback(true) //nolint:errcheck

	log.Statusf("joined group %s", c.group)
	h.OnClosedStatus(false)

	go c.readLoop()
	return c, nil
}

// Group returns the joined group address.
func (c *Conn) Group() *net.UDPAddr { return c.group }

// Send transmits one datagram to the group. Payloads over the configured
// maximum are rejected with *OversizeError.
func (c *Conn) Send(msg string) error {
	if len(msg) > c.cfg.MaxDatagram {
		err := &OversizeError{Size: len(msg), Max: c.cfg.MaxDatagram}
		c.log.Exception(err, "send rejected")
		return err
	}
	if c.isClosed() {
		return socket.ErrClosed
	}
	c.log.Send(msg)
	if _, err := c.udp.WriteToUDP([]byte(msg), c.group); err != nil {
		c.log.Exception(err, "send failed")
		return &socket.StreamFault{Addr: c.group.String(), Err: err}
	}
	return nil
}

// Leave departs the group and releases the socket. Terminal and idempotent;
// the handler sees exactly one closed=true transition.
func (c *Conn) Leave() error { return c.Close() }

// Close implements the same semantics as Leave.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		for i := range c.ifis {
			c.pc.LeaveGroup(&c.ifis[i], &net.UDPAddr{IP: c.group.IP}) //nolint:errcheck
		}
		c.udp.Close() //nolint:errcheck
		c.log.Statusf("left group %s", c.group)
		c.handler.OnClosedStatus(true)
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

// readLoop blocks on the shared channel and delivers each payload to the
// handler. A datagram larger than the bound arrives kernel-truncated to
// MaxDatagram+1 bytes; it is dropped, not delivered truncated.
func (c *Conn) readLoop() {
	defer c.Close() //nolint:errcheck
	buf := make([]byte, c.cfg.MaxDatagram+1)
	for {
		n, _, err := c.udp.ReadFromUDP(buf)
		if err != nil {
			if !c.isClosed() {
				c.log.Exception(err, "receive failed")
			}
			return
		}
		if n > c.cfg.MaxDatagram {
			c.log.Exception(&OversizeError{Size: n, Max: c.cfg.MaxDatagram}, "oversize datagram dropped")
			continue
		}
		msg := string(buf[:n])
		c.log.Recv(msg)
		c.handler.OnMessage(msg)
	}
}
