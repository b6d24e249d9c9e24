package socket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jtconnors/go-socket/internal/config"
	"github.com/jtconnors/go-socket/internal/diag"
)

const sendQueueDepth = 256

// BroadcasterConfig configures a Broadcaster.
type BroadcasterConfig struct {
	Port          int           // listening port; 0 picks an ephemeral one
	FanoutWorkers int           // dispatcher pool size; defaults to config.DefaultFanoutWorkers
	RatePerSec    int           // outbound deliveries per second across all peers; 0 = unlimited
	WriteTimeout  time.Duration // per-write bound; defaults to config.DefaultWriteTimeout
}

func (c *BroadcasterConfig) withDefaults() {
	if c.FanoutWorkers <= 0 {
		c.FanoutWorkers = config.DefaultFanoutWorkers
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = config.DefaultWriteTimeout
	}
}

// Broadcaster is the server role of the stream transport. It accepts peers,
// tracks the live set, reads inbound lines per peer, and fans each posted
// message out to every live peer concurrently.
//
// Acceptance and broadcasting are independent activities: they interact only
// through the registry. Per-peer faults are contained to that peer; only the
// initial bind can fail the server as a whole.
type Broadcaster struct {
	cfg     BroadcasterConfig
	handler Handler
	log     *diag.Logger

	ln      net.Listener
	reg     *registry
	sendQ   chan sendTask
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	startOnce    sync.Once
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

type sendTask struct {
	p   *peer
	msg string
}

// NewBroadcaster creates a Broadcaster. Call Start to bind and begin
// accepting.
func NewBroadcaster(cfg BroadcasterConfig, h Handler, log *diag.Logger) *Broadcaster {
	cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	b := &Broadcaster{
		cfg:     cfg,
		handler: h,
		log:     log,
		reg:     newRegistry(),
		sendQ:   make(chan sendTask, sendQueueDepth),
		ctx:     ctx,
		cancel:  cancel,
	}
	if cfg.RatePerSec > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return b
}

// Start binds the listening socket and launches the accept loop and the
// dispatcher workers. The handler sees the conventional initial closed=true
// report before the socket is bound. A bind failure is a *ConnError and is
// fatal: the Broadcaster never started.
func (b *Broadcaster) Start() error {
	var err error
	b.startOnce.Do(func() {
		b.handler.OnClosedStatus(true)

		lc := net.ListenConfig{Control: ReuseAddr}
		addr := fmt.Sprintf(":%d", b.cfg.Port)
		var ln net.Listener
		ln, err = lc.Listen(b.ctx, "tcp", addr)
		if err != nil {
			err = &ConnError{Op: "listen", Addr: addr, Err: err}
			return
		}
		b.ln = ln
		b.log.Statusf("listening on %s", ln.Addr())

		for i := 0; i < b.cfg.FanoutWorkers; i++ {
			b.wg.Add(1)
			go b.worker()
		}
		b.wg.Add(1)
		go b.acceptLoop()
	})
	return err
}

// Addr returns the bound listening address, or nil before Start.
func (b *Broadcaster) Addr() net.Addr {
	if b.ln == nil {
		return nil
	}
	return b.ln.Addr()
}

// NumPeers returns the number of currently registered connections.
func (b *Broadcaster) NumPeers() int {
	return b.reg.len()
}

// Post fans msg out to every peer registered at the moment of the call.
// Deliveries run concurrently on the dispatcher pool; Post returns once all
// of them are dispatched, not completed. A failing peer is closed and
// deregistered without affecting the others, and without surfacing an error
// here: peer loss is observable only through the status callback. After
// Shutdown, Post is a no-op.
func (b *Broadcaster) Post(msg string) {
	for _, p := range b.reg.snapshot() {
		select {
		case b.sendQ <- sendTask{p: p, msg: msg}:
		case <-b.ctx.Done():
			return
		}
	}
}

// Shutdown stops the Broadcaster: it closes the listening socket, which ends
// the accept loop, then eagerly closes every registered peer connection and
// stops the dispatcher pool. Idempotent; each peer's handler sees exactly
// one closed=true transition.
func (b *Broadcaster) Shutdown() {
	b.shutdownOnce.Do(func() {
		b.cancel()
		if b.ln != nil {
			b.ln.Close() //nolint:errcheck
		}
		for _, p := range b.reg.snapshot() {
			p.conn.Close() //nolint:errcheck
		}
		b.log.Statusf("broadcaster stopped")
	})
}

// Wait blocks until the accept loop and all dispatcher workers have exited.
func (b *Broadcaster) Wait() {
	b.wg.Wait()
}

func (b *Broadcaster) acceptLoop() {
	defer b.wg.Done()
	for {
		nc, err := b.ln.Accept()
		if err != nil {
			// Listener closed by Shutdown, or faulted. Either way the
			// loop stops and the listening resource is released once.
			if !errors.Is(err, net.ErrClosed) {
				b.log.Exception(err, "accept failed")
			}
			b.log.Statusf("accept loop stopped")
			b.Shutdown()
			return
		}
		b.addPeer(nc)
	}
}

func (b *Broadcaster) addPeer(nc net.Conn) {
	if b.ctx.Err() != nil {
		// Accepted in the window between Shutdown closing the listener
		// and the accept loop observing it.
		nc.Close() //nolint:errcheck
		return
	}
	p := &peer{id: uuid.NewString()}
	p.conn = newConn(nc, b.cfg.WriteTimeout, func() {
		// Sole teardown path: every close, whatever raced it there,
		// deregisters before reporting. Fires once per peer.
		b.reg.remove(p.id)
		b.handler.OnClosedStatus(true)
		b.log.StatusCount("connection closed", b.reg.len())
	})
	b.reg.add(p)
	b.handler.OnClosedStatus(false)
	b.log.StatusCount("connection accepted", b.reg.len())

	b.wg.Add(1)
	go b.readLoop(p)
}

// readLoop delivers each inbound line to the handler in receipt order. On
// end of stream or any read failure it tears the peer down.
func (b *Broadcaster) readLoop(p *peer) {
	defer b.wg.Done()
	defer p.conn.Close() //nolint:errcheck
	for {
		line, err := p.conn.ReadLine()
		if err != nil {
			if err != io.EOF && !errors.Is(err, ErrClosed) {
				b.log.Exception(err, "read failed")
			}
			return
		}
		b.log.Recv(line)
		b.handler.OnMessage(line)
	}
}

func (b *Broadcaster) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case t := <-b.sendQ:
			b.deliver(t)
		}
	}
}

func (b *Broadcaster) deliver(t sendTask) {
	if b.limiter != nil {
		if err := b.limiter.Wait(b.ctx); err != nil {
			return
		}
	}
	b.log.Send(t.msg)
	if err := t.p.conn.WriteLine(t.msg); err != nil {
		if !errors.Is(err, ErrClosed) {
			b.log.Exception(err, "send failed")
		}
		t.p.conn.Close() //nolint:errcheck
	}
}
