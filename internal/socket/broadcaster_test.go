package socket

import (
	"bufio"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// statusRecorder counts handler transitions and collects inbound messages.
type statusRecorder struct {
	mu       sync.Mutex
	opened   int
	closed   int
	messages []string
}

func (s *statusRecorder) OnMessage(msg string) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
}

func (s *statusRecorder) OnClosedStatus(isClosed bool) {
	s.mu.Lock()
	if isClosed {
		s.closed++
	} else {
		s.opened++
	}
	s.mu.Unlock()
}

func (s *statusRecorder) counts() (opened, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened, s.closed
}

func (s *statusRecorder) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.messages))
	copy(out, s.messages)
	return out
}

func startBroadcaster(t *testing.T) (*Broadcaster, *statusRecorder) {
	t.Helper()
	rec := &statusRecorder{}
	b := NewBroadcaster(BroadcasterConfig{Port: 0}, rec, nil)
	require.NoError(t, b.Start())
	t.Cleanup(b.Shutdown)
	return b, rec
}

func dialPeer(t *testing.T, b *Broadcaster) (net.Conn, *bufio.Reader) {
	t.Helper()
	nc, err := net.Dial("tcp", b.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { nc.Close() })
	return nc, bufio.NewReader(nc)
}

func readLine(t *testing.T, nc net.Conn, r *bufio.Reader) string {
	t.Helper()
	require.NoError(t, nc.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return line[:len(line)-1]
}

func waitForPeers(t *testing.T, b *Broadcaster, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return b.NumPeers() == n },
		2*time.Second, 5*time.Millisecond, "peer count never reached %d", n)
}

func TestBroadcastReachesAllPeers(t *testing.T) {
	b, _ := startBroadcaster(t)

	c1, r1 := dialPeer(t, b)
	c2, r2 := dialPeer(t, b)
	c3, r3 := dialPeer(t, b)
	waitForPeers(t, b, 3)

	b.Post("hello")
	require.Equal(t, "hello", readLine(t, c1, r1))
	require.Equal(t, "hello", readLine(t, c2, r2))
	require.Equal(t, "hello", readLine(t, c3, r3))
}

func TestDisconnectedPeerIsRemovedBeforeNextBroadcast(t *testing.T) {
	b, _ := startBroadcaster(t)

	c1, r1 := dialPeer(t, b)
	c2, _ := dialPeer(t, b)
	c3, r3 := dialPeer(t, b)
	waitForPeers(t, b, 3)

	b.Post("hello")
	require.Equal(t, "hello", readLine(t, c1, r1))
	require.Equal(t, "hello", readLine(t, c3, r3))

	// Peer 2 disconnects; its reader loop must deregister it.
	require.NoError(t, c2.Close())
	waitForPeers(t, b, 2)

	b.Post("world")
	require.Equal(t, "world", readLine(t, c1, r1))
	require.Equal(t, "world", readLine(t, c3, r3))
}

func TestFailingPeerDoesNotBlockOthers(t *testing.T) {
	b, _ := startBroadcaster(t)

	c1, r1 := dialPeer(t, b)
	bad, _ := dialPeer(t, b)
	c3, r3 := dialPeer(t, b)
	waitForPeers(t, b, 3)

	// Kill the middle peer without the server noticing yet, then broadcast
	// repeatedly. The healthy peers must see every message.
	require.NoError(t, bad.Close())
	for _, msg := range []string{"a", "b", "c"} {
		b.Post(msg)
		require.Equal(t, msg, readLine(t, c1, r1))
		require.Equal(t, msg, readLine(t, c3, r3))
	}
	waitForPeers(t, b, 2)
}

func TestInboundLinesDeliveredInOrder(t *testing.T) {
	b, rec := startBroadcaster(t)

	nc, _ := dialPeer(t, b)
	waitForPeers(t, b, 1)

	_, err := nc.Write([]byte("one\ntwo\nthree\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(rec.received()) == 3 },
		2*time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"one", "two", "three"}, rec.received())
}

func TestMembershipChurnDuringBroadcast(t *testing.T) {
	// Connecting and disconnecting peers while broadcasts are in flight
	// must never fault; peers present before the snapshot still get served.
	b, _ := startBroadcaster(t)

	stable, r := dialPeer(t, b)
	waitForPeers(t, b, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 25; i++ {
			nc, err := net.Dial("tcp", b.Addr().String())
			if err != nil {
				return
			}
			time.Sleep(2 * time.Millisecond)
			nc.Close()
		}
	}()

	for i := 0; i < 50; i++ {
		b.Post("tick")
	}
	<-done

	// The stable peer saw every broadcast, in order.
	for i := 0; i < 50; i++ {
		require.Equal(t, "tick", readLine(t, stable, r))
	}
}

func TestShutdownClosesPeersOnce(t *testing.T) {
	b, rec := startBroadcaster(t)

	_, _ = dialPeer(t, b)
	waitForPeers(t, b, 1)

	// One closed=true from the conventional startup report so far.
	_, closedBefore := rec.counts()
	require.Equal(t, 1, closedBefore)

	b.Shutdown()
	b.Shutdown() // idempotent

	require.Eventually(t, func() bool {
		_, closed := rec.counts()
		return closed == 2
	}, 2*time.Second, 5*time.Millisecond,
		"expected exactly one closed transition for the peer")
	require.Equal(t, 0, b.NumPeers())
}

func TestPostAfterShutdownIsNoop(t *testing.T) {
	b, _ := startBroadcaster(t)
	b.Shutdown()
	b.Post("into the void") // must not panic or block
}

func TestStartupReportsInitialClosedStatus(t *testing.T) {
	rec := &statusRecorder{}
	b := NewBroadcaster(BroadcasterConfig{Port: 0}, rec, nil)
	require.NoError(t, b.Start())
	defer b.Shutdown()

	opened, closed := rec.counts()
	require.Equal(t, 0, opened)
	require.Equal(t, 1, closed)
}

func TestClientReceivesBroadcast(t *testing.T) {
	b, _ := startBroadcaster(t)

	rec := &statusRecorder{}
	host, port := splitHostPort(t, b.Addr().String())
	c, err := Dial(ClientConfig{Host: host, Port: port}, rec, nil)
	require.NoError(t, err)
	defer c.Close()
	waitForPeers(t, b, 1)

	b.Post("to the client")
	require.Eventually(t, func() bool { return len(rec.received()) == 1 },
		2*time.Second, 5*time.Millisecond)
	require.Equal(t, "to the client", rec.received()[0])

	// Client → server direction.
	require.NoError(t, c.Send("to the server"))
}

func TestClientCloseFiresStatusOnce(t *testing.T) {
	b, _ := startBroadcaster(t)

	rec := &statusRecorder{}
	host, port := splitHostPort(t, b.Addr().String())
	c, err := Dial(ClientConfig{Host: host, Port: port}, rec, nil)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	opened, closed := rec.counts()
	require.Equal(t, 1, opened)
	require.Equal(t, 1, closed)
}

func TestDialRefusedIsConnError(t *testing.T) {
	// Bind a listener and close it so the port is known-dead.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port := splitHostPort(t, ln.Addr().String())
	require.NoError(t, ln.Close())

	_, err = Dial(ClientConfig{Host: host, Port: port, DialTimeout: time.Second}, &statusRecorder{}, nil)
	require.Error(t, err)
	var cerr *ConnError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "dial", cerr.Op)
}

func splitHostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	if host == "::" || host == "0.0.0.0" || host == "" {
		host = "127.0.0.1"
	}
	return host, port
}
