package socket

import "sync"

// peer is one registered connection on a Broadcaster. The identity is an
// opaque handle, independent of the remote address (two peers may share one).
type peer struct {
	id   string
	conn *Conn
}

// registry is the live set of peers for a Broadcaster. Inserts come from the
// accept loop; removals race in from reader loops and failed broadcast
// writes. Fan-out never iterates the map directly: it works from an
// immutable snapshot, so membership may change mid-broadcast without a
// structural fault.
type registry struct {
	mu    sync.RWMutex
	peers map[string]*peer
}

func newRegistry() *registry {
	return &registry{peers: make(map[string]*peer)}
}

func (r *registry) add(p *peer) {
	r.mu.Lock()
	r.peers[p.id] = p
	r.mu.Unlock()
}

// remove deletes the peer and reports whether it was present. Removing an
// already-removed peer is a no-op, so the two removal paths may race freely.
func (r *registry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[id]; !ok {
		return false
	}
	delete(r.peers, id)
	return true
}

// snapshot returns a point-in-time copy of the live peers. Peers added after
// the snapshot are not included; peers removed after it may still appear and
// must tolerate a late write attempt.
func (r *registry) snapshot() []*peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
