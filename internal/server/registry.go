package server

import (
	"sync"

	"github.com/KazDragon/munin-acceptance/internal/client"
	"github.com/KazDragon/munin-acceptance/internal/connection"
)

type windowSize struct {
	width, height uint16
}

// entry is everything the server tracks for one accepted connection.
type entry struct {
	conn *connection.Connection
	cl   *client.Client
}

// registry is the cross-connection bookkeeping: every live connection by
// id, the subset still negotiating, and the window sizes reported while
// negotiating. An id present in sizes is always present in pending; both
// empty out when negotiation settles or the connection dies. Reports
// arriving for ids no longer tracked are stray replies and every lookup
// here answers them with false.
type registry struct {
	mu      sync.Mutex
	lastID  uint64
	entries map[uint64]*entry
	pending map[uint64]struct{}
	sizes   map[uint64]windowSize
}

func newRegistry() *registry {
	return &registry{
		entries: make(map[uint64]*entry),
		pending: make(map[uint64]struct{}),
		sizes:   make(map[uint64]windowSize),
	}
}

// track admits a freshly accepted connection and returns its id. New
// connections start pending until the terminal type settles.
func (r *registry) track(conn *connection.Connection) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastID++
	id := r.lastID
	r.entries[id] = &entry{conn: conn}
	r.pending[id] = struct{}{}
	return id
}

// attach fills in the client once it is built. False means the
// connection died during construction and was already removed.
func (r *registry) attach(id uint64, cl *client.Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	e.cl = cl
	return true
}

// settle marks negotiation complete for id, dropping it from pending and
// discarding any interim size. False means the id is unknown. Settling
// an id that already settled stays true; the report still forwards and
// the client ignores it.
func (r *registry) settle(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.pending, id)
	delete(r.sizes, id)
	return true
}

// noteSize records a window size report. While the connection is pending
// the size is kept as the interim value; settled connections just pass
// the lookup. False means the id is unknown.
func (r *registry) noteSize(id uint64, width, height uint16) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return false
	}
	if _, p := r.pending[id]; p {
		r.sizes[id] = windowSize{width, height}
	}
	return true
}

// remove forgets a connection everywhere and returns what was tracked.
// False means it was already gone.
func (r *registry) remove(id uint64) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	delete(r.entries, id)
	delete(r.pending, id)
	delete(r.sizes, id)
	return e, true
}

// snapshot copies out the live entries so callers can act on them
// without holding the lock.
func (r *registry) snapshot() []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}
