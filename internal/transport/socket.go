// Package transport owns the raw TCP layer: accepting connections and
// wrapping them in sockets that track liveness. Everything above it deals
// in whole byte chunks and death notifications; I/O errors never travel
// further up the stack than this package.
package transport

import (
	"net"
	"sync"
	"sync/atomic"
)

// Socket wraps an accepted TCP connection. A read or write error marks the
// socket dead, closes the connection, and fires the death observer exactly
// once; the error itself carries no information the layers above can use.
type Socket struct {
	conn net.Conn

	mu      sync.Mutex
	alive   bool
	onDeath func()

	writeMu  sync.Mutex
	bytesIn  atomic.Uint64
	bytesOut atomic.Uint64
}

// NewSocket wraps an established connection.
func NewSocket(conn net.Conn) *Socket {
	return &Socket{conn: conn, alive: true}
}

// IsAlive reports whether the socket can still carry traffic.
func (s *Socket) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// OnDeath registers the observer to fire when the socket dies, replacing
// any previous one. Registering on a socket that is already dead fires the
// observer immediately.
func (s *Socket) OnDeath(f func()) {
	s.mu.Lock()
	if s.alive {
		s.onDeath = f
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	if f != nil {
		f()
	}
}

// Read fills p with the next chunk off the wire. A failed read kills the
// socket; bytes returned alongside the error are still valid.
func (s *Socket) Read(p []byte) (int, error) {
	n, err := s.conn.Read(p)
	if n > 0 {
		s.bytesIn.Add(uint64(n))
	}
	if err != nil {
		s.die()
	}
	return n, err
}

// Write sends p, serialized against concurrent writers. A failed write
// kills the socket.
func (s *Socket) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	n, err := s.conn.Write(p)
	s.writeMu.Unlock()
	if n > 0 {
		s.bytesOut.Add(uint64(n))
	}
	if err != nil {
		s.die()
	}
	return n, err
}

// Close kills the socket. The death observer fires as for any other death;
// closing twice is harmless.
func (s *Socket) Close() error {
	return s.die()
}

// die performs the single alive-to-dead transition: close the connection,
// then fire the observer. Later calls are no-ops.
func (s *Socket) die() error {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return nil
	}
	s.alive = false
	f := s.onDeath
	s.onDeath = nil
	s.mu.Unlock()

	err := s.conn.Close()
	if f != nil {
		f()
	}
	return err
}

// RemoteAddr returns the peer's address.
func (s *Socket) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// BytesIn returns the number of bytes read off the wire so far.
func (s *Socket) BytesIn() uint64 {
	return s.bytesIn.Load()
}

// BytesOut returns the number of bytes written to the wire so far.
func (s *Socket) BytesOut() uint64 {
	return s.bytesOut.Load()
}
