// Package server accepts raw telnet clients and owns the bookkeeping
// that spans connections. Each accepted socket becomes a connection and
// a client; the registry tracks them by id so that delayed negotiation
// reports and death notifications resolve against current state instead
// of captured references.
package server

import (
	"context"
	"errors"
	"net"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"github.com/KazDragon/munin-acceptance/internal/client"
	"github.com/KazDragon/munin-acceptance/internal/connection"
	"github.com/KazDragon/munin-acceptance/internal/metrics"
	"github.com/KazDragon/munin-acceptance/internal/transport"
)

// Server runs the accept loop over one listener and builds the
// connection/client stack for every client that arrives.
type Server struct {
	ln      *transport.Listener
	factory client.SessionFactory
	reg     *registry
	logger  *log.Entry
}

// New builds a server around a bound listener. The factory runs once per
// client, after its terminal negotiation settles.
func New(ln *transport.Listener, factory client.SessionFactory) *Server {
	return &Server{
		ln:      ln,
		factory: factory,
		reg:     newRegistry(),
		logger:  log.WithField("domain", "server"),
	}
}

// Run accepts until the context is cancelled or the listener closes,
// then closes every live client. Accept errors on a healthy listener are
// transient; they are logged and accepting continues.
func (s *Server) Run(ctx context.Context) error {
	s.logger.WithField("addr", s.ln.Addr()).Info("accepting connections")
	for {
		sock, err := s.ln.Accept(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				s.closeAll()
				return ctx.Err()
			case errors.Is(err, net.ErrClosed):
				s.closeAll()
				return nil
			default:
				s.logger.WithError(err).Warn("accept failed")
				continue
			}
		}
		s.register(sock)
	}
}

// register builds the stack for one accepted socket. The death observer
// and the report routers capture the connection id, never the client;
// whether the connection is still tracked is re-checked against the
// registry at invocation time.
func (s *Server) register(sock *transport.Socket) {
	conn := connection.New(sock)
	id := s.reg.track(conn)

	metrics.ConnectionsAccepted.Inc()
	metrics.ConnectionsActive.Inc()
	s.logger.WithFields(log.Fields{
		"id":     id,
		"remote": conn.RemoteAddr(),
	}).Info("connection accepted")

	conn.OnDeath(func() { s.connectionDied(id) })

	cl := client.New(&trackedConn{Connection: conn, id: id, srv: s}, s.factory)
	if !s.reg.attach(id, cl) {
		// died while the client was being built
		cl.Close()
	}
}

// closeAll force-disconnects every tracked client. Removal and metrics
// happen on each connection's death path, so this only has to trigger
// the closes.
func (s *Server) closeAll() {
	for _, e := range s.reg.snapshot() {
		if e.cl != nil {
			e.cl.Close()
		} else {
			e.conn.Close()
		}
	}
}

// --- Per-connection routing ---

// trackedConn threads the registry into the two negotiation reports the
// client consumes. It carries the connection id so a report racing a
// disconnect resolves against the registry, not a stale reference.
type trackedConn struct {
	*connection.Connection
	id  uint64
	srv *Server
}

func (tc *trackedConn) AsyncGetTerminalType(f func(string)) {
	tc.Connection.AsyncGetTerminalType(func(name string) {
		tc.srv.terminalTypeReported(tc.id, name, f)
	})
}

func (tc *trackedConn) OnWindowSizeChanged(f func(width, height uint16)) {
	tc.Connection.OnWindowSizeChanged(func(width, height uint16) {
		tc.srv.windowSizeChanged(tc.id, width, height, f)
	})
}

// terminalTypeReported routes one terminal type report. Unknown ids are
// stray replies from connections already gone and are dropped silently.
func (s *Server) terminalTypeReported(id uint64, name string, forward func(string)) {
	if !s.reg.settle(id) {
		return
	}
	metrics.TerminalTypes.WithLabelValues(name).Inc()
	s.logger.WithFields(log.Fields{
		"id":       id,
		"terminal": name,
	}).Debug("terminal type settled")
	forward(name)
}

// windowSizeChanged routes one window size report, recording it as the
// interim size while the connection is still negotiating. Unknown ids
// are dropped silently.
func (s *Server) windowSizeChanged(id uint64, width, height uint16, forward func(width, height uint16)) {
	if !s.reg.noteSize(id, width, height) {
		return
	}
	metrics.WindowSizeReports.Inc()
	forward(width, height)
}

// connectionDied runs once per connection, on its death. Bookkeeping
// only: the client observes death through its own read completing empty,
// so closing it here would re-enter a close already in progress.
func (s *Server) connectionDied(id uint64) {
	e, ok := s.reg.remove(id)
	if !ok {
		return
	}
	metrics.ConnectionsActive.Dec()
	in, out := e.conn.BytesIn(), e.conn.BytesOut()
	metrics.BytesRead.Add(float64(in))
	metrics.BytesWritten.Add(float64(out))
	s.logger.WithFields(log.Fields{
		"id":     id,
		"remote": e.conn.RemoteAddr(),
		"in":     humanize.Bytes(in),
		"out":    humanize.Bytes(out),
	}).Info("connection closed")
}
