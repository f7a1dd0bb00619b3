package transport

import (
	"context"
	"fmt"
	"net"
)

// Listener accepts TCP connections and hands them out as sockets.
type Listener struct {
	ln   net.Listener
	port int
}

// Listen binds to addr in host:port form. Port 0 picks a free port; Port
// reports the one actually bound.
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp listen: %w", err)
	}
	return &Listener{
		ln:   ln,
		port: ln.Addr().(*net.TCPAddr).Port,
	}, nil
}

// Port returns the TCP port the listener is bound to.
func (l *Listener) Port() int {
	return l.port
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Accept waits for the next client connection.
func (l *Listener) Accept(ctx context.Context) (*Socket, error) {
	// Use a channel so we can respect context cancellation.
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := l.ln.Accept()
		ch <- result{conn, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("accept connection: %w", res.err)
		}
		return NewSocket(res.conn), nil
	case <-ctx.Done():
		// The goroutine may stay blocked in Accept until the caller
		// closes the listener. If it wins a connection in the
		// meantime, close it so it does not leak.
		go func() {
			res := <-ch
			if res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Close shuts the listener down. Blocked Accept calls return an error.
func (l *Listener) Close() error {
	return l.ln.Close()
}
