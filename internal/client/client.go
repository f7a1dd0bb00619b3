// Package client runs the per-connection lifecycle: an explicit state
// machine that carries an accepted connection through negotiation into a
// running application session and, eventually, to the grave.
package client

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// State identifies the lifecycle phase of one client.
type State int

const (
	StateInit  State = iota // construction only; left immediately
	StateSetup              // negotiating; payload is buffered
	StateMain               // application session running
	StateDead               // terminal
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSetup:
		return "setup"
	case StateMain:
		return "main"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

const (
	defaultWidth  = 80
	defaultHeight = 24
)

// Client owns one connection from accept to teardown. All entry points
// (read continuations, terminal type and window size reports, Close)
// funnel through one mutex, so the transition function runs
// single-threaded per client.
type Client struct {
	conn    Conn
	factory SessionFactory
	logger  *log.Entry

	mu          sync.Mutex
	state       State
	readPending bool
	setupBuf    []byte
	termType    string
	width       uint16
	height      uint16
	sized       bool
	session     Session
}

// New wires a freshly accepted connection into the state machine: enters
// Setup, registers for the terminal type and window size reports, and
// schedules the first read. The session factory runs later, once the
// terminal type arrives.
func New(conn Conn, factory SessionFactory) *Client {
	c := &Client{
		conn:    conn,
		factory: factory,
		state:   StateInit,
		logger: log.WithFields(log.Fields{
			"domain": "client",
			"remote": conn.RemoteAddr(),
		}),
	}

	c.mu.Lock()
	c.state = StateSetup
	c.mu.Unlock()

	// wiring comes before the first read so nothing the remote sends can
	// slip past the observers
	conn.OnWindowSizeChanged(c.windowSizeChanged)
	conn.AsyncGetTerminalType(c.terminalTypeReported)

	c.mu.Lock()
	c.scheduleReadLocked()
	c.mu.Unlock()
	return c
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close force-disconnects the client. The machine enters Dead; closing a
// dead client does nothing.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enterLocked(StateDead)
}

// --- Events ---

// payload handles one decoded payload run from the connection.
func (c *Client) payload(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateSetup:
		// buffered verbatim until a session exists
		c.setupBuf = append(c.setupBuf, p...)
		c.enterLocked(StateSetup)
	case StateMain:
		c.session.HandleInput(p)
		c.enterLocked(StateMain)
	default:
		// Init never has a read in flight; Dead absorbs
	}
}

// readComplete fires exactly once per scheduled read. Completion against
// a dead connection is the death signal; anything else keeps the machine
// in place and sends the next read out.
func (c *Client) readComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readPending = false
	if !c.conn.IsAlive() {
		c.enterLocked(StateDead)
		return
	}
	c.enterLocked(c.state)
}

// terminalTypeReported fires when negotiation yields the terminal type.
// In Setup it completes negotiation; in Main it is a no-op (the session
// already exists); Dead absorbs it.
func (c *Client) terminalTypeReported(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateSetup:
		c.termType = name
		c.enterLocked(StateMain)
	default:
	}
}

// windowSizeChanged fires on every NAWS report. In Setup the size is
// recorded for the session factory, last report winning; in Main it
// forwards live.
func (c *Client) windowSizeChanged(width, height uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateSetup:
		c.width, c.height = width, height
		c.sized = true
		c.enterLocked(StateSetup)
	case StateMain:
		c.session.WindowSizeChanged(width, height)
		c.enterLocked(StateMain)
	default:
	}
}

// --- Transition function ---

// enterLocked moves the machine to the given state. Entry actions run
// only when the state actually changes; re-entering the current state
// never reinitializes anything. Every entry schedules the next read
// except Dead, which ends the read loop instead. Callers hold mu.
func (c *Client) enterLocked(to State) {
	if to == StateDead {
		if c.state == StateDead {
			return
		}
		c.state = StateDead
		sess := c.session
		c.session = nil
		c.setupBuf = nil
		if sess != nil {
			sess.Close()
		}
		c.conn.Close()
		c.logger.Debug("client dead")
		return
	}

	if c.state != to {
		c.state = to
		if to == StateMain {
			c.startSessionLocked()
		}
	}
	c.scheduleReadLocked()
}

// startSessionLocked runs the Main entry action exactly once: build the
// application session with the negotiated terminal characteristics, then
// replay everything buffered during Setup before any further live reads.
func (c *Client) startSessionLocked() {
	info := TerminalInfo{
		Type:   c.termType,
		Width:  defaultWidth,
		Height: defaultHeight,
	}
	if c.sized {
		info.Width, info.Height = c.width, c.height
	}
	c.session = c.factory(c.conn, info)

	if len(c.setupBuf) > 0 {
		buf := c.setupBuf
		c.setupBuf = nil
		c.session.HandleInput(buf)
	}
	c.logger.WithFields(log.Fields{
		"terminal": info.Type,
		"width":    info.Width,
		"height":   info.Height,
	}).Debug("session started")
}

// scheduleReadLocked sends the next read out, keeping at most one in
// flight. Callers hold mu.
func (c *Client) scheduleReadLocked() {
	if c.readPending || c.state == StateDead {
		return
	}
	c.readPending = true
	c.conn.AsyncRead(c.payload, c.readComplete)
}
