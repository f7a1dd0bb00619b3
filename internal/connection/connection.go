// Package connection composes a transport socket, a telnet session, and
// the MCCP codec into one logical channel: payload in and out, terminal
// type requests, window size notifications, and a keepalive. Everything
// protocol-shaped stays below this package; everything above it sees only
// bytes and events.
package connection

import (
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/KazDragon/munin-acceptance/internal/mccp"
	"github.com/KazDragon/munin-acceptance/internal/metrics"
	"github.com/KazDragon/munin-acceptance/internal/telnet"
	"github.com/KazDragon/munin-acceptance/internal/transport"
)

const (
	readBufferSize   = 4096
	defaultKeepalive = 30 * time.Second
)

// readRequest pairs the two continuations of one scheduled read.
type readRequest struct {
	onData func([]byte)
	onDone func()
}

// Connection is the logical channel over one accepted socket. All
// per-connection protocol state is confined to its reader goroutine; the
// write path is serialized by writeMu so the compression switch and the
// bytes around it stay ordered no matter who is writing.
type Connection struct {
	sock    *transport.Socket
	session *telnet.Session

	compressor   *mccp.Compressor
	decompressor *mccp.Decompressor

	// writeMu serializes the whole outbound pipeline: element encoding,
	// the compressor state, and the socket write form one atomic unit.
	writeMu sync.Mutex

	readReq chan readRequest
	done    chan struct{}

	// chunk state, owned by the reader goroutine: payload runs and
	// feature events uncovered while parsing the current read.
	payloads [][]byte
	posts    []func()

	mu           sync.Mutex
	dead         bool
	onDeath      func()
	onWinSize    func(width, height uint16)
	termType     string
	termKnown    bool
	ttypeWaiters []func(string)

	logger *log.Entry
}

// New wraps an accepted socket. The constructor installs the five option
// negotiators, sends their activation requests in fixed order (Echo,
// Suppress-Go-Ahead, NAWS, Terminal-Type, Compression), and starts the
// read pump and the keepalive.
func New(sock *transport.Socket) *Connection {
	return newConnection(sock, defaultKeepalive)
}

func newConnection(sock *transport.Socket, keepalive time.Duration) *Connection {
	c := &Connection{
		sock:         sock,
		compressor:   mccp.NewCompressor(),
		decompressor: mccp.NewDecompressor(),
		// unbuffered: a request parked in a buffer could outlive the
		// read loop and never complete.
		readReq: make(chan readRequest),
		done:    make(chan struct{}),
		logger: log.WithFields(log.Fields{
			"domain": "connection",
			"remote": sock.RemoteAddr(),
		}),
	}
	c.session = telnet.NewSession(c.bufferPayload)

	echo := telnet.NewEcho()
	sga := telnet.NewSuppressGoAhead()
	naws := telnet.NewNaws()
	naws.OnSize = c.queueWindowSize
	ttype := telnet.NewTerminalType()
	ttype.OnType = c.queueTerminalType
	compress := telnet.NewCompress(c.startCompression, c.stopCompression)

	order := []telnet.Negotiator{echo, sga, naws, ttype, compress}
	for _, n := range order {
		c.session.Install(n)
	}

	sock.OnDeath(c.handleDeath)

	var burst []telnet.Reply
	for _, n := range order {
		burst = append(burst, n.Activate()...)
	}
	c.writeReplies(burst)

	go c.readLoop()
	go c.runKeepalive(keepalive)
	return c
}

// IsAlive reports transport liveness; once false it never flips back.
func (c *Connection) IsAlive() bool {
	return c.sock.IsAlive()
}

// AsyncRead schedules one transport read. Every payload run the read
// uncovers invokes onData, possibly zero times when the chunk was all
// negotiation traffic; onDone then fires exactly once. A read completing
// against a dead transport delivers no data, and the caller observes
// IsAlive to stop scheduling. At most one read should be outstanding; the
// caller's read loop drives scheduling.
func (c *Connection) AsyncRead(onData func([]byte), onDone func()) {
	req := readRequest{onData: onData, onDone: onDone}
	go func() {
		select {
		case c.readReq <- req:
		case <-c.done:
			if req.onDone != nil {
				req.onDone()
			}
		}
	}()
}

// Write sends application payload: IAC-escaped as a text element,
// compressed when compression is active, written to the socket. Failures
// are liveness, never error values, so the error is always nil.
func (c *Connection) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	c.writeMu.Lock()
	c.writeRaw(c.session.Send(telnet.Text(p)))
	c.writeMu.Unlock()
	return len(p), nil
}

// AsyncGetTerminalType queues f to receive the negotiated terminal type.
// Every requester is answered through the same announcement path: when the
// remote reports a name, queued continuations fire in order with the first
// reported value, and a requester arriving after that fires immediately
// with the same value. Each continuation fires at most once; a remote that
// never reports leaves the queue unanswered.
func (c *Connection) AsyncGetTerminalType(f func(string)) {
	if f == nil {
		return
	}
	c.mu.Lock()
	c.ttypeWaiters = append(c.ttypeWaiters, f)
	known, name := c.termKnown, c.termType
	c.mu.Unlock()
	if known {
		c.flushTerminalType(name)
	}
}

// OnWindowSizeChanged sets the window size observer, replacing any
// previous one. It fires on every NAWS report, repeats included.
func (c *Connection) OnWindowSizeChanged(f func(width, height uint16)) {
	c.mu.Lock()
	c.onWinSize = f
	c.mu.Unlock()
}

// OnDeath registers the death observer, replacing any previous one. On a
// connection that is already dead it fires immediately.
func (c *Connection) OnDeath(f func()) {
	c.mu.Lock()
	if !c.dead {
		c.onDeath = f
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	if f != nil {
		f()
	}
}

// Close tears the connection down: the socket closes, the death observer
// fires, both pumps exit. Closing twice is harmless.
func (c *Connection) Close() {
	c.sock.Close()
}

// RemoteAddr returns the peer address.
func (c *Connection) RemoteAddr() net.Addr {
	return c.sock.RemoteAddr()
}

// BytesIn returns bytes read from the peer so far.
func (c *Connection) BytesIn() uint64 {
	return c.sock.BytesIn()
}

// BytesOut returns bytes written to the peer so far.
func (c *Connection) BytesOut() uint64 {
	return c.sock.BytesOut()
}

// --- Reader side ---

func (c *Connection) readLoop() {
	defer c.decompressor.Close()
	buf := make([]byte, readBufferSize)
	for {
		select {
		case <-c.done:
			return
		case req := <-c.readReq:
			n, err := c.sock.Read(buf)
			if n > 0 {
				c.process(buf[:n], req.onData)
			}
			if req.onDone != nil {
				req.onDone()
			}
			if err != nil {
				// dead socket; queued requests complete via done
				return
			}
		}
	}
}

// process runs one chunk through the telnet session and delivers what it
// produced: negotiator replies to the wire first, then payload, then
// feature events. Payload is delivered before events on purpose: bytes
// sharing a chunk with the report that ends negotiation must still land
// in the caller's pre-negotiation buffer.
func (c *Connection) process(chunk []byte, onData func([]byte)) {
	c.payloads = c.payloads[:0]
	c.posts = c.posts[:0]

	c.writeReplies(c.session.Receive(chunk))

	for _, p := range c.payloads {
		out, err := c.decompressor.Decompress(p)
		if err != nil {
			c.logger.WithError(err).Warn("inbound stream corrupt")
			c.sock.Close()
			break
		}
		if len(out) > 0 && onData != nil {
			onData(out)
		}
	}
	for _, post := range c.posts {
		post()
	}
}

// bufferPayload is the telnet session's text sink; reader goroutine only.
func (c *Connection) bufferPayload(p []byte) {
	c.payloads = append(c.payloads, p)
}

func (c *Connection) queueWindowSize(width, height uint16) {
	c.posts = append(c.posts, func() {
		c.mu.Lock()
		f := c.onWinSize
		c.mu.Unlock()
		if f != nil {
			f(width, height)
		}
	})
}

func (c *Connection) queueTerminalType(name string) {
	c.posts = append(c.posts, func() {
		c.announceTerminalType(name)
	})
}

// --- Writer side ---

// writeRaw sends pre-encoded element bytes through the compressor and on
// to the socket. Callers hold writeMu.
func (c *Connection) writeRaw(raw []byte) {
	if len(raw) == 0 {
		return
	}
	out := c.compressor.Compress(raw)
	if len(out) == 0 {
		return
	}
	c.sock.Write(out)
}

// writeReplies flushes negotiator replies in generation order. After hooks
// run with writeMu still held, between the reply's own bytes and any later
// write; the compression switch depends on exactly this placement.
func (c *Connection) writeReplies(replies []telnet.Reply) {
	if len(replies) == 0 {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	for _, r := range replies {
		if r.El != nil {
			c.writeRaw(c.session.Send(r.El))
		}
		if r.After != nil {
			r.After()
		}
	}
}

// startCompression flips the outbound codec on. Runs as an after-send
// hook under writeMu: the MCCP start marker goes out plain, everything
// after it deflated.
func (c *Connection) startCompression() {
	c.compressor.Begin()
	c.logger.Debug("outbound compression on")
}

// stopCompression finishes the deflate stream after the refusal ack,
// which itself still travels compressed, and reverts to plain writes.
func (c *Connection) stopCompression() {
	tail := c.compressor.End()
	if len(tail) > 0 {
		c.sock.Write(tail)
	}
	c.logger.Debug("outbound compression off")
}

// runKeepalive writes a NOP at a fixed interval while the transport is
// alive. It uses the normal write path, so keepalives are compressed once
// compression is on.
func (c *Connection) runKeepalive(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			if !c.sock.IsAlive() {
				return
			}
			c.writeMu.Lock()
			c.writeRaw(c.session.Send(telnet.Command(telnet.NOP)))
			c.writeMu.Unlock()
			metrics.KeepalivesSent.Inc()
		}
	}
}

// --- Terminal type announcement ---

// announceTerminalType records the first reported terminal type and
// answers everyone waiting; later reports are ignored.
func (c *Connection) announceTerminalType(name string) {
	c.mu.Lock()
	if c.termKnown {
		c.mu.Unlock()
		return
	}
	c.termKnown = true
	c.termType = name
	c.mu.Unlock()

	c.logger.WithField("terminal", name).Debug("terminal type negotiated")
	c.flushTerminalType(name)
}

func (c *Connection) flushTerminalType(name string) {
	c.mu.Lock()
	waiters := c.ttypeWaiters
	c.ttypeWaiters = nil
	c.mu.Unlock()
	for _, f := range waiters {
		f(name)
	}
}

// handleDeath runs once as the socket's death observer.
func (c *Connection) handleDeath() {
	c.mu.Lock()
	if c.dead {
		c.mu.Unlock()
		return
	}
	c.dead = true
	f := c.onDeath
	c.onDeath = nil
	c.ttypeWaiters = nil
	c.mu.Unlock()

	c.logger.Debug("connection dead")
	if f != nil {
		// observer first: by the time parked reads complete empty,
		// whoever tracks this connection has already let it go
		f()
	}
	close(c.done)
}
