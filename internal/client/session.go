package client

import (
	"io"
	"net"
)

// TerminalInfo is what negotiation learned about the remote terminal by
// the time the application session starts.
type TerminalInfo struct {
	Type   string
	Width  uint16
	Height uint16
}

// Session is the application collaborator a client drives once
// negotiation is done. Calls are serialized by the client; Close is
// called exactly once.
type Session interface {
	HandleInput(p []byte)
	WindowSizeChanged(width, height uint16)
	Close()
}

// SessionFactory builds the application session for one client. w writes
// to the remote terminal for the life of the connection.
type SessionFactory func(w io.Writer, term TerminalInfo) Session

// Conn is the slice of the connection façade the state machine drives.
type Conn interface {
	io.Writer
	IsAlive() bool
	AsyncRead(onData func([]byte), onDone func())
	AsyncGetTerminalType(f func(string))
	OnWindowSizeChanged(f func(width, height uint16))
	RemoteAddr() net.Addr
	Close()
}
