// Package app carries the demo session the server binary wires in: a
// colored banner with the negotiated terminal characteristics, a line
// echo, and a status line repainted on window size changes.
package app

import (
	"fmt"
	"io"

	"github.com/mgutz/ansi"
	log "github.com/sirupsen/logrus"

	"github.com/KazDragon/munin-acceptance/internal/client"
)

var (
	banner = ansi.ColorFunc("cyan+b")
	detail = ansi.ColorFunc("white")
	status = ansi.ColorFunc("green")
	prompt = ansi.ColorFunc("yellow")
)

// Echo talks back: it greets with the negotiated terminal
// characteristics, repeats every line it receives, and repaints a status
// line when the window size changes.
type Echo struct {
	w      io.Writer
	term   client.TerminalInfo
	line   []byte
	logger *log.Entry
}

// Factory adapts NewEcho to the client's session factory signature.
func Factory(w io.Writer, term client.TerminalInfo) client.Session {
	return NewEcho(w, term)
}

// NewEcho greets the client and returns the session.
func NewEcho(w io.Writer, term client.TerminalInfo) *Echo {
	e := &Echo{
		w:    w,
		term: term,
		logger: log.WithFields(log.Fields{
			"domain":   "app",
			"terminal": term.Type,
		}),
	}
	e.greet()
	return e
}

func (e *Echo) greet() {
	name := e.term.Type
	if name == "" {
		name = "unknown"
	}
	fmt.Fprintf(e.w, "%s\r\n", banner("munind"))
	fmt.Fprintf(e.w, "%s\r\n", detail(fmt.Sprintf("terminal %s, %dx%d", name, e.term.Width, e.term.Height)))
}

// HandleInput buffers bytes until a line break and echoes each complete
// line. Carriage returns and telnet's NUL padding never reach the echo.
func (e *Echo) HandleInput(p []byte) {
	for _, b := range p {
		switch b {
		case '\r', '\n':
			e.flushLine()
		case 0:
		default:
			e.line = append(e.line, b)
		}
	}
}

func (e *Echo) flushLine() {
	if len(e.line) == 0 {
		return
	}
	line := string(e.line)
	e.line = e.line[:0]
	fmt.Fprintf(e.w, "%s %s\r\n", prompt("you said:"), line)
}

// WindowSizeChanged repaints the status line with the new geometry.
func (e *Echo) WindowSizeChanged(width, height uint16) {
	e.term.Width, e.term.Height = width, height
	fmt.Fprintf(e.w, "%s\r\n", status(fmt.Sprintf("window resized to %dx%d", width, height)))
}

// Close ends the session; the connection is already on its way down.
func (e *Echo) Close() {
	e.logger.Debug("session closed")
}
