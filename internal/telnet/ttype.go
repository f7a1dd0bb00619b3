package telnet

// TerminalType discovers the remote's terminal name (RFC 1091).
type TerminalType struct {
	Option

	// OnType receives each reported terminal name, empty string included.
	OnType func(name string)
}

// NewTerminalType returns the remote Terminal-Type option.
func NewTerminalType() *TerminalType {
	t := &TerminalType{Option: Option{code: OptTerminalType}}
	t.onSettle = t.request
	t.onSubnegotiation = t.report
	return t
}

// request issues SB TTYPE SEND on every settle while Active. Remotes
// sometimes re-announce willingness; each announcement gets a fresh
// request.
func (t *TerminalType) request() []Reply {
	if !t.Active() {
		return nil
	}
	return []Reply{{El: Subnegotiation{Option: OptTerminalType, Payload: []byte{ttypeSEND}}}}
}

func (t *TerminalType) report(p []byte) []Reply {
	if len(p) < 1 || p[0] != ttypeIS {
		return nil
	}
	if t.OnType != nil {
		t.OnType(string(p[1:]))
	}
	return nil
}
