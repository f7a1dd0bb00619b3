package telnet

// Session is the per-connection protocol engine: it owns the negotiators,
// parses inbound bytes, routes elements, and renders outbound elements.
// All state lives on the receive side; Send is stateless.
//
// Session is not safe for concurrent use. Receive belongs to the
// connection's reader; Send may be called from anywhere since it touches
// no session state.
type Session struct {
	parser      Parser
	negotiators map[byte]Negotiator
	onText      func(p []byte)
	onCommand   func(cmd byte)
}

// NewSession returns a session delivering payload runs to onText in
// arrival order.
func NewSession(onText func(p []byte)) *Session {
	return &Session{
		negotiators: make(map[byte]Negotiator),
		onText:      onText,
	}
}

// Install registers n for its option code, replacing any previous
// negotiator for that code.
func (s *Session) Install(n Negotiator) {
	s.negotiators[n.Code()] = n
}

// OnCommand sets the hook for lone protocol commands (NOP and friends).
// Without a hook, commands are tolerated no-ops.
func (s *Session) OnCommand(f func(cmd byte)) {
	s.onCommand = f
}

// Receive parses p, forwards payload runs to the text sink, routes control
// elements to their negotiators, and returns the replies they generated,
// in generation order. The caller writes the replies through its raw send
// path before completing the read cycle.
func (s *Session) Receive(p []byte) []Reply {
	var replies []Reply
	for _, el := range s.parser.Parse(p) {
		switch e := el.(type) {
		case Text:
			if s.onText != nil {
				s.onText(e)
			}
		case Command:
			if s.onCommand != nil {
				s.onCommand(byte(e))
			}
		case Negotiation:
			replies = append(replies, s.negotiationReplies(e)...)
		case Subnegotiation:
			if n, ok := s.negotiators[e.Option]; ok {
				replies = append(replies, n.subnegotiate(e.Payload)...)
			}
			// no negotiator installed: dropped silently
		}
	}
	return replies
}

func (s *Session) negotiationReplies(e Negotiation) []Reply {
	if n, ok := s.negotiators[e.Option]; ok {
		return n.negotiate(e.Verb)
	}
	// Unknown option: refuse requests, ignore refusals.
	switch e.Verb {
	case DO:
		return []Reply{{El: Negotiation{Verb: WONT, Option: e.Option}}}
	case WILL:
		return []Reply{{El: Negotiation{Verb: DONT, Option: e.Option}}}
	}
	return nil
}

// Send renders el to its exact wire bytes.
func (s *Session) Send(el Element) []byte {
	return appendElement(nil, el)
}
