package telnet

// parseState is where the parser stands inside a (possibly split) sequence.
type parseState uint8

const (
	stateText   parseState = iota // plain payload
	stateIAC                      // saw IAC, awaiting command byte
	stateVerb                     // saw WILL/WONT/DO/DONT, awaiting option
	stateSubOpt                   // saw IAC SB, awaiting option
	stateSub                      // inside subnegotiation payload
	stateSubIAC                   // saw IAC inside subnegotiation
)

// Parser turns raw inbound bytes into Elements. It is stateful: a command,
// negotiation, or subnegotiation split across read buffers resumes on the
// next Parse call. Text runs flush at each call boundary, so a payload
// split across two reads yields two Text elements; concatenated payload is
// invariant under any split of the input.
//
// Parser is not safe for concurrent use; each connection's reader owns one.
type Parser struct {
	state parseState
	verb  byte
	sub   byte
	buf   []byte // subnegotiation payload under construction
}

// Parse consumes p and returns the elements it completes, in input order.
// Returned Text and Subnegotiation payloads are freshly allocated and do
// not alias p.
func (ps *Parser) Parse(p []byte) []Element {
	var out []Element
	var text []byte

	flushText := func() {
		if len(text) > 0 {
			out = append(out, Text(text))
			text = nil
		}
	}

	for _, b := range p {
		switch ps.state {
		case stateText:
			if b == IAC {
				ps.state = stateIAC
			} else {
				text = append(text, b)
			}

		case stateIAC:
			switch {
			case b == IAC:
				// escaped literal 0xFF
				text = append(text, IAC)
				ps.state = stateText
			case b == WILL || b == WONT || b == DO || b == DONT:
				flushText()
				ps.verb = b
				ps.state = stateVerb
			case b == SB:
				flushText()
				ps.state = stateSubOpt
			default:
				flushText()
				out = append(out, Command(b))
				ps.state = stateText
			}

		case stateVerb:
			out = append(out, Negotiation{Verb: ps.verb, Option: b})
			ps.state = stateText

		case stateSubOpt:
			ps.sub = b
			ps.buf = nil
			ps.state = stateSub

		case stateSub:
			if b == IAC {
				ps.state = stateSubIAC
			} else {
				ps.buf = append(ps.buf, b)
			}

		case stateSubIAC:
			switch b {
			case SE:
				out = append(out, Subnegotiation{Option: ps.sub, Payload: ps.buf})
				ps.buf = nil
				ps.state = stateText
			case IAC:
				ps.buf = append(ps.buf, IAC)
				ps.state = stateSub
			default:
				// Malformed: IAC inside a subnegotiation followed by
				// neither SE nor IAC. Keep the byte rather than drop it.
				ps.buf = append(ps.buf, b)
				ps.state = stateSub
			}
		}
	}

	flushText()
	return out
}
