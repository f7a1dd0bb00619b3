package telnet

// Element is one parsed unit of the Telnet stream: application payload,
// a lone command, a negotiation triple, or a subnegotiation. Elements are
// produced in exactly the order their bytes arrived.
type Element interface {
	element()
}

// Text is a run of application payload bytes (IAC escapes resolved).
type Text []byte

// Command is a single protocol instruction, e.g. NOP or GA.
type Command byte

// Negotiation is a WILL/WONT/DO/DONT verb for one option.
type Negotiation struct {
	Verb   byte
	Option byte
}

// Subnegotiation is an option-specific payload, IAC-unescaped.
type Subnegotiation struct {
	Option  byte
	Payload []byte
}

func (Text) element()           {}
func (Command) element()        {}
func (Negotiation) element()    {}
func (Subnegotiation) element() {}

// --- Encoding ---

// appendElement appends el's exact wire form to dst. Rendering is
// stateless: the inverse of parsing, minus text-run boundaries.
func appendElement(dst []byte, el Element) []byte {
	switch e := el.(type) {
	case Text:
		return appendEscaped(dst, e)
	case Command:
		return append(dst, IAC, byte(e))
	case Negotiation:
		return append(dst, IAC, e.Verb, e.Option)
	case Subnegotiation:
		dst = append(dst, IAC, SB, e.Option)
		dst = appendEscaped(dst, e.Payload)
		return append(dst, IAC, SE)
	}
	return dst
}

// appendEscaped appends p with every 0xFF doubled.
func appendEscaped(dst, p []byte) []byte {
	for _, b := range p {
		if b == IAC {
			dst = append(dst, IAC, IAC)
		} else {
			dst = append(dst, b)
		}
	}
	return dst
}
