package telnet

import "encoding/binary"

// Naws receives the remote's window size reports (RFC 1073).
type Naws struct {
	Option

	// OnSize receives every well-formed size report, including repeats
	// with unchanged values: a remote re-sending its size is a signal in
	// its own right, and suppression is the consumer's call.
	OnSize func(width, height uint16)
}

// NewNaws returns the remote NAWS option.
func NewNaws() *Naws {
	n := &Naws{Option: Option{code: OptNAWS}}
	n.onSubnegotiation = n.size
	return n
}

func (n *Naws) size(p []byte) []Reply {
	if len(p) != nawsPayloadSize {
		// malformed report; ignore and stay Active
		return nil
	}
	if n.OnSize != nil {
		n.OnSize(binary.BigEndian.Uint16(p[0:2]), binary.BigEndian.Uint16(p[2:4]))
	}
	return nil
}
