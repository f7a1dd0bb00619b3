package telnet

import (
	"bytes"
	"math/rand"
	"testing"
)

// newTestSession returns a session collecting payload runs, with all five
// negotiators installed the way a connection does it.
func newTestSession(t *testing.T) (*Session, *[][]byte) {
	t.Helper()
	var payloads [][]byte
	s := NewSession(func(p []byte) {
		payloads = append(payloads, append([]byte(nil), p...))
	})
	s.Install(NewEcho())
	s.Install(NewSuppressGoAhead())
	s.Install(NewNaws())
	s.Install(NewTerminalType())
	s.Install(NewCompress(func() {}, func() {}))
	return s, &payloads
}

func TestSessionRoutesPayload(t *testing.T) {
	s, payloads := newTestSession(t)
	rs := s.Receive([]byte("hello"))
	if len(rs) != 0 {
		t.Fatalf("plain payload generated replies: %v", rs)
	}
	if len(*payloads) != 1 || string((*payloads)[0]) != "hello" {
		t.Fatalf("unexpected payloads %q", *payloads)
	}
}

func TestSessionRoutesNegotiationToOption(t *testing.T) {
	s, _ := newTestSession(t)
	rs := s.Receive([]byte{IAC, DO, OptEcho})
	if len(rs) != 1 {
		t.Fatalf("expected WILL ECHO reply, got %v", rs)
	}
	neg := rs[0].El.(Negotiation)
	if neg.Verb != WILL || neg.Option != OptEcho {
		t.Fatalf("expected WILL ECHO, got %+v", neg)
	}
}

func TestSessionRefusesUnknownOption(t *testing.T) {
	s, _ := newTestSession(t)

	rs := s.Receive([]byte{IAC, DO, 99})
	if len(rs) != 1 {
		t.Fatalf("expected refusal, got %v", rs)
	}
	if neg := rs[0].El.(Negotiation); neg.Verb != WONT || neg.Option != 99 {
		t.Fatalf("expected WONT 99, got %+v", neg)
	}

	rs = s.Receive([]byte{IAC, WILL, 200})
	if neg := rs[0].El.(Negotiation); neg.Verb != DONT || neg.Option != 200 {
		t.Fatalf("expected DONT 200, got %+v", neg)
	}

	// refusals of unknown options are ignored
	if rs := s.Receive([]byte{IAC, WONT, 99, IAC, DONT, 200}); len(rs) != 0 {
		t.Fatalf("expected silence for unknown refusals, got %v", rs)
	}
}

func TestSessionDropsUnknownSubnegotiation(t *testing.T) {
	s, payloads := newTestSession(t)
	rs := s.Receive([]byte{IAC, SB, 99, 'x', IAC, SE})
	if len(rs) != 0 || len(*payloads) != 0 {
		t.Fatalf("unknown subnegotiation leaked: replies=%v payloads=%q", rs, *payloads)
	}
}

func TestSessionCommandHook(t *testing.T) {
	s, _ := newTestSession(t)
	var cmds []byte
	s.OnCommand(func(cmd byte) { cmds = append(cmds, cmd) })
	s.Receive([]byte{IAC, NOP, 'a', IAC, GA})
	if !bytes.Equal(cmds, []byte{NOP, GA}) {
		t.Fatalf("expected NOP,GA, got % x", cmds)
	}
}

func TestSessionReplyOrderMirrorsStream(t *testing.T) {
	s, _ := newTestSession(t)

	// Peer accepts echo and announces terminal-type in one buffer; the
	// replies must come back in stream order: nothing for DO ECHO (no
	// offer outstanding -> remote-initiated WILL first), then DO TTYPE ack
	// order per arrival.
	buf := []byte{IAC, DO, OptEcho, IAC, WILL, OptTerminalType}
	rs := s.Receive(buf)
	if len(rs) != 3 {
		t.Fatalf("expected WILL ECHO, DO TTYPE, TTYPE SEND; got %v", rs)
	}
	if neg := rs[0].El.(Negotiation); neg.Verb != WILL || neg.Option != OptEcho {
		t.Fatalf("reply 0: expected WILL ECHO, got %+v", neg)
	}
	if neg := rs[1].El.(Negotiation); neg.Verb != DO || neg.Option != OptTerminalType {
		t.Fatalf("reply 1: expected DO TTYPE, got %+v", neg)
	}
	sub, ok := rs[2].El.(Subnegotiation)
	if !ok || sub.Option != OptTerminalType || sub.Payload[0] != ttypeSEND {
		t.Fatalf("reply 2: expected TTYPE SEND, got %+v", rs[2].El)
	}
}

func TestSessionFeatureCallbacksThroughStream(t *testing.T) {
	s, _ := newTestSession(t)

	naws := NewNaws()
	var sizes [][2]uint16
	naws.OnSize = func(w, h uint16) { sizes = append(sizes, [2]uint16{w, h}) }
	s.Install(naws)

	tt := NewTerminalType()
	var names []string
	tt.OnType = func(name string) { names = append(names, name) }
	s.Install(tt)

	s.Receive([]byte{IAC, WILL, OptNAWS, IAC, WILL, OptTerminalType})
	s.Receive([]byte{IAC, SB, OptNAWS, 0, 100, 0, 40, IAC, SE})
	s.Receive(append(append([]byte{IAC, SB, OptTerminalType, ttypeIS}, "xterm"...), IAC, SE))

	if len(sizes) != 1 || sizes[0] != [2]uint16{100, 40} {
		t.Fatalf("expected one 100x40 report, got %v", sizes)
	}
	if len(names) != 1 || names[0] != "xterm" {
		t.Fatalf("expected one xterm report, got %v", names)
	}
}

func TestSessionSendEscapesText(t *testing.T) {
	s, _ := newTestSession(t)
	got := s.Send(Text{'a', IAC, 'b'})
	want := []byte{'a', IAC, IAC, 'b'}
	if !bytes.Equal(got, want) {
		t.Fatalf("expected % x, got % x", want, got)
	}
}

func TestSessionSendRendersControlElements(t *testing.T) {
	s, _ := newTestSession(t)

	if got := s.Send(Command(NOP)); !bytes.Equal(got, []byte{IAC, NOP}) {
		t.Fatalf("NOP rendered as % x", got)
	}
	if got := s.Send(Negotiation{Verb: WILL, Option: OptEcho}); !bytes.Equal(got, []byte{IAC, WILL, OptEcho}) {
		t.Fatalf("WILL ECHO rendered as % x", got)
	}
	got := s.Send(Subnegotiation{Option: OptNAWS, Payload: []byte{0, IAC, 0, 24}})
	want := []byte{IAC, SB, OptNAWS, 0, IAC, IAC, 0, 24, IAC, SE}
	if !bytes.Equal(got, want) {
		t.Fatalf("subnegotiation rendered as % x, want % x", got, want)
	}
}

func TestSessionSendReceiveRoundTrip(t *testing.T) {
	var received []Element
	s := NewSession(func(p []byte) {
		received = append(received, Text(append([]byte(nil), p...)))
	})
	s.OnCommand(func(cmd byte) { received = append(received, Command(cmd)) })

	sent := []Element{
		Text("payload with \xff inside"),
		Command(NOP),
		Text("tail"),
	}
	var wire []byte
	for _, el := range sent {
		wire = append(wire, s.Send(el)...)
	}

	s.Receive(wire)
	if len(received) != 3 {
		t.Fatalf("expected 3 elements back, got %d: %v", len(received), received)
	}
	if string(received[0].(Text)) != "payload with \xff inside" {
		t.Fatalf("text corrupted: %q", received[0].(Text))
	}
}

// TestSessionPayloadSplitProperty: for any chunking of the same stream,
// the concatenated payload equals the payload of a single-call parse with
// negotiation bytes removed.
func TestSessionPayloadSplitProperty(t *testing.T) {
	stream := []byte("one")
	stream = append(stream, IAC, DO, OptEcho)
	stream = append(stream, "two"...)
	stream = append(stream, IAC, SB, OptNAWS, 0, 80, 0, 24, IAC, SE)
	stream = append(stream, IAC, IAC)
	stream = append(stream, "three"...)

	collect := func(chunks [][]byte) []byte {
		var got []byte
		s := NewSession(func(p []byte) { got = append(got, p...) })
		s.Install(NewEcho())
		s.Install(NewNaws())
		for _, c := range chunks {
			s.Receive(c)
		}
		return got
	}

	want := collect([][]byte{stream})

	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 100; trial++ {
		var chunks [][]byte
		for i := 0; i < len(stream); {
			n := rng.Intn(4) + 1
			if i+n > len(stream) {
				n = len(stream) - i
			}
			chunks = append(chunks, stream[i:i+n])
			i += n
		}
		if got := collect(chunks); !bytes.Equal(got, want) {
			t.Fatalf("trial %d: payload diverged: %q vs %q", trial, got, want)
		}
	}

	if want == nil || string(want) != "one"+"two"+"\xff"+"three" {
		t.Fatalf("unexpected whole-parse payload %q", want)
	}
}
