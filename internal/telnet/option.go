package telnet

// OptionState is where an option stands in its negotiation.
type OptionState uint8

const (
	Inactive OptionState = iota
	Negotiating
	Active
)

// Reply is an element a negotiator wants written back to the peer. After,
// when non-nil, runs once the element's bytes are on the wire. El may be
// nil for a reply that exists only to run After.
type Reply struct {
	El    Element
	After func()
}

// Negotiator is the capability surface the session dispatches to. The five
// concrete negotiators all embed Option, which implements it.
type Negotiator interface {
	Code() byte
	Activate() []Reply
	negotiate(verb byte) []Reply
	subnegotiate(payload []byte) []Reply
}

// Option is the negotiation automaton shared by every negotiator. A local
// option is a feature we perform (announced with WILL, acked by the remote
// with DO); a remote option is one the peer performs (requested with DO,
// acked with WILL).
type Option struct {
	code  byte
	local bool
	state OptionState

	// onSettle runs after every received negotiation verb for this option,
	// including redundant re-acks while Active. Replies it returns are
	// written after the automaton's own ack. Hooks guard on State.
	onSettle func() []Reply

	// onSubnegotiation handles an inbound subnegotiation; the automaton
	// invokes it only while Active.
	onSubnegotiation func(payload []byte) []Reply
}

func (o *Option) Code() byte { return o.code }

// State reports the current negotiation state.
func (o *Option) State() OptionState { return o.state }

// Active reports whether the feature has been agreed by both sides.
func (o *Option) Active() bool { return o.state == Active }

// Activate requests the feature from the peer. A no-op unless the option
// is Inactive.
func (o *Option) Activate() []Reply {
	if o.state != Inactive {
		return nil
	}
	o.state = Negotiating
	verb := DO
	if o.local {
		verb = WILL
	}
	return []Reply{{El: Negotiation{Verb: verb, Option: o.code}}}
}

// negotiate advances the automaton for a received verb and returns any
// acks plus whatever the settle hook contributes.
func (o *Option) negotiate(verb byte) []Reply {
	ourPositive, ourNegative := WILL, WONT
	theirPositive, theirNegative := DO, DONT
	if !o.local {
		ourPositive, ourNegative = DO, DONT
		theirPositive, theirNegative = WILL, WONT
	}

	var replies []Reply
	switch verb {
	case theirPositive:
		switch o.state {
		case Inactive:
			// remote-initiated activation
			o.state = Active
			replies = append(replies, Reply{El: Negotiation{Verb: ourPositive, Option: o.code}})
		case Negotiating:
			o.state = Active
		case Active:
			// redundant re-ack; answer it and let the hook see it
			replies = append(replies, Reply{El: Negotiation{Verb: ourPositive, Option: o.code}})
		}

	case theirNegative:
		switch o.state {
		case Inactive:
			replies = append(replies, Reply{El: Negotiation{Verb: ourNegative, Option: o.code}})
		case Negotiating:
			o.state = Inactive
		case Active:
			o.state = Inactive
			replies = append(replies, Reply{El: Negotiation{Verb: ourNegative, Option: o.code}})
		}

	case WILL:
		// A request for the side of the option we did not install
		// (e.g. WILL ECHO from a client): refuse it.
		return []Reply{{El: Negotiation{Verb: DONT, Option: o.code}}}
	case DO:
		return []Reply{{El: Negotiation{Verb: WONT, Option: o.code}}}

	default: // wrong-side negative: nothing to do
		return nil
	}

	if o.onSettle != nil {
		replies = append(replies, o.onSettle()...)
	}
	return replies
}

// subnegotiate forwards payload to the feature handler while Active;
// subnegotiations for options that are not Active are dropped.
func (o *Option) subnegotiate(payload []byte) []Reply {
	if o.state != Active || o.onSubnegotiation == nil {
		return nil
	}
	return o.onSubnegotiation(payload)
}

// NewEcho returns the local Echo option (RFC 857): once active the client
// stops local echo and the server controls echoing.
func NewEcho() *Option {
	return &Option{code: OptEcho, local: true}
}

// NewSuppressGoAhead returns the local Suppress-Go-Ahead option (RFC 858),
// turning off half-duplex go-ahead signalling.
func NewSuppressGoAhead() *Option {
	return &Option{code: OptSuppressGoAhead, local: true}
}
