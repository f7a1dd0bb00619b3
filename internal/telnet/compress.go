package telnet

// Compress negotiates MCCP2-style outbound compression (option 86). When
// the option becomes Active it emits the start marker subnegotiation and
// then runs start, which must flip the outbound compressor on. The flip
// rides the reply's After hook so the marker itself, and everything before
// it, leaves uncompressed. A remote that later refuses the option gets the
// stream terminated via stop.
type Compress struct {
	Option

	started bool
	start   func()
	stop    func()
}

// NewCompress returns the local compression option. start and stop are
// invoked on the writer's send path, immediately after the bytes that
// precede the switch.
func NewCompress(start, stop func()) *Compress {
	c := &Compress{
		Option: Option{code: OptCompress2, local: true},
		start:  start,
		stop:   stop,
	}
	c.onSettle = c.settle
	return c
}

func (c *Compress) settle() []Reply {
	switch {
	case c.Active() && !c.started:
		c.started = true
		return []Reply{{
			El:    Subnegotiation{Option: OptCompress2},
			After: c.start,
		}}
	case !c.Active() && c.started:
		// the WONT ack travels compressed; stop then finishes the stream
		c.started = false
		return []Reply{{After: c.stop}}
	}
	return nil
}
