package mccp

import (
	"compress/zlib"
	"errors"
	"fmt"
	"io"
)

// ErrCorruptStream marks inbound bytes that are not a valid deflate
// stream. It is sticky: once returned, every later Decompress call
// returns it again.
var ErrCorruptStream = errors.New("mccp: corrupt deflate stream")

// pumpEnd carries the inflate goroutine's exit condition. rest holds the
// bytes of the current chunk that were never consumed by the deflate
// stream; after a clean stream end they belong to the plain stream that
// follows.
type pumpEnd struct {
	err  error
	rest []byte
}

// feedReader adapts chunks handed over a channel to the byte-oriented
// reader the flate machinery wants. Implementing io.ByteReader stops flate
// from wrapping the source in its own bufio.Reader, which would read past
// the end of the deflate stream and swallow bytes that belong to the plain
// stream after it.
type feedReader struct {
	feed   <-chan []byte
	hunger chan<- struct{}
	cur    []byte
}

func (r *feedReader) fill() error {
	for len(r.cur) == 0 {
		r.hunger <- struct{}{}
		buf, ok := <-r.feed
		if !ok {
			return io.EOF
		}
		r.cur = buf
	}
	return nil
}

func (r *feedReader) ReadByte() (byte, error) {
	if err := r.fill(); err != nil {
		return 0, err
	}
	b := r.cur[0]
	r.cur = r.cur[1:]
	return b, nil
}

func (r *feedReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := r.fill(); err != nil {
		return 0, err
	}
	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	return n, nil
}

// Decompressor inflates inbound bytes once a deflate stream has been
// negotiated. Until Begin is called it passes reads through untouched.
// When the stream ends cleanly mid-chunk, the remaining bytes of that
// chunk are returned as plain data and the decompressor goes idle again.
//
// The flate reader needs a blocking source, so an open stream is driven by
// a goroutine; Decompress hands it one chunk at a time and collects
// whatever that chunk inflates to before returning. Callers must
// serialize use; a connection's reader owns it.
type Decompressor struct {
	active bool
	err    error

	fr     *feedReader
	feed   chan []byte
	hunger chan struct{}
	out    chan []byte
	fin    chan pumpEnd
}

func NewDecompressor() *Decompressor {
	return &Decompressor{}
}

// Active reports whether a deflate stream is open.
func (d *Decompressor) Active() bool {
	return d.active
}

// Begin opens a deflate stream. Subsequent Decompress calls inflate their
// input until the stream ends or turns out to be corrupt.
func (d *Decompressor) Begin() {
	if d.active || d.err != nil {
		return
	}
	d.feed = make(chan []byte)
	d.hunger = make(chan struct{})
	d.out = make(chan []byte)
	d.fin = make(chan pumpEnd, 1)
	d.fr = &feedReader{feed: d.feed, hunger: d.hunger}
	d.active = true
	go d.pump()
	// the pump signals hunger before its first blocking read; consuming
	// it here parks the goroutine on the feed channel, which is the state
	// Decompress relies on.
	<-d.hunger
}

func (d *Decompressor) pump() {
	zr, err := zlib.NewReader(d.fr)
	if err != nil {
		d.fin <- pumpEnd{err: err, rest: d.fr.cur}
		return
	}
	buf := make([]byte, 4096)
	for {
		n, err := zr.Read(buf)
		if n > 0 {
			d.out <- append([]byte(nil), buf[:n]...)
		}
		if err != nil {
			d.fin <- pumpEnd{err: err, rest: d.fr.cur}
			return
		}
	}
}

// Decompress transforms a chunk read from the wire. With no stream open, p
// is returned as is. With a stream open it returns everything p inflates
// to; a chunk that only extends a partial deflate frame yields no output
// yet. A clean stream end reverts the decompressor to pass-through and
// appends the chunk's remaining plain bytes to the result. Corrupt input
// poisons the decompressor and every later call returns the same error.
func (d *Decompressor) Decompress(p []byte) ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	if !d.active {
		return p, nil
	}
	d.feed <- p
	var out []byte
	for {
		select {
		case chunk := <-d.out:
			out = append(out, chunk...)
		case <-d.hunger:
			return out, nil
		case end := <-d.fin:
			d.active = false
			if end.err == io.EOF {
				return append(out, end.rest...), nil
			}
			d.err = fmt.Errorf("%w: %v", ErrCorruptStream, end.err)
			return nil, d.err
		}
	}
}

// Close tears down the inflate goroutine if one is running. Buffered input
// is discarded. Safe to call whether or not a stream is open.
func (d *Decompressor) Close() {
	if !d.active {
		return
	}
	d.active = false
	close(d.feed)
	// the pump reads EOF off the closed feed and finishes.
	for {
		select {
		case <-d.out:
		case <-d.fin:
			return
		}
	}
}
