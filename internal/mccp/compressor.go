// Package mccp implements the deflate framing used by the MCCP2 telnet
// option (COMPRESS2): a zlib stream that begins mid-connection, is flushed
// after every write so the peer can decode without delay, and may end
// mid-connection, handing the byte stream back to plain transmission.
package mccp

import (
	"bytes"
	"compress/zlib"
)

// Compressor deflates outbound bytes once compression has been negotiated.
// Until Begin is called it passes writes through untouched. Callers must
// serialize use; a connection's write lock covers it.
type Compressor struct {
	active bool
	buf    bytes.Buffer
	zw     *zlib.Writer
}

func NewCompressor() *Compressor {
	return &Compressor{}
}

// Active reports whether a deflate stream is open.
func (c *Compressor) Active() bool {
	return c.active
}

// Begin opens a deflate stream. Subsequent Compress calls return deflated
// bytes.
func (c *Compressor) Begin() {
	if c.active {
		return
	}
	if c.zw == nil {
		c.zw = zlib.NewWriter(&c.buf)
	} else {
		c.zw.Reset(&c.buf)
	}
	c.active = true
}

// Compress transforms p for the wire. Each call ends with a sync flush so
// the peer can inflate everything written so far without waiting for more
// input. When no stream is open, p is returned as is.
func (c *Compressor) Compress(p []byte) []byte {
	if !c.active {
		return p
	}
	c.zw.Write(p)
	c.zw.Flush()
	out := append([]byte(nil), c.buf.Bytes()...)
	c.buf.Reset()
	return out
}

// End terminates the open deflate stream and returns its trailing bytes,
// which must still reach the peer. Afterwards the compressor passes writes
// through again; Begin may reopen it.
func (c *Compressor) End() []byte {
	if !c.active {
		return nil
	}
	c.active = false
	c.zw.Close()
	out := append([]byte(nil), c.buf.Bytes()...)
	c.buf.Reset()
	return out
}
