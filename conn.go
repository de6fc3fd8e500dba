package svnwire

import (
	"bytes"
	"fmt"
	"time"

	"github.com/svnwire/svnwire/internal/scratch"
	"github.com/svnwire/svnwire/internal/stats"
)

// BlockHandler is invoked when a write would otherwise block with
// data still queued. Installing one via WithBlockHandler switches the
// connection's writes to non-blocking with retry-through-handler; the
// handler's job is typically to drain pending reads on the same
// connection so that a peer blocked writing a reply to us (because we
// haven't read it yet) can make progress, breaking the mutual-wait
// that a naive blocking read/write pair would deadlock on. scratch is
// a buffer good for this one invocation only, released as soon as the
// handler returns.
type BlockHandler func(c *Connection, scratch *bytes.Buffer) error

// Connection is a buffered, full-duplex wrapper over a ByteTransport.
// It implements the read/write buffering, write-block cooperation,
// and capability bookkeeping a connection needs; Item and tuple
// encoding live in itemcodec.go and tuple.go as methods on Connection.
type Connection struct {
	transport ByteTransport
	opts      options

	readBuf []byte
	readPos int
	readEnd int

	writeBuf []byte
	writePos int

	capabilities map[string]struct{}
	capsSet      bool

	bytesRead    stats.Counter
	bytesWritten stats.Counter
}

var zeroDuration = 0 * time.Second

// NewConnection wraps transport in a Connection. It panics if a
// buffer-size or max-depth option is configured below the allowed
// floor; those are programmer errors, not runtime conditions.
func NewConnection(transport ByteTransport, opts ...Option) *Connection {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.readBufferSize < defaultBufferSize {
		panic(fmt.Sprintf("svnwire: read buffer size %d is below the %d-byte floor", o.readBufferSize, defaultBufferSize))
	}
	if o.writeBufferSize < defaultBufferSize {
		panic(fmt.Sprintf("svnwire: write buffer size %d is below the %d-byte floor", o.writeBufferSize, defaultBufferSize))
	}
	if o.maxDepth < defaultMaxDepth {
		panic(fmt.Sprintf("svnwire: max depth %d is below the %d floor", o.maxDepth, defaultMaxDepth))
	}
	return &Connection{
		transport: transport,
		opts:      o,
		readBuf:   make([]byte, o.readBufferSize),
		writeBuf:  make([]byte, o.writeBufferSize),
	}
}

// BytesRead returns the total bytes read from the transport so far.
func (c *Connection) BytesRead() int64 { return c.bytesRead.Load() }

// BytesWritten returns the total bytes written to the transport so far.
func (c *Connection) BytesWritten() int64 { return c.bytesWritten.Load() }

// SetCapabilities records the capability set negotiated for this
// connection. It may be called exactly once; a second call reports
// KindMalformedData, mirroring the write-once capability list a
// connection carries for its whole lifetime.
func (c *Connection) SetCapabilities(caps []string) error {
	if c.capsSet {
		return wrapError(nil, KindMalformedData, 0, "", 0, "capabilities already set for this connection")
	}
	m := make(map[string]struct{}, len(caps))
	for _, cp := range caps {
		m[cp] = struct{}{}
	}
	c.capabilities = m
	c.capsSet = true
	return nil
}

// HasCapability reports whether name is in the negotiated capability
// set. It returns false before SetCapabilities has been called.
func (c *Connection) HasCapability(name string) bool {
	_, ok := c.capabilities[name]
	return ok
}

// InputPending reports whether a read can proceed without blocking.
// If bytes are already buffered it returns true without touching the
// transport; otherwise it delegates to the transport's readiness
// check. Block handlers use this to decide whether draining is worth
// attempting this round.
func (c *Connection) InputPending() bool {
	if c.readPos < c.readEnd {
		return true
	}
	return c.transport.Pending()
}

// fillBuffer refills the read buffer from the transport, compacting
// first if it is empty. Buffered output is flushed before the
// transport is read, so a request is on the wire before the read that
// waits for its reply. It returns KindConnectionClosed on a clean
// EOF (zero bytes with no error).
func (c *Connection) fillBuffer() error {
	if c.readPos < c.readEnd {
		return nil
	}
	if err := c.flushLocked(); err != nil {
		return err
	}
	c.readPos, c.readEnd = 0, 0
	c.transport.SetTimeout(c.opts.readTimeout)
	n, err := c.transport.Recv(c.readBuf)
	if err != nil {
		return err
	}
	if n == 0 {
		return wrapError(nil, KindConnectionClosed, 0, "", 0, "connection closed by peer")
	}
	c.bytesRead.Add(int64(n))
	c.readEnd = n
	return nil
}

// ReadByte returns the next byte from the stream, blocking (subject
// to any configured read timeout) until one is available.
func (c *Connection) ReadByte() (byte, error) {
	for c.readPos >= c.readEnd {
		if err := c.fillBuffer(); err != nil {
			return 0, err
		}
	}
	b := c.readBuf[c.readPos]
	c.readPos++
	return b, nil
}

// unreadByte pushes the most recently read byte back onto the
// stream. It is only valid to call immediately after a ReadByte that
// has not been followed by a buffer refill.
func (c *Connection) unreadByte() {
	c.readPos--
}

// ReadByteSkipWhitespace returns the next non-whitespace byte,
// discarding any run of spaces, tabs, newlines, or carriage returns
// ahead of it, the "ws* item ws*" framing expected between items.
func (c *Connection) ReadByteSkipWhitespace() (byte, error) {
	for {
		b, err := c.ReadByte()
		if err != nil {
			return 0, err
		}
		if !isWhitespace(b) {
			return b, nil
		}
	}
}

func isWhitespace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// Read fills buf completely from the stream, blocking as needed. For
// requests at least as large as the internal read buffer it reads
// directly from the transport to avoid an extra copy, the same
// optimization the reference buffered reader applies to long string
// payloads.
func (c *Connection) Read(buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		if c.readPos < c.readEnd {
			n := copy(buf[total:], c.readBuf[c.readPos:c.readEnd])
			c.readPos += n
			total += n
			continue
		}
		remaining := buf[total:]
		if len(remaining) >= len(c.readBuf) {
			c.transport.SetTimeout(c.opts.readTimeout)
			n, err := c.transport.Recv(remaining)
			if err != nil {
				return total, err
			}
			if n == 0 {
				return total, wrapError(nil, KindConnectionClosed, 0, "", 0, "connection closed by peer")
			}
			c.bytesRead.Add(int64(n))
			total += n
			continue
		}
		if err := c.fillBuffer(); err != nil {
			return total, err
		}
	}
	return total, nil
}

// SkipLeadingGarbage discards bytes up to the next '(' followed by
// whitespace (the opening of the greeting list every session begins
// with), bounded by maxBytes. It exists for tunneled transports,
// where an external login program may write a banner to the same
// stream before the real protocol starts; banner text is the
// transport's problem, not the codec's, but something has to skip
// it. Requiring whitespace after the '(' keeps a stray parenthesis
// inside ordinary banner prose from being mistaken for the protocol
// start. maxBytes is clamped to the read buffer size minus one, the
// same bound the reference scan buffer enforces.
func (c *Connection) SkipLeadingGarbage(maxBytes int) error {
	limit := len(c.readBuf) - 1
	if maxBytes <= 0 || maxBytes > limit {
		maxBytes = limit
	}
	for i := 0; i < maxBytes; i++ {
		b, err := c.ReadByte()
		if err != nil {
			return err
		}
		if b != '(' {
			continue
		}
		if c.readPos >= c.readEnd {
			// The '(' was the last buffered byte. Keep it at the front
			// of the buffer and refill after it, so it can still be
			// unread below.
			if err := c.flushLocked(); err != nil {
				return err
			}
			c.readBuf[0] = '('
			c.transport.SetTimeout(c.opts.readTimeout)
			n, err := c.transport.Recv(c.readBuf[1:])
			if err != nil {
				return err
			}
			if n == 0 {
				return wrapError(nil, KindConnectionClosed, 0, "", 0, "connection closed by peer")
			}
			c.bytesRead.Add(int64(n))
			c.readPos, c.readEnd = 1, 1+n
		}
		if isWhitespace(c.readBuf[c.readPos]) {
			c.unreadByte()
			return nil
		}
	}
	return wrapError(nil, KindMalformedData, 0, "", 0, "no protocol greeting found within %d bytes", maxBytes)
}

// flushLocked drains the write buffer to the transport. On a
// zero-byte, no-error write it invokes the configured block handler,
// if any, clearing the buffered watermark first so that any writes
// the handler itself issues (e.g. a reply it needs to send while
// draining reads) start from an apparently empty buffer rather than
// recursing into the bytes this call is still trying to send.
func (c *Connection) flushLocked() error {
	for c.writePos > 0 {
		if c.opts.blockHandler != nil {
			z := zeroDuration
			c.transport.SetTimeout(&z)
		} else {
			c.transport.SetTimeout(c.opts.writeTimeout)
		}
		n, err := c.transport.Send(c.writeBuf[:c.writePos])
		if err != nil {
			return err
		}
		if n == 0 {
			if c.opts.blockHandler == nil {
				return wrapError(nil, KindIO, 0, "", 0, "write blocked with no block handler installed")
			}
			pending := c.writePos
			c.writePos = 0
			buf := scratch.Get()
			err = c.opts.blockHandler(c, buf)
			scratch.Put(buf)
			if err != nil {
				return err
			}
			c.writePos = pending
			continue
		}
		c.bytesWritten.Add(int64(n))
		if n < c.writePos {
			copy(c.writeBuf, c.writeBuf[n:c.writePos])
		}
		c.writePos -= n
	}
	return nil
}

// writeBytes appends b to the write buffer, flushing whenever the
// buffer fills.
func (c *Connection) writeBytes(b []byte) error {
	for len(b) > 0 {
		n := copy(c.writeBuf[c.writePos:], b)
		c.writePos += n
		b = b[n:]
		if c.writePos == len(c.writeBuf) {
			if err := c.flushLocked(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush pushes any buffered output to the transport. Output is also
// flushed implicitly when the write buffer fills and before every
// refill of the read buffer. A Read at least as large as the read
// buffer that finds the buffer empty reads the transport directly and
// does not flush first.
func (c *Connection) Flush() error {
	return c.flushLocked()
}
