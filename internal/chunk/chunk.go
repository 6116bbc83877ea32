// Package chunk implements the byte-oriented buffer abstraction the rest of
// bioengine is built on: a windowed view over a byte array that can grow and
// spill itself to an output channel without ever promoting bytes to a
// string.
package chunk

import (
	"errors"

	"github.com/valyala/bytebufferpool"
)

// Sentinel errors. Kept as values, not types, to match the rest of the
// codebase's error-handling style.
var ErrBufferOverflow = errors.New("chunk: buffer overflow, no sink set")

// maxLimit is the implementation cap used when a chunk's limit is -1
// (unbounded). Mirrors the "INT_MAX - 8" ceiling called out in the spec.
const maxLimit = 1<<31 - 9

// OutputChannel drains bytes out of a chunk when it has no more room. The
// output buffer's response buffer (httpx.OutputBuffer) is the production
// caller: once a response body outgrows its buffer, FlushChunk commits the
// response and streams straight to the transfer-encoding filter.
type OutputChannel interface {
	FlushChunk(c *ByteChunk, p []byte) (n int, err error)
}

// Mode distinguishes a non-owning view over foreign bytes from a chunk that
// owns (and may grow or return to the pool) its backing array.
type Mode int

const (
	// ModeView references external bytes; it never grows.
	ModeView Mode = iota
	// ModeOwned may grow (up to limit) and is recycled through bytebufferpool.
	ModeOwned
)

// ByteChunk is a windowed view over a byte array: 0 <= start <= end <= len(buf) <= limit.
type ByteChunk struct {
	buf   []byte
	start int
	end   int
	limit int // -1 means unbounded up to maxLimit

	mode Mode
	out  OutputChannel

	pooled *bytebufferpool.ByteBuffer
}

// NewOwned returns an empty owned chunk leased from the shared pool, capped at limit (-1 = unbounded).
func NewOwned(limit int) *ByteChunk {
	bb := bytebufferpool.Get()
	return &ByteChunk{
		buf:   bb.B[:0],
		limit: limit,
		mode:  ModeOwned,
		pooled: bb,
	}
}

// NewView wraps buf[off:off+length] as a non-owning view.
func NewView(buf []byte, off, length int) *ByteChunk {
	c := &ByteChunk{mode: ModeView}
	c.SetView(buf, off, length)
	return c
}

// SetView re-points a view chunk at buf[off:off+length] without copying.
func (c *ByteChunk) SetView(buf []byte, off, length int) {
	c.buf = buf
	c.start = off
	c.end = off + length
	c.limit = len(buf)
}

func (c *ByteChunk) effectiveLimit() int {
	if c.limit < 0 {
		return maxLimit
	}
	return c.limit
}

// SetOutputChannel installs the sink used to drain a full chunk.
func (c *ByteChunk) SetOutputChannel(out OutputChannel) { c.out = out }

// Len returns the number of unread/unflushed bytes currently held.
func (c *ByteChunk) Len() int { return c.end - c.start }

// Bytes returns the chunk's current window. The caller must not retain it past the next mutation.
func (c *ByteChunk) Bytes() []byte { return c.buf[c.start:c.end] }

// Start and End expose the raw cursors for callers that need to re-base views (e.g. request parsing).
func (c *ByteChunk) Start() int { return c.start }
func (c *ByteChunk) End() int   { return c.end }

// Buf exposes the backing array. Callers must treat it as read-only outside this package.
func (c *ByteChunk) Buf() []byte { return c.buf }

// Append copies src into the chunk, growing or flushing as needed.
//
// Algorithm (spec §4.A):
//  1. If the chunk is empty, src exactly fills the limit, and an output
//     channel is set, write straight through to the channel.
//  2. Otherwise ensure capacity up to min(desired, limit), growing by
//     doubling (new = max(2*len, len+count)) but never past limit.
//  3. If count <= limit-end, copy in and return.
//  4. Otherwise fill to limit, flush, and repeat; if the remainder still
//     exceeds one buffer, stream directly to the sink.
func (c *ByteChunk) Append(src []byte) error {
	count := len(src)
	if count == 0 {
		return nil
	}
	limit := c.effectiveLimit()

	// (1) direct write-through.
	if c.end == c.start && count == limit && c.out != nil {
		_, err := c.out.FlushChunk(c, src)
		return err
	}

	if err := c.ensureCapacity(count, limit); err != nil {
		return err
	}

	for count > 0 {
		space := limit - c.end
		if space <= 0 {
			if err := c.Flush(); err != nil {
				return err
			}
			space = limit - c.end
			if space <= 0 {
				return ErrBufferOverflow
			}
		}

		n := count
		if n > space {
			n = space
		}
		if c.end+n > len(c.buf) {
			// capacity couldn't be grown far enough (limit-bound); shrink to what's available.
			n = len(c.buf) - c.end
			if n <= 0 {
				if err := c.Flush(); err != nil {
					return err
				}
				continue
			}
		}
		copy(c.buf[c.end:c.end+n], src[:n])
		c.end += n
		src = src[n:]
		count -= n

		if count == 0 {
			return nil
		}

		// Remainder still pending: flush what we have.
		if err := c.Flush(); err != nil {
			return err
		}
		// If what's left still exceeds one full buffer, stream it directly.
		if count > limit && c.out != nil {
			_, err := c.out.FlushChunk(c, src[:count])
			return err
		}
	}
	return nil
}

func (c *ByteChunk) ensureCapacity(count, limit int) error {
	desired := c.end + count
	if desired <= len(c.buf) {
		return nil
	}
	if c.mode == ModeView {
		return ErrBufferOverflow
	}

	newCap := len(c.buf) * 2
	if newCap < desired {
		newCap = desired
	}
	if newCap > limit {
		newCap = limit
	}
	if newCap <= len(c.buf) {
		return nil // already at limit; Append's loop will flush as needed.
	}
	nb := make([]byte, newCap)
	copy(nb, c.buf[:c.end])
	c.buf = nb
	return nil
}

// Flush pushes [start:end) to the output channel and resets end=start.
func (c *ByteChunk) Flush() error {
	if c.out == nil {
		if c.end > c.start {
			return ErrBufferOverflow
		}
		return nil
	}
	start := c.start
	for c.end > c.start {
		n, err := c.out.FlushChunk(c, c.buf[c.start:c.end])
		c.start += n
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrBufferOverflow
		}
	}
	c.start = start
	c.end = start
	return nil
}

// EqualsIgnoreCaseASCII compares the chunk's window against other, ASCII case-insensitively.
func (c *ByteChunk) EqualsIgnoreCaseASCII(other []byte) bool {
	if c.end-c.start != len(other) {
		return false
	}
	for i, b := range other {
		a := c.buf[c.start+i]
		if toLowerASCII(a) != toLowerASCII(b) {
			return false
		}
	}
	return true
}

func toLowerASCII(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + 0x20
	}
	return b
}

// Recycle resets the chunk to an empty state at the request/connection
// boundary: cursors zeroed, channel pointer cleared.
func (c *ByteChunk) Recycle() {
	c.start = 0
	c.end = 0
	c.out = nil
}

// Release returns an owned chunk's backing array to the shared pool. View
// chunks are no-ops since they never own their bytes.
func (c *ByteChunk) Release() {
	if c.mode != ModeOwned || c.pooled == nil {
		return
	}
	c.pooled.B = c.buf[:0]
	bytebufferpool.Put(c.pooled)
	c.pooled = nil
	c.buf = nil
}

// String implements fmt.Stringer for debugging only; production code paths
// must never rely on this converting a view to a string.
func (c *ByteChunk) String() string { return string(c.Bytes()) }
