// Package filter implements the pluggable transfer/content-encoding filter
// chain (spec component D): identity, chunked, void and content-length input
// filters, and identity/chunked/gzip output filters, each sitting above a
// raw byte source or sink and exposing the same DoRead/DoWrite/End contract.
package filter

import (
	"errors"

	"github.com/andycostintoma/bioengine/internal/chunk"
)

// ErrMalformedChunk is returned by the chunked input filter on a bad length line or missing CRLF.
var ErrMalformedChunk = errors.New("filter: malformed chunk")

// ErrBodyNotPermitted is returned by the void output filter if the caller attempts to write a body.
var ErrBodyNotPermitted = errors.New("filter: body not permitted for this status")

// ErrContentLengthExceeded names a content-length overrun. No filter in this
// package returns it: ContentLengthInputFilter bounds every read to the
// declared length instead.
var ErrContentLengthExceeded = errors.New("filter: content-length exceeded")

// ByteReader is the bottom of an input filter stack: the raw socket/input-buffer read primitive.
//
// max bounds how many bytes the call may expose and consume; max <= 0 means
// "however much is currently buffered". Filters that must not overrun a
// logical boundary (content-length, one chunk's declared size) pass their
// own remaining count as max, so any surplus the socket happened to read
// stays buffered for the next caller instead of being silently dropped —
// this is what keeps pipelined requests intact.
type ByteReader interface {
	DoRead(c *chunk.ByteChunk, max int) (int, error)
}

// ByteWriter is the bottom of an output filter stack: the raw header/socket-buffer write primitive.
type ByteWriter interface {
	DoWrite(c *chunk.ByteChunk) (int, error)
}

// InputFilter decodes a transfer encoding on the read path. Filters are
// allocated once per connection and recycled; SetReader wires it to the
// filter (or raw buffer) immediately below it in the stack.
type InputFilter interface {
	ByteReader
	SetReader(r ByteReader)
	// End drains any remaining input so the connection lands on the next
	// request boundary, crucial for pipelining.
	End() error
	Recycle()
}

// OutputFilter encodes a transfer encoding on the write path.
type OutputFilter interface {
	ByteWriter
	SetWriter(w ByteWriter)
	// End writes any trailer bytes (e.g. the terminating chunk).
	End() error
	Recycle()
}
