package filter

import (
	"io"

	"github.com/andycostintoma/bioengine/internal/chunk"
)

// ContentLengthInputFilter bounds the body read path to exactly the
// declared Content-Length, satisfying the invariant that
// bytes_read_from_body never exceeds the declared length.
type ContentLengthInputFilter struct {
	next      ByteReader
	remaining int64
}

// NewContentLengthInputFilter builds a filter bounded to length bytes.
func NewContentLengthInputFilter(length int64) *ContentLengthInputFilter {
	return &ContentLengthInputFilter{remaining: length}
}

// Reset rearms the filter for a new request on the same connection.
func (f *ContentLengthInputFilter) Reset(length int64) { f.remaining = length }

func (f *ContentLengthInputFilter) SetReader(r ByteReader) { f.next = r }

func (f *ContentLengthInputFilter) DoRead(c *chunk.ByteChunk, max int) (int, error) {
	if f.remaining <= 0 {
		return 0, io.EOF
	}

	bound := f.remaining
	if max > 0 && int64(max) < bound {
		bound = int64(max)
	}
	n, err := f.next.DoRead(c, int(bound))
	f.remaining -= int64(n)
	if err == io.EOF && f.remaining > 0 {
		return n, io.ErrUnexpectedEOF
	}
	if f.remaining == 0 && err == nil {
		err = io.EOF
	}
	return n, err
}

func (f *ContentLengthInputFilter) End() error {
	// Drain any unread declared body so the connection lands on the next
	// request boundary (pipelining).
	var discard chunk.ByteChunk
	for f.remaining > 0 {
		n, err := f.next.DoRead(&discard, int(f.remaining))
		f.remaining -= int64(n)
		if err != nil {
			break
		}
	}
	return nil
}

func (f *ContentLengthInputFilter) Recycle() {
	f.next = nil
	f.remaining = 0
}
