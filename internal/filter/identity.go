package filter

import "github.com/andycostintoma/bioengine/internal/chunk"

// IdentityInputFilter passes bytes straight through from the underlying
// reader, with no length bound of its own. The processor does not select
// it: a request with no Transfer-Encoding and no declared length gets the
// void filter.
type IdentityInputFilter struct {
	next ByteReader
}

func NewIdentityInputFilter() *IdentityInputFilter { return &IdentityInputFilter{} }

func (f *IdentityInputFilter) SetReader(r ByteReader) { f.next = r }

func (f *IdentityInputFilter) DoRead(c *chunk.ByteChunk, max int) (int, error) {
	return f.next.DoRead(c, max)
}

func (f *IdentityInputFilter) End() error { return nil }

func (f *IdentityInputFilter) Recycle() { f.next = nil }

// IdentityOutputFilter passes bytes straight through to the underlying
// writer. Used whenever an explicit Content-Length governs framing.
type IdentityOutputFilter struct {
	next ByteWriter
}

func NewIdentityOutputFilter() *IdentityOutputFilter { return &IdentityOutputFilter{} }

func (f *IdentityOutputFilter) SetWriter(w ByteWriter) { f.next = w }

func (f *IdentityOutputFilter) DoWrite(c *chunk.ByteChunk) (int, error) {
	return f.next.DoWrite(c)
}

func (f *IdentityOutputFilter) End() error { return nil }

func (f *IdentityOutputFilter) Recycle() { f.next = nil }
