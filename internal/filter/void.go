package filter

import (
	"io"

	"github.com/andycostintoma/bioengine/internal/chunk"
)

// VoidInputFilter always reports end-of-stream. The processor installs it
// for a request that declares neither a chunked Transfer-Encoding nor a
// positive Content-Length, i.e. one that carries no body.
type VoidInputFilter struct{}

func NewVoidInputFilter() *VoidInputFilter { return &VoidInputFilter{} }

func (f *VoidInputFilter) SetReader(ByteReader) {}

func (f *VoidInputFilter) DoRead(*chunk.ByteChunk, int) (int, error) { return 0, io.EOF }

func (f *VoidInputFilter) End() error { return nil }

func (f *VoidInputFilter) Recycle() {}

// VoidOutputFilter rejects any body bytes. Installed for 204, 205, 304 and
// any 1xx status per the transfer-encoding selection table (spec §4.C).
type VoidOutputFilter struct{}

func NewVoidOutputFilter() *VoidOutputFilter { return &VoidOutputFilter{} }

func (f *VoidOutputFilter) SetWriter(ByteWriter) {}

func (f *VoidOutputFilter) DoWrite(c *chunk.ByteChunk) (int, error) {
	if c.Len() == 0 {
		return 0, nil
	}
	return 0, ErrBodyNotPermitted
}

func (f *VoidOutputFilter) End() error { return nil }

func (f *VoidOutputFilter) Recycle() {}
