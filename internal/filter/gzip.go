package filter

import (
	"compress/gzip"

	"github.com/andycostintoma/bioengine/internal/chunk"
)

// GzipOutputFilter wraps the body in gzip content-coding. It sits above the
// transfer-encoding filter (identity or chunked), compressing before the
// bytes reach that layer.
type GzipOutputFilter struct {
	next ByteWriter
	gz   *gzip.Writer
	sink gzipSink
}

type gzipSink struct{ w ByteWriter }

func (s gzipSink) Write(p []byte) (int, error) {
	var c chunk.ByteChunk
	c.SetView(p, 0, len(p))
	n, err := s.w.DoWrite(&c)
	return n, err
}

func NewGzipOutputFilter() *GzipOutputFilter { return &GzipOutputFilter{} }

func (f *GzipOutputFilter) SetWriter(w ByteWriter) {
	f.next = w
	f.sink = gzipSink{w: w}
	f.gz = gzip.NewWriter(f.sink)
}

func (f *GzipOutputFilter) DoWrite(c *chunk.ByteChunk) (int, error) {
	if c.Len() == 0 {
		return 0, nil
	}
	return f.gz.Write(c.Bytes())
}

func (f *GzipOutputFilter) End() error {
	if f.gz == nil {
		return nil
	}
	return f.gz.Close()
}

func (f *GzipOutputFilter) Recycle() {
	f.next = nil
	f.gz = nil
}
