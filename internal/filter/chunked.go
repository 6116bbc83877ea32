package filter

import (
	"io"
	"strconv"

	"github.com/andycostintoma/bioengine/internal/chunk"
)

type chunkReadState int

const (
	chunkStateHeader chunkReadState = iota
	chunkStateData
	chunkStateTrailer
	chunkStateDone
)

// RawByteSource is implemented by the bottom of the input stack (the input
// buffer) to let the chunked filter scan chunk-size and trailer lines one
// byte at a time without disturbing the bulk DoRead contract used for body
// data.
type RawByteSource interface {
	ReadByte() (byte, error)
}

// ChunkedInputFilter decodes an HTTP/1.1 "chunked" transfer-encoded body.
// For each chunk it reads the hex length line, then the declared number of
// body bytes, then the trailing CRLF; a zero-length chunk ends the body
// (optionally followed by trailer headers).
type ChunkedInputFilter struct {
	next   ByteReader
	src    RawByteSource
	state  chunkReadState
	remain int64
	// line accumulates the hex-length (and optional trailer) line byte by
	// byte via src.ReadByte, since the bulk DoRead contract hands back
	// whatever happens to be buffered, not a full line at a time.
	line []byte
}

func NewChunkedInputFilter() *ChunkedInputFilter { return &ChunkedInputFilter{} }

func (f *ChunkedInputFilter) SetReader(r ByteReader) {
	f.next = r
	f.src, _ = r.(RawByteSource)
}

func (f *ChunkedInputFilter) DoRead(c *chunk.ByteChunk, max int) (int, error) {
	for {
		switch f.state {
		case chunkStateDone:
			return 0, io.EOF

		case chunkStateHeader:
			size, err := f.readChunkSize()
			if err != nil {
				return 0, err
			}
			if size == 0 {
				f.state = chunkStateTrailer
				continue
			}
			f.remain = size
			f.state = chunkStateData

		case chunkStateData:
			if f.remain == 0 {
				if err := f.expectCRLF(); err != nil {
					return 0, err
				}
				f.state = chunkStateHeader
				continue
			}
			want := f.remain
			if max > 0 && int64(max) < want {
				want = int64(max)
			}
			n, err := f.next.DoRead(c, int(want))
			f.remain -= int64(n)
			if err != nil && err != io.EOF {
				return n, err
			}
			if n == 0 && err == io.EOF {
				return 0, io.ErrUnexpectedEOF
			}
			return n, nil

		case chunkStateTrailer:
			if err := f.readTrailers(); err != nil {
				return 0, err
			}
			f.state = chunkStateDone
			return 0, io.EOF

		default:
			return 0, ErrMalformedChunk
		}
	}
}

// readByte pulls a single byte from the underlying input buffer. Chunked
// encoding is always the bottom-most decoding filter, so src is populated by
// SetReader in practice.
func (f *ChunkedInputFilter) readByte() (byte, error) {
	if f.src == nil {
		return 0, ErrMalformedChunk
	}
	return f.src.ReadByte()
}

func (f *ChunkedInputFilter) readLine() ([]byte, error) {
	f.line = f.line[:0]
	for {
		b, err := f.readByte()
		if err != nil {
			return nil, err
		}
		if b == '\n' {
			if n := len(f.line); n > 0 && f.line[n-1] == '\r' {
				f.line = f.line[:n-1]
			}
			return f.line, nil
		}
		f.line = append(f.line, b)
	}
}

func (f *ChunkedInputFilter) expectCRLF() error {
	line, err := f.readLine()
	if err != nil {
		return err
	}
	if len(line) != 0 {
		return ErrMalformedChunk
	}
	return nil
}

func (f *ChunkedInputFilter) readChunkSize() (int64, error) {
	line, err := f.readLine()
	if err != nil {
		return 0, err
	}
	// Strip chunk extensions ("; name=value"); they are not used here.
	for i, b := range line {
		if b == ';' {
			line = line[:i]
			break
		}
	}
	if len(line) == 0 {
		return 0, ErrMalformedChunk
	}
	size, err := strconv.ParseInt(string(line), 16, 64)
	if err != nil || size < 0 {
		return 0, ErrMalformedChunk
	}
	return size, nil
}

func (f *ChunkedInputFilter) readTrailers() error {
	for {
		line, err := f.readLine()
		if err != nil {
			return err
		}
		if len(line) == 0 {
			return nil
		}
		// Trailer fields are parsed but not surfaced to the caller; the
		// spec marks trailers as present-but-unused here.
	}
}

func (f *ChunkedInputFilter) End() error {
	for f.state != chunkStateDone {
		var c chunk.ByteChunk
		if _, err := f.DoRead(&c, 0); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
	return nil
}

func (f *ChunkedInputFilter) Recycle() {
	f.next = nil
	f.state = chunkStateHeader
	f.remain = 0
	f.line = f.line[:0]
}

// -----------------------------------------------------------------------------
// ChunkedOutputFilter: writer side.
// -----------------------------------------------------------------------------

// ChunkedOutputFilter encodes each write as "<hex-size>\r\n<bytes>\r\n" and
// emits the terminating "0\r\n\r\n" on End.
type ChunkedOutputFilter struct {
	next ByteWriter
}

func NewChunkedOutputFilter() *ChunkedOutputFilter { return &ChunkedOutputFilter{} }

func (f *ChunkedOutputFilter) SetWriter(w ByteWriter) { f.next = w }

func (f *ChunkedOutputFilter) DoWrite(c *chunk.ByteChunk) (int, error) {
	n := c.Len()
	if n == 0 {
		return 0, nil
	}
	body := append([]byte(nil), c.Bytes()...)

	hdr := append([]byte(strconv.FormatInt(int64(n), 16)), '\r', '\n')
	var header chunk.ByteChunk
	header.SetView(hdr, 0, len(hdr))
	if _, err := f.next.DoWrite(&header); err != nil {
		return 0, err
	}

	var data chunk.ByteChunk
	data.SetView(body, 0, len(body))
	if _, err := f.next.DoWrite(&data); err != nil {
		return 0, err
	}

	var crlf chunk.ByteChunk
	crlf.SetView([]byte("\r\n"), 0, 2)
	if _, err := f.next.DoWrite(&crlf); err != nil {
		return 0, err
	}
	return n, nil
}

func (f *ChunkedOutputFilter) End() error {
	var term chunk.ByteChunk
	term.SetView([]byte("0\r\n\r\n"), 0, 5)
	_, err := f.next.DoWrite(&term)
	return err
}

func (f *ChunkedOutputFilter) Recycle() { f.next = nil }
