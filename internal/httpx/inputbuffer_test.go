package httpx

import (
	"bytes"
	"io"
	"testing"

	"github.com/andycostintoma/bioengine/internal/chunk"
)

// fixedSocket hands back the bytes of raw on successive Reads, then EOF.
type fixedSocket struct {
	data []byte
	pos  int
}

func (s *fixedSocket) Read(p []byte) (int, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += n
	return n, nil
}

func newFilledBuffer(t *testing.T, raw string) (*InputBuffer, *Request) {
	t.Helper()
	ib := NewInputBuffer(DefaultParseBufferSize, false, HeaderLimits{})
	ib.Reset(&fixedSocket{data: []byte(raw)})
	req := NewRequest()
	if err := ib.ParseRequestLine(req); err != nil {
		t.Fatalf("ParseRequestLine: %v", err)
	}
	if err := ib.ParseHeaders(req); err != nil {
		t.Fatalf("ParseHeaders: %v", err)
	}
	return ib, req
}

func TestParseRequestLineBasic(t *testing.T) {
	_, req := newFilledBuffer(t, "GET /index.html?x=1 HTTP/1.1\r\nHost: example.com\r\n\r\n")

	if got := req.MethodString(); got != "GET" {
		t.Fatalf("method = %q", got)
	}
	if got := req.RequestURI.String(); got != "/index.html" {
		t.Fatalf("request-uri = %q", got)
	}
	if got := req.QueryString.String(); got != "x=1" {
		t.Fatalf("query = %q", got)
	}
	if req.ProtoMajor != 1 || req.ProtoMinor != 1 {
		t.Fatalf("proto = %d.%d", req.ProtoMajor, req.ProtoMinor)
	}
	if v, ok := req.Headers.Get("host"); !ok || v != "example.com" {
		t.Fatalf("host header = %q, ok=%v", v, ok)
	}
}

func TestParseRequestLineToleratesLeadingCRLF(t *testing.T) {
	_, req := newFilledBuffer(t, "\r\n\r\nPOST /a HTTP/1.1\r\n\r\n")
	if got := req.MethodString(); got != "POST" {
		t.Fatalf("method = %q", got)
	}
}

func TestParseRequestLineNoQueryString(t *testing.T) {
	_, req := newFilledBuffer(t, "GET / HTTP/1.0\r\n\r\n")
	if req.QueryString.Len() != 0 {
		t.Fatalf("expected empty query string, got %q", req.QueryString.String())
	}
	if req.ProtoMajor != 1 || req.ProtoMinor != 0 {
		t.Fatalf("proto = %d.%d", req.ProtoMajor, req.ProtoMinor)
	}
}

func TestParseRequestLineInvalidMethod(t *testing.T) {
	ib := NewInputBuffer(DefaultParseBufferSize, false, HeaderLimits{})
	ib.Reset(&fixedSocket{data: []byte("GE@T / HTTP/1.1\r\n\r\n")})
	req := NewRequest()
	if err := ib.ParseRequestLine(req); err != ErrInvalidMethod {
		t.Fatalf("expected ErrInvalidMethod, got %v", err)
	}
}

func TestParseHeadersMultipleAndCaseFolding(t *testing.T) {
	_, req := newFilledBuffer(t,
		"GET / HTTP/1.1\r\nHOST: example.com\r\nX-Custom:  value  \r\nAccept: */*\r\n\r\n")

	if v, ok := req.Headers.Get("host"); !ok || v != "example.com" {
		t.Fatalf("host = %q ok=%v", v, ok)
	}
	if v, ok := req.Headers.Get("x-custom"); !ok || v != "value" {
		t.Fatalf("x-custom = %q ok=%v", v, ok)
	}
	if v, ok := req.Headers.Get("accept"); !ok || v != "*/*" {
		t.Fatalf("accept = %q ok=%v", v, ok)
	}
}

func TestParseHeadersObsoleteLineFolding(t *testing.T) {
	_, req := newFilledBuffer(t,
		"GET / HTTP/1.1\r\nX-Long: part1\r\n part2\r\n\r\n")

	if v, ok := req.Headers.Get("x-long"); !ok || v != "part1 part2" {
		t.Fatalf("x-long = %q ok=%v", v, ok)
	}
}

func TestInputBufferDoReadBoundedByMax(t *testing.T) {
	ib := NewInputBuffer(DefaultParseBufferSize, false, HeaderLimits{})
	ib.Reset(&fixedSocket{data: []byte("hello world, pipelined next")})

	var c chunk.ByteChunk
	n, err := ib.DoRead(&c, 5)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 || !bytes.Equal(c.Bytes(), []byte("hello")) {
		t.Fatalf("n=%d bytes=%q", n, c.Bytes())
	}

	var c2 chunk.ByteChunk
	n2, err := ib.DoRead(&c2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if string(c2.Bytes()) != " world, pipelined next" {
		t.Fatalf("remaining bytes wrong: %q (n=%d)", c2.Bytes(), n2)
	}
}

func TestParseHeadersRejectsControlCharInValue(t *testing.T) {
	ib := NewInputBuffer(DefaultParseBufferSize, false, HeaderLimits{})
	ib.Reset(&fixedSocket{data: []byte("GET / HTTP/1.1\r\nX-Bad: ok\x07bell\r\n\r\n")})
	req := NewRequest()
	if err := ib.ParseRequestLine(req); err != nil {
		t.Fatalf("ParseRequestLine: %v", err)
	}
	if err := ib.ParseHeaders(req); err != ErrInvalidValue {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
}

func TestParseHeadersEnforcesMaxFields(t *testing.T) {
	ib := NewInputBuffer(DefaultParseBufferSize, false, HeaderLimits{MaxFields: 2})
	ib.Reset(&fixedSocket{data: []byte("GET / HTTP/1.1\r\nA: 1\r\nB: 2\r\nC: 3\r\n\r\n")})
	req := NewRequest()
	if err := ib.ParseRequestLine(req); err != nil {
		t.Fatalf("ParseRequestLine: %v", err)
	}
	if err := ib.ParseHeaders(req); err != ErrRequestHeaderTooLarge {
		t.Fatalf("expected ErrRequestHeaderTooLarge, got %v", err)
	}
}

func TestInputBufferReadByte(t *testing.T) {
	ib := NewInputBuffer(DefaultParseBufferSize, false, HeaderLimits{})
	ib.Reset(&fixedSocket{data: []byte("abc")})

	for _, want := range []byte("abc") {
		got, err := ib.ReadByte()
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("got %q want %q", got, want)
		}
	}
	if _, err := ib.ReadByte(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}
