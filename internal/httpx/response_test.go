package httpx

import (
	"bytes"
	"compress/gzip"
	"io"
	"strconv"
	"strings"
	"testing"
)

func TestOutputBufferFixedLength(t *testing.T) {
	var buf bytes.Buffer
	resp := NewResponse()
	resp.ContentLength = 11

	ob := NewOutputBuffer(&buf, 0)
	ob.Reset(&buf, resp)

	if _, err := ob.Write([]byte("hello world")); err != nil {
		t.Fatal(err)
	}
	if err := ob.Close(); err != nil {
		t.Fatal(err)
	}

	got := buf.String()
	if !strings.HasPrefix(got, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("bad status line: %q", got)
	}
	if !strings.Contains(got, "Content-Length: 11\r\n") {
		t.Fatalf("missing Content-Length header in:\n%s", got)
	}
	if !strings.HasSuffix(got, "\r\n\r\nhello world") {
		t.Fatalf("body missing or malformed:\n%s", got)
	}
}

func TestOutputBufferChunkedWhenLengthUnknown(t *testing.T) {
	var buf bytes.Buffer
	resp := NewResponse()

	// Shrink the response buffer to the size of the first write so that
	// write spills and commits the response, forcing chunked since the
	// total length is still unknown.
	ob := NewOutputBuffer(&buf, 0)
	ob.Reset(&buf, resp)
	ob.respBufCap = 4

	if _, err := ob.Write([]byte("Wiki")); err != nil {
		t.Fatal(err)
	}
	if _, err := ob.Write([]byte("pedia")); err != nil {
		t.Fatal(err)
	}
	if err := ob.Close(); err != nil {
		t.Fatal(err)
	}

	want := "" +
		"HTTP/1.1 200 OK\r\n" +
		"Transfer-Encoding: chunked\r\n" +
		"\r\n" +
		"4\r\nWiki\r\n" +
		"5\r\npedia\r\n" +
		"0\r\n\r\n"
	if buf.String() != want {
		t.Fatalf("got:\n%q\nwant:\n%q", buf.String(), want)
	}
}

func TestOutputBufferCoalescesAndAutoComputesLength(t *testing.T) {
	var buf bytes.Buffer
	resp := NewResponse()

	// A body well under the response buffer's capacity never forces an early
	// commit, so Close can compute an exact Content-Length and pick
	// identity framing even though the handler never set one.
	ob := NewOutputBuffer(&buf, 4096)
	ob.Reset(&buf, resp)

	if _, err := ob.Write([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	if _, err := ob.Write([]byte("def")); err != nil {
		t.Fatal(err)
	}
	if err := ob.Close(); err != nil {
		t.Fatal(err)
	}

	got := buf.String()
	if strings.Contains(got, "Transfer-Encoding") {
		t.Fatalf("expected identity framing, got chunked:\n%s", got)
	}
	if !strings.Contains(got, "Content-Length: 6\r\n") {
		t.Fatalf("expected auto-computed Content-Length: 6, got:\n%s", got)
	}
	if !strings.HasSuffix(got, "\r\n\r\nabcdef") {
		t.Fatalf("body missing or malformed:\n%s", got)
	}
}

func TestOutputBufferOverflowsCoalesceToChunked(t *testing.T) {
	var buf bytes.Buffer
	resp := NewResponse()

	ob := NewOutputBuffer(&buf, 600)
	ob.Reset(&buf, resp)

	// 10000 bytes in total overflow the DefaultResponseBufferSize (8192)
	// response buffer.
	first := bytes.Repeat([]byte("a"), 5000)
	second := bytes.Repeat([]byte("b"), 5000)
	if _, err := ob.Write(first); err != nil {
		t.Fatal(err)
	}
	if _, err := ob.Write(second); err != nil {
		t.Fatal(err)
	}
	if err := ob.Close(); err != nil {
		t.Fatal(err)
	}

	got := buf.String()
	if !strings.Contains(got, "Transfer-Encoding: chunked\r\n") {
		t.Fatalf("expected chunked framing after overflow, got:\n%s", got)
	}
	if !strings.Contains(got, strings.Repeat("a", 500)) || !strings.Contains(got, strings.Repeat("b", 500)) {
		t.Fatalf("body bytes missing after overflow:\n%s", got)
	}
}

func TestOutputBufferNoBodyStatus(t *testing.T) {
	var buf bytes.Buffer
	resp := NewResponse()
	resp.StatusCode = 204
	resp.StatusMessage = "No Content"

	ob := NewOutputBuffer(&buf, 0)
	ob.Reset(&buf, resp)

	if _, err := ob.Write(nil); err != nil {
		t.Fatal(err)
	}
	if err := ob.Close(); err != nil {
		t.Fatal(err)
	}

	got := buf.String()
	if !strings.HasPrefix(got, "HTTP/1.1 204 No Content\r\n") {
		t.Fatalf("bad status line: %q", got)
	}
	if !strings.HasSuffix(got, "\r\n\r\n") {
		t.Fatalf("expected no body, got:\n%q", got)
	}
}

func TestOutputBufferHeadSuppressesBody(t *testing.T) {
	var buf bytes.Buffer
	resp := NewResponse()

	// A handler answering a HEAD request still writes the body it would
	// have sent to a GET, relying on the engine to suppress it.
	ob := NewOutputBuffer(&buf, 4096)
	ob.Reset(&buf, resp)
	ob.SetHeadMethod(true)

	if _, err := ob.Write([]byte("abcdef")); err != nil {
		t.Fatal(err)
	}
	if err := ob.Close(); err != nil {
		t.Fatal(err)
	}

	got := buf.String()
	if strings.Contains(got, "abcdef") {
		t.Fatalf("expected HEAD response body to be suppressed, got:\n%q", got)
	}
	if strings.Contains(got, "Content-Length") {
		t.Fatalf("expected no auto-computed Content-Length for HEAD, got:\n%q", got)
	}
	if !strings.HasSuffix(got, "\r\n\r\n") {
		t.Fatalf("expected bare header terminator, got:\n%q", got)
	}
}

func TestOutputBufferGzipsWhenAccepted(t *testing.T) {
	var buf bytes.Buffer
	resp := NewResponse()
	resp.ContentType = "text/plain"

	ob := NewOutputBuffer(&buf, 0)
	ob.Reset(&buf, resp)
	ob.SetGzipAllowed(true)

	body := strings.Repeat("hello world ", 40)
	if _, err := ob.Write([]byte(body)); err != nil {
		t.Fatal(err)
	}
	if err := ob.Close(); err != nil {
		t.Fatal(err)
	}

	raw := buf.Bytes()
	headerEnd := bytes.Index(raw, []byte("\r\n\r\n"))
	if headerEnd < 0 {
		t.Fatalf("missing header terminator:\n%q", raw)
	}
	// Keep the last header line's CRLF: header order follows map iteration.
	header := string(raw[:headerEnd+2])
	if !strings.Contains(header, "Content-Encoding: gzip\r\n") {
		t.Fatalf("missing Content-Encoding header:\n%s", header)
	}
	if !strings.Contains(header, "Transfer-Encoding: chunked\r\n") {
		t.Fatalf("expected chunked framing under gzip, got:\n%s", header)
	}
	if strings.Contains(header, "Content-Length") {
		t.Fatalf("gzip framing must not carry Content-Length:\n%s", header)
	}

	// Dechunk the body before ungzipping it.
	var dechunked bytes.Buffer
	rest := raw[headerEnd+4:]
	for {
		lineEnd := bytes.Index(rest, []byte("\r\n"))
		if lineEnd < 0 {
			t.Fatalf("malformed chunk stream:\n%q", rest)
		}
		sizeLine := string(rest[:lineEnd])
		rest = rest[lineEnd+2:]
		size64, err := strconv.ParseInt(sizeLine, 16, 32)
		if err != nil {
			t.Fatalf("bad chunk size %q: %v", sizeLine, err)
		}
		size := int(size64)
		if size == 0 {
			break
		}
		dechunked.Write(rest[:size])
		rest = rest[size+2:]
	}

	gz, err := gzip.NewReader(&dechunked)
	if err != nil {
		t.Fatalf("response body is not valid gzip: %v", err)
	}
	got, err := io.ReadAll(gz)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != body {
		t.Fatalf("gzip round-trip mismatch: got %q want %q", got, body)
	}
}

func TestOutputBufferHTTP10WithoutLengthClosesConnection(t *testing.T) {
	var buf bytes.Buffer
	resp := NewResponse()
	resp.ProtoMajor, resp.ProtoMinor = 1, 0

	// The write fills the shrunken response buffer exactly, so it commits
	// before the total length is known.
	ob := NewOutputBuffer(&buf, 0)
	ob.Reset(&buf, resp)
	ob.respBufCap = 3

	if _, err := ob.Write([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	if err := ob.Close(); err != nil {
		t.Fatal(err)
	}

	got := buf.String()
	if !strings.Contains(got, "Connection: close\r\n") {
		t.Fatalf("expected forced Connection: close, got:\n%s", got)
	}
	if resp.KeepAlive {
		t.Fatal("expected KeepAlive to be forced false")
	}
	if !strings.HasSuffix(got, "\r\n\r\nabc") {
		t.Fatalf("body missing:\n%s", got)
	}
}
