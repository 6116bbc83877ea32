package httpx

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/andycostintoma/bioengine/internal/chunk"
	"github.com/andycostintoma/bioengine/internal/filter"
)

// socketBufferThreshold is the minimum configured socket-buffer size (spec
// §4.C) above which writes to the connection are coalesced through a
// bufio.Writer instead of going straight to the socket. This is a lower,
// optional layer, off by default; it is independent of the always-on
// response buffer below.
const socketBufferThreshold = 500

// DefaultResponseBufferSize caps the always-present per-request response
// buffer (spec §4.C: "above these sits a per-request response buffer"). A
// body that fits entirely within this cap gets an exact Content-Length at
// Close without the handler ever setting one; a body that overflows it
// falls back to chunked (HTTP/1.1) or identity+close (HTTP/1.0) framing,
// same as the teacher's unbuffered commit-on-first-write behavior.
const DefaultResponseBufferSize = 8192

// responseHeaderLimits bounds the header values a handler sets on
// Response.Header the same way HeaderLimits bounds a parsed request: a
// handler that echoes request input into a header (e.g. reflecting a query
// param into a custom header) can't smuggle a CTL byte or an oversized value
// past commit.
var responseHeaderLimits = HeaderLimits{MaxValueBytes: 8192}

// rawSocketWriter adapts the connection's io.Writer to filter.ByteWriter,
// the bottom of the output filter stack.
type rawSocketWriter struct{ w io.Writer }

func (s *rawSocketWriter) DoWrite(c *chunk.ByteChunk) (int, error) {
	if c.Len() == 0 {
		return 0, nil
	}
	return s.w.Write(c.Bytes())
}

// OutputBuffer is the per-connection response writer (spec component C). It
// encodes the status line and headers exactly once (the commit policy),
// selects a transfer-encoding filter from the table below, and streams body
// writes through that filter.
//
// Transfer-encoding selection (spec §4.C):
//   - status carries no body (204, 205, 304, 1xx) -> void filter
//   - Response.ContentLength known (explicit, or computed because the
//     whole body fit in the response buffer before Close) -> identity,
//     "Content-Length: N"
//   - HTTP/1.1 and length still unknown              -> chunked,
//     "Transfer-Encoding: chunked"
//   - HTTP/1.0 and length still unknown               -> identity, with
//     keep-alive forced off since there is no other way to signal the end
//     of the body to an HTTP/1.0 peer
type OutputBuffer struct {
	sock  *rawSocketWriter
	flush func() error
	resp  *Response
	body  filter.OutputFilter

	socketBufferBytes int

	// respBuf is an owned chunk.ByteChunk acting as the response buffer
	// (spec §4.C layer 3): Write appends into it through its own
	// grow-then-spill Append algorithm, and once it would overflow
	// respBufCap, its output channel (respSink below) commits the response
	// and starts streaming straight to the body filter.
	respBuf    *chunk.ByteChunk
	respBufCap int

	headMethod  bool
	gzipAllowed bool
}

// respSink is the chunk.OutputChannel that backs the response buffer: once
// Append can no longer grow the buffer to fit, it calls FlushChunk with
// whatever needs to leave, which commits (if not already) and writes
// straight through to the chosen transfer filter.
type respSink struct{ ob *OutputBuffer }

func (s respSink) FlushChunk(_ *chunk.ByteChunk, p []byte) (int, error) {
	if !s.ob.resp.committed {
		if err := s.ob.commit(-1); err != nil {
			return 0, err
		}
	}
	return s.ob.writeThroughBody(p)
}

// NewOutputBuffer wraps w. socketBufferBytes is the configured socket-buffer
// size (spec §4.C layer 2); values at or below socketBufferThreshold leave
// writes going straight to w. The per-request response buffer (layer 3) is
// always present, independent of this setting.
func NewOutputBuffer(w io.Writer, socketBufferBytes int) *OutputBuffer {
	ob := &OutputBuffer{socketBufferBytes: socketBufferBytes, respBufCap: DefaultResponseBufferSize}
	ob.wrapWriter(w)
	return ob
}

// wrapWriter (re)installs the socket-level writer, coalescing through a
// bufio.Writer when the configured socket-buffer size clears the threshold.
func (ob *OutputBuffer) wrapWriter(w io.Writer) {
	if ob.socketBufferBytes > socketBufferThreshold {
		bw := bufio.NewWriterSize(w, ob.socketBufferBytes)
		ob.sock = &rawSocketWriter{w: bw}
		ob.flush = bw.Flush
		return
	}
	ob.sock = &rawSocketWriter{w: w}
	ob.flush = func() error { return nil }
}

// Reset re-arms the buffer for a new request/response on the same (or a
// new) connection.
func (ob *OutputBuffer) Reset(w io.Writer, resp *Response) {
	ob.wrapWriter(w)
	ob.resp = resp
	ob.body = nil
	ob.headMethod = false
	ob.gzipAllowed = false
}

// Response returns the response record backing this buffer, so a handler
// given only the OutputBuffer can still set the status line and headers
// before writing the body.
func (ob *OutputBuffer) Response() *Response { return ob.resp }

// SetHeadMethod tells Close that the request being answered is a HEAD
// request, so Close must not auto-compute Content-Length from buffered body
// bytes written by a careless handler, nor flush any such bytes to the
// socket (spec §4.C).
func (ob *OutputBuffer) SetHeadMethod(isHead bool) { ob.headMethod = isHead }

// SetGzipAllowed tells commit that the peer's Accept-Encoding advertised
// gzip support, so a compressible response may be wrapped in a
// GzipOutputFilter above whichever transfer-encoding filter is selected.
func (ob *OutputBuffer) SetGzipAllowed(allowed bool) { ob.gzipAllowed = allowed }

// compressible reports whether resp's content type is worth gzipping; a
// response that already declares its own Content-Encoding is left alone.
func compressible(resp *Response) bool {
	if resp.Header.Get("Content-Encoding") != "" {
		return false
	}
	ct := resp.ContentType
	return ct == "" ||
		strings.HasPrefix(ct, "text/") ||
		ct == "application/json" ||
		ct == "application/javascript" ||
		ct == "application/xml"
}

// gzipChain composes a GzipOutputFilter over whichever transfer-encoding
// filter was selected underneath it; both are wired to the socket at
// construction time, so SetWriter is a no-op to keep commit's single
// "ob.body.SetWriter(ob.sock)" call harmless regardless of which branch of
// the selection table ran.
type gzipChain struct {
	gz       *filter.GzipOutputFilter
	transfer filter.OutputFilter
}

func (g *gzipChain) SetWriter(filter.ByteWriter) {}

func (g *gzipChain) DoWrite(c *chunk.ByteChunk) (int, error) { return g.gz.DoWrite(c) }

func (g *gzipChain) End() error {
	if err := g.gz.End(); err != nil {
		return err
	}
	return g.transfer.End()
}

func (g *gzipChain) Recycle() {
	g.gz.Recycle()
	g.transfer.Recycle()
}

func noBody(status int) bool {
	return status == 204 || status == 205 || status == 304 || (status >= 100 && status < 200)
}

// Write streams body bytes. Before the response is committed, writes are
// staged in the always-on response buffer so that Close can compute an exact
// Content-Length for responses that never exceed it; once the buffer would
// overflow, the response commits immediately and falls back to chunked
// (HTTP/1.1) or identity+close (HTTP/1.0) framing.
func (ob *OutputBuffer) Write(p []byte) (int, error) {
	if ob.resp.committed {
		return ob.writeThroughBody(p)
	}
	if ob.respBuf == nil {
		ob.respBuf = chunk.NewOwned(ob.respBufCap)
		ob.respBuf.SetOutputChannel(respSink{ob})
	}
	if err := ob.respBuf.Append(p); err != nil {
		return 0, err
	}
	if ob.resp.committed {
		// The append spilled and committed the response; send what it left
		// in the buffer now, since later writes bypass the buffer.
		if err := ob.respBuf.Flush(); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (ob *OutputBuffer) writeThroughBody(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	var c chunk.ByteChunk
	c.SetView(p, 0, len(p))
	n, err := ob.body.DoWrite(&c)
	if err != nil {
		ob.resp.SetWriteError(err)
	}
	return n, err
}

// commit writes the status line and headers to the socket and installs the
// body filter chosen by the transfer-encoding table. knownLength >= 0 means
// the caller already knows the full body size (the buffered-to-Close path);
// -1 means it doesn't, so Content-Length can only be used if the handler
// set Response.ContentLength explicitly.
func (ob *OutputBuffer) commit(knownLength int64) error {
	if ob.resp.committed {
		return nil
	}
	resp := ob.resp
	if resp.ContentLength < 0 && knownLength >= 0 {
		resp.ContentLength = knownLength
	}

	switch {
	case noBody(resp.StatusCode):
		ob.body = filter.NewVoidOutputFilter()
	case ob.headMethod:
		// No body ever reaches the socket for HEAD, but an explicit
		// Content-Length set by the handler still describes what the
		// equivalent GET would have sent.
		if resp.ContentLength >= 0 {
			resp.Header.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
		}
		ob.body = filter.NewVoidOutputFilter()
	case ob.gzipAllowed && compressible(resp):
		// Compression changes the byte count, so any Content-Length
		// computed from the uncompressed response buffer no longer
		// applies; fall back to chunked (or identity+close on HTTP/1.0)
		// underneath the gzip layer.
		resp.Header.Del("Content-Length")
		resp.ContentLength = -1
		resp.Header.Set("Content-Encoding", "gzip")
		resp.Header.Add("Vary", "Accept-Encoding")
		var transfer filter.OutputFilter
		if resp.ProtoMajor == 1 && resp.ProtoMinor >= 1 {
			resp.Header.Set("Transfer-Encoding", "chunked")
			transfer = filter.NewChunkedOutputFilter()
		} else {
			resp.KeepAlive = false
			transfer = filter.NewIdentityOutputFilter()
		}
		transfer.SetWriter(ob.sock)
		gz := filter.NewGzipOutputFilter()
		gz.SetWriter(transfer)
		ob.body = &gzipChain{gz: gz, transfer: transfer}
	case resp.ContentLength >= 0:
		resp.Header.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
		ob.body = filter.NewIdentityOutputFilter()
	case resp.ProtoMajor == 1 && resp.ProtoMinor >= 1:
		resp.Header.Set("Transfer-Encoding", "chunked")
		ob.body = filter.NewChunkedOutputFilter()
	default:
		resp.KeepAlive = false
		ob.body = filter.NewIdentityOutputFilter()
	}
	if resp.ContentType != "" && resp.Header.Get("Content-Type") == "" {
		ct := resp.ContentType
		if resp.CharacterEncoding != "" {
			ct = ct + "; charset=" + resp.CharacterEncoding
		}
		resp.Header.Set("Content-Type", ct)
	}
	if !resp.KeepAlive {
		resp.Header.Set("Connection", "close")
	}
	ob.body.SetWriter(ob.sock)

	if err := ValidateHeader(resp.Header, responseHeaderLimits); err != nil {
		resp.SetWriteError(err)
		return err
	}

	var hdr bytes.Buffer
	proto := fmt.Sprintf("HTTP/%d.%d", resp.ProtoMajor, resp.ProtoMinor)
	msg := resp.StatusMessage
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	fmt.Fprintf(&hdr, "%s %d %s\r\n", proto, resp.StatusCode, msg)
	if err := resp.Header.Write(&hdr); err != nil {
		resp.SetWriteError(err)
		return err
	}

	var c chunk.ByteChunk
	c.SetView(hdr.Bytes(), 0, hdr.Len())
	if _, err := ob.sock.DoWrite(&c); err != nil {
		resp.SetWriteError(err)
		return err
	}
	resp.committed = true
	return nil
}

// Close commits the response if it hasn't been already (computing an exact
// Content-Length when the whole body fit in the response buffer), drains the
// body filter's End hook (the terminating chunk for chunked encoding, the
// gzip trailer for gzip, a no-op for identity/void), then flushes the
// optional socket-coalescing buffer so nothing is left stranded.
func (ob *OutputBuffer) Close() error {
	if !ob.resp.committed {
		length := int64(-1)
		if ob.headMethod {
			// The request method is HEAD: leave Content-Length as the
			// handler set it (or unset) rather than deriving it from body
			// bytes that will never reach the socket.
		} else if ob.respBuf != nil {
			length = int64(ob.respBuf.Len())
		} else {
			length = 0
		}
		if err := ob.commit(length); err != nil {
			return err
		}
		if !ob.headMethod && ob.respBuf != nil && ob.respBuf.Len() > 0 {
			if _, err := ob.writeThroughBody(ob.respBuf.Bytes()); err != nil {
				return err
			}
		}
	}
	if err := ob.body.End(); err != nil {
		return err
	}
	return ob.flush()
}

// Recycle releases the response buffer's backing array and the body filter
// for reuse at the next request boundary.
func (ob *OutputBuffer) Recycle() {
	if ob.body != nil {
		ob.body.Recycle()
	}
	ob.body = nil
	if ob.respBuf != nil {
		ob.respBuf.Release()
		ob.respBuf = nil
	}
}
