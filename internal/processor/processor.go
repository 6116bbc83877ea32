// Package processor drives the per-connection request/response cycle: it
// owns the state machine that walks a blocking-I/O connection through
// parsing, handler dispatch and response writing, and decides whether the
// connection is kept alive for another pipelined request or torn down.
package processor

import (
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/andycostintoma/bioengine/internal/chunk"
	"github.com/andycostintoma/bioengine/internal/filter"
	"github.com/andycostintoma/bioengine/internal/httpx"
	"github.com/andycostintoma/bioengine/internal/log"
	"github.com/andycostintoma/bioengine/internal/metrics"
)

// State names the processor's position in the per-connection state machine
// (spec §5.F). It exists for diagnostics and metrics labeling, not control
// flow — Serve's own call sequence is the actual state machine.
type State int

// headMethodBytes is compared against Request.Method's raw chunk view
// (Request.Method.EqualsIgnoreCaseASCII) so a HEAD check never materializes
// the method into a string on the hot path.
var headMethodBytes = []byte("HEAD")

const (
	StateIdle State = iota
	StateReadingLine
	StateReadingHeaders
	StateProcessing
	StateWriting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReadingLine:
		return "reading_line"
	case StateReadingHeaders:
		return "reading_headers"
	case StateProcessing:
		return "processing"
	case StateWriting:
		return "writing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handler is the application callback invoked once a request's line and
// headers are parsed. body streams whatever bytes the declared framing
// permits; w is both the status/header setter (via w.Response()) and the
// body writer — writing through w commits the response on first use.
type Handler interface {
	ServeHTTP(w *httpx.OutputBuffer, body io.Reader, req *httpx.Request)
}

type HandlerFunc func(w *httpx.OutputBuffer, body io.Reader, req *httpx.Request)

func (f HandlerFunc) ServeHTTP(w *httpx.OutputBuffer, body io.Reader, req *httpx.Request) {
	f(w, body, req)
}

// Limits bounds the per-connection lifecycle (spec §5.E/§6).
type Limits struct {
	ParseBufferSize         int
	RejectIllegalHeaderName bool
	SocketBufferBytes       int
	MaxHeaderCount          int
	ConnectionTimeout       time.Duration
	KeepAliveTimeout        time.Duration
	MaxKeepAliveRequests    int
}

// DefaultLimits mirrors config.Defaults' engine section.
func DefaultLimits() Limits {
	return Limits{
		ParseBufferSize:      httpx.DefaultParseBufferSize,
		MaxHeaderCount:       100,
		ConnectionTimeout:    20 * time.Second,
		KeepAliveTimeout:     60 * time.Second,
		MaxKeepAliveRequests: 100,
	}
}

// Processor runs the request/response cycle for a single connection,
// looping for as many pipelined/keep-alive requests as the connection and
// limits allow.
type Processor struct {
	limits  Limits
	handler Handler
	State   State
}

func New(handler Handler, limits Limits) *Processor {
	return &Processor{limits: limits, handler: handler}
}

// filterBodyReader bridges a filter.InputFilter's DoRead contract to
// io.Reader for handlers, copying each bounded view out of the parse buffer
// into the caller's slice.
type filterBodyReader struct {
	f filter.InputFilter
}

func (r *filterBodyReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	var c chunk.ByteChunk
	n, err := r.f.DoRead(&c, len(p))
	if n > 0 {
		copy(p, c.Bytes())
	}
	return n, err
}

// Serve runs the connection's request loop until the peer closes it, a
// framing error forces a teardown, or keep-alive is exhausted. A peer that
// closes an idle keep-alive connection between requests yields nil; a close
// before the connection's first request line is returned as the read error.
func (p *Processor) Serve(conn net.Conn) error {
	defer conn.Close()

	ib := httpx.NewInputBuffer(p.limits.ParseBufferSize, p.limits.RejectIllegalHeaderName, httpx.HeaderLimits{MaxFields: p.limits.MaxHeaderCount})
	ib.Reset(conn)
	ob := httpx.NewOutputBuffer(conn, p.limits.SocketBufferBytes)

	// req and resp are allocated once and recycled between pipelined/
	// keep-alive requests on this connection rather than reallocated each
	// time, in keeping with the parse buffer's own zero-copy-until-asked
	// allocation discipline.
	req := httpx.NewRequest()
	resp := httpx.NewResponse()

	maxRequests := p.limits.MaxKeepAliveRequests
	if maxRequests <= 0 {
		maxRequests = 1
	}

	for count := 0; count < maxRequests; count++ {
		p.State = StateIdle
		deadline := p.limits.KeepAliveTimeout
		if count == 0 {
			deadline = p.limits.ConnectionTimeout
		}
		if deadline > 0 {
			conn.SetReadDeadline(time.Now().Add(deadline))
		}

		if count > 0 {
			req.Recycle()
			resp.Recycle()
		}
		req.RemoteAddr = conn.RemoteAddr().String()
		req.StartTime = time.Now()

		p.State = StateReadingLine
		if err := ib.ParseRequestLine(req); err != nil {
			if count > 0 && isQuietClose(err) {
				// Idle keep-alive connection closed by the peer: not an error.
				p.State = StateClosed
				return nil
			}
			p.writeParseError(ob, conn, req, err)
			p.State = StateClosed
			return err
		}

		// A deadline firing mid-request (headers/body in flight) is always
		// an error, even on a connection's very first request.
		conn.SetReadDeadline(time.Now().Add(p.connectionOrDefault()))

		p.State = StateReadingHeaders
		if err := ib.ParseHeaders(req); err != nil {
			p.writeParseError(ob, conn, req, err)
			p.State = StateClosed
			return err
		}
		applyRequestMeta(req)

		bodyFilter := selectInputFilter(req)
		bodyFilter.SetReader(ib)

		resp.ProtoMajor, resp.ProtoMinor = req.ProtoMajor, req.ProtoMinor
		resp.KeepAlive = keepAliveRequested(req) && count+1 < maxRequests
		ob.Reset(conn, resp)
		ob.SetHeadMethod(req.Method.EqualsIgnoreCaseASCII(headMethodBytes))
		ob.SetGzipAllowed(acceptsGzip(req))

		p.State = StateProcessing
		start := time.Now()
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("panic handling %s %s: %v", req.MethodString(), req.RequestURIString(), r)
					if !resp.Committed() {
						resp.StatusCode = 500
						resp.StatusMessage = "Internal Server Error"
					}
					resp.KeepAlive = false
				}
			}()
			p.handler.ServeHTTP(ob, &filterBodyReader{f: bodyFilter}, req)
		}()
		metrics.RequestDuration.Observe(time.Since(start).Seconds())

		// Drain whatever the handler left unread so the socket lands
		// exactly on the next pipelined request's first byte.
		if err := bodyFilter.End(); err != nil {
			resp.KeepAlive = false
		}

		p.State = StateWriting
		if err := ob.Close(); err != nil {
			metrics.RequestsHandled.WithLabelValues("write_error").Inc()
			p.State = StateClosed
			return err
		}
		metrics.RequestsHandled.WithLabelValues(statusClass(resp.StatusCode)).Inc()

		ob.Recycle()
		bodyFilter.Recycle()

		if !resp.KeepAlive {
			if count+1 == maxRequests && keepAliveRequested(req) {
				metrics.KeepAliveExhausted.Inc()
			}
			p.State = StateClosed
			return nil
		}
	}

	metrics.KeepAliveExhausted.Inc()
	p.State = StateClosed
	return nil
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

func (p *Processor) connectionOrDefault() time.Duration {
	if p.limits.ConnectionTimeout > 0 {
		return p.limits.ConnectionTimeout
	}
	return 20 * time.Second
}

func isQuietClose(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

// applyRequestMeta fills derived Request fields (URL, Host, ContentLength,
// TransferChunked) once headers are available.
func applyRequestMeta(req *httpx.Request) {
	if u, err := httpx.ParseRequestURI(req.RequestURI.Bytes()); err == nil {
		req.URL = u
	}
	if host, ok := req.Headers.Get("host"); ok {
		req.Host = host
	}
	if te, ok := req.Headers.Get("transfer-encoding"); ok && strings.EqualFold(strings.TrimSpace(te), "chunked") {
		req.TransferChunked = true
	}
	if cl, ok := req.Headers.Get("content-length"); ok && !req.TransferChunked {
		if n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64); err == nil && n >= 0 {
			req.ContentLength = n
		}
	}
}

// selectInputFilter picks the request body's decoding filter: chunked takes
// priority over Content-Length per RFC 7230 §3.3.3; the void filter is used
// when neither header announces a body.
func selectInputFilter(req *httpx.Request) filter.InputFilter {
	switch {
	case req.TransferChunked:
		return filter.NewChunkedInputFilter()
	case req.ContentLength > 0:
		return filter.NewContentLengthInputFilter(req.ContentLength)
	default:
		return filter.NewVoidInputFilter()
	}
}

// acceptsGzip reports whether the request's Accept-Encoding header lists
// gzip, the only content-coding the output side knows how to apply.
func acceptsGzip(req *httpx.Request) bool {
	ae, ok := req.Headers.Get("accept-encoding")
	if !ok {
		return false
	}
	for _, part := range strings.Split(ae, ",") {
		if strings.EqualFold(strings.TrimSpace(strings.SplitN(part, ";", 2)[0]), "gzip") {
			return true
		}
	}
	return false
}

// keepAliveRequested applies HTTP/1.1's default-on, HTTP/1.0's default-off
// keep-alive policy, honoring an explicit Connection header override.
func keepAliveRequested(req *httpx.Request) bool {
	conn, ok := req.Headers.Get("connection")
	if ok {
		conn = strings.ToLower(strings.TrimSpace(conn))
		if strings.Contains(conn, "close") {
			return false
		}
		if strings.Contains(conn, "keep-alive") {
			return true
		}
	}
	return req.ProtoMajor == 1 && req.ProtoMinor >= 1
}

// writeParseError sends a best-effort 4xx response for a malformed request
// (431 for an oversized request-line/headers, 400 otherwise); the connection
// is always closed afterward regardless of whether the write itself
// succeeds.
func (p *Processor) writeParseError(ob *httpx.OutputBuffer, conn net.Conn, req *httpx.Request, err error) {
	if isQuietClose(err) {
		return
	}
	resp := httpx.NewResponse()
	if errors.Is(err, httpx.ErrRequestHeaderTooLarge) {
		resp.StatusCode = 431
		resp.StatusMessage = "Request Header Fields Too Large"
	} else {
		resp.StatusCode = 400
		resp.StatusMessage = "Bad Request"
	}
	resp.KeepAlive = false
	resp.ContentLength = 0
	ob.Reset(conn, resp)
	_ = ob.Close()
	log.Debugf("request parse error from %s: %v", req.RemoteAddr, err)
}
