package httpx

import (
	"context"
	"time"

	"github.com/andycostintoma/bioengine/internal/chunk"
)

// Request holds the parsed method, request-URI, query string and protocol
// as chunk views into the parse buffer (spec §3) — none of these are ever
// promoted to an owned string during parsing. Headers are held by
// MimeHeaders: names folded to lower-case byte-for-byte as they're scanned,
// values copied out into strings.
type Request struct {
	Method      chunk.ByteChunk
	RequestURI  chunk.ByteChunk
	QueryString chunk.ByteChunk
	Protocol    chunk.ByteChunk
	UnparsedURI chunk.ByteChunk
	ProtoMajor  int
	ProtoMinor  int

	Headers MimeHeaders

	URL             *URL
	Host            string
	ContentLength   int64 // -1 if absent
	TransferChunked bool

	Scheme     string
	RemoteAddr string
	StartTime  time.Time

	ctx context.Context
}

// NewRequest returns a Request with ContentLength defaulted to -1 (absent),
// ready for InputBuffer.ParseRequestLine/ParseHeaders to fill in.
func NewRequest() *Request {
	return &Request{ContentLength: -1}
}

// Recycle clears a request for reuse at the next request boundary: chunk
// views are reset (start=end=0), headers emptied, derived fields zeroed.
// The underlying parse-buffer array's lifetime is InputBuffer's concern, not
// the request's.
func (r *Request) Recycle() {
	r.Method.Recycle()
	r.RequestURI.Recycle()
	r.QueryString.Recycle()
	r.Protocol.Recycle()
	r.UnparsedURI.Recycle()
	r.ProtoMajor = 0
	r.ProtoMinor = 0
	r.Headers.Recycle()
	r.URL = nil
	r.Host = ""
	r.ContentLength = -1
	r.TransferChunked = false
	r.Scheme = ""
	r.RemoteAddr = ""
	r.StartTime = time.Time{}
	r.ctx = nil
}

// MethodString materializes the method view as a string. Allocates;
// hot-path comparisons should prefer Method.EqualsIgnoreCaseASCII instead.
func (r *Request) MethodString() string { return r.Method.String() }

// RequestURIString materializes the request-target view as a string.
func (r *Request) RequestURIString() string { return r.RequestURI.String() }

// ProtocolString materializes the protocol view as a string ("" for HTTP/0.9).
func (r *Request) ProtocolString() string { return r.Protocol.String() }

// Context returns the request's context, defaulting to context.Background().
func (r *Request) Context() context.Context {
	if r == nil || r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy of r with its context replaced by ctx.
func (r *Request) WithContext(ctx context.Context) *Request {
	if r == nil {
		return nil
	}
	cp := *r
	cp.ctx = ctx
	return &cp
}
