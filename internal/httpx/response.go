package httpx

// Response is the per-request response record (spec §4.C): status line
// fields and headers, plus the handful of derived state OutputBuffer needs
// to pick a transfer-encoding and enforce the commit-once policy.
type Response struct {
	ProtoMajor int
	ProtoMinor int

	StatusCode    int
	StatusMessage string

	Header Header

	ContentType       string
	CharacterEncoding string
	ContentLength     int64 // -1 until set explicitly or auto-calculated at Close

	KeepAlive bool

	committed bool
	writeErr  error
}

// NewResponse returns a Response defaulted to HTTP/1.1 200 OK with
// keep-alive on and no declared length.
func NewResponse() *Response {
	return &Response{
		ProtoMajor:    1,
		ProtoMinor:    1,
		StatusCode:    200,
		Header:        Header{},
		ContentLength: -1,
		KeepAlive:     true,
	}
}

// Recycle resets the record for the next request on the same connection.
func (r *Response) Recycle() {
	r.ProtoMajor, r.ProtoMinor = 1, 1
	r.StatusCode = 200
	r.StatusMessage = ""
	for k := range r.Header {
		delete(r.Header, k)
	}
	r.ContentType = ""
	r.CharacterEncoding = ""
	r.ContentLength = -1
	r.KeepAlive = true
	r.committed = false
	r.writeErr = nil
}

// Committed reports whether the status line and headers have already been
// written; header mutations after this point are silently ignored by the
// processor, matching the teacher's response write-once discipline.
func (r *Response) Committed() bool { return r.committed }

// SetWriteError records the first write failure seen while streaming the
// body; later writes don't overwrite it, so the processor can log the
// original cause.
func (r *Response) SetWriteError(err error) {
	if r.writeErr == nil {
		r.writeErr = err
	}
}

// WriteError returns the first write error recorded, if any.
func (r *Response) WriteError() error { return r.writeErr }
