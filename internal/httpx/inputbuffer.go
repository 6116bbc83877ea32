package httpx

import (
	"errors"
	"io"

	"github.com/andycostintoma/bioengine/internal/chunk"
)

// Sentinel errors for the parser (spec §7). Propagation policy (which of
// these become 4xx vs. silent close) is the processor's concern.
var (
	ErrInvalidMethod         = errors.New("httpx: invalid method")
	ErrInvalidRequestTarget  = errors.New("httpx: invalid request-target")
	ErrInvalidHTTPProtocol   = errors.New("httpx: invalid HTTP protocol")
	ErrInvalidHeaderName     = errors.New("httpx: invalid header name")
	ErrRequestHeaderTooLarge = errors.New("httpx: request header too large")
	ErrUnexpectedEOF         = errors.New("httpx: unexpected eof")
)

// DefaultParseBufferSize is the input buffer's default size (maxHttpHeaderSize).
const DefaultParseBufferSize = 8192

// rebaseThreshold is the "4,500 bytes remaining" threshold from spec §4.B:
// below it, the implementation allocates a fresh parse buffer for the body
// phase instead of reusing the header-bearing one in place.
const rebaseThreshold = 4500

// Socket is the minimal blocking-read primitive InputBuffer needs from the
// connection layer — satisfied by net.Conn.
type Socket interface {
	Read(p []byte) (int, error)
}

// InputBuffer owns the fixed-size parse buffer (component B): it parses the
// request line and headers in place out of raw socket bytes, with no
// intermediate string allocation, and exposes a body-read path through a
// stack of input filters via DoRead.
type InputBuffer struct {
	buf       []byte
	pos       int // next unread byte
	lastValid int // one past last filled byte

	sock          Socket
	rejectIllegal bool
	limits        HeaderLimits
}

// NewInputBuffer allocates a parse buffer of size bytes (spec default 8 KiB).
// limits.MaxFields bounds the number of header fields; header values are
// always checked for control bytes. Total request-line+header size is
// already bounded by the buffer itself (ErrRequestHeaderTooLarge on overflow).
func NewInputBuffer(size int, rejectIllegalHeaderName bool, limits HeaderLimits) *InputBuffer {
	if size <= 0 {
		size = DefaultParseBufferSize
	}
	return &InputBuffer{buf: make([]byte, size), rejectIllegal: rejectIllegalHeaderName, limits: limits}
}

// Reset re-arms the buffer for a new connection, discarding any buffered bytes.
func (b *InputBuffer) Reset(sock Socket) {
	b.sock = sock
	b.pos = 0
	b.lastValid = 0
}

// fill refills the buffer from the socket when pos==lastValid. Bytes
// already consumed (before pos) are not preserved; callers must compact
// first via rebaseForBody when bytes need to survive a refill.
func (b *InputBuffer) fill() error {
	if b.pos < b.lastValid {
		return nil
	}
	if b.lastValid == len(b.buf) {
		return ErrRequestHeaderTooLarge
	}
	n, err := b.sock.Read(b.buf[b.lastValid:])
	if n > 0 {
		b.lastValid += n
		return nil
	}
	if err == nil {
		err = io.EOF
	}
	return err
}

// ReadByte implements filter.RawByteSource so the chunked input filter can
// scan chunk-size and trailer lines one byte at a time.
func (b *InputBuffer) ReadByte() (byte, error) {
	if b.pos >= b.lastValid {
		if err := b.fill(); err != nil {
			return 0, err
		}
	}
	c := b.buf[b.pos]
	b.pos++
	return c, nil
}

// DoRead implements filter.ByteReader: it refills from the socket if empty,
// then exposes up to max bytes of the unread range as a view into dst,
// advancing pos by exactly what was exposed (never more than max), so any
// surplus already-buffered bytes remain available for the next call — the
// property that keeps pipelined requests intact across filter boundaries.
func (b *InputBuffer) DoRead(dst *chunk.ByteChunk, max int) (int, error) {
	if b.pos >= b.lastValid {
		if err := b.fill(); err != nil {
			return 0, err
		}
	}
	avail := b.lastValid - b.pos
	n := avail
	if max > 0 && n > max {
		n = max
	}
	dst.SetView(b.buf, b.pos, n)
	b.pos += n
	return n, nil
}

// ---------------------------------------------------------------------------
// Request-line parser (spec §4.B)
// ---------------------------------------------------------------------------

func isCR(b byte) bool { return b == '\r' }
func isLF(b byte) bool { return b == '\n' }
func isSPHT(b byte) bool { return b == ' ' || b == '\t' }

// isTokenChar reports whether b is a valid RFC 7230 tchar.
func isTokenChar(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '!', b == '#', b == '$', b == '%', b == '&', b == '\'',
		b == '*', b == '+', b == '-', b == '.', b == '^', b == '_',
		b == '`', b == '|', b == '~':
		return true
	}
	return false
}

// isRelaxedTargetChar and isRelaxedQueryChar deliberately under-validate
// (spec §9 open question): any byte other than control chars, space and tab
// is accepted, matching the teacher's existing relaxed philosophy.
func isRelaxedTargetChar(b byte) bool {
	return b >= 0x21 && b != 0x7f
}

func isRelaxedQueryChar(b byte) bool {
	return b >= 0x21 && b != 0x7f
}

func (b *InputBuffer) nextByte() (byte, bool, error) {
	if b.pos >= b.lastValid {
		if err := b.fill(); err != nil {
			return 0, false, err
		}
	}
	c := b.buf[b.pos]
	b.pos++
	return c, true, nil
}

// ParseRequestLine runs states 1-6 of spec §4.B directly against the parse
// buffer, filling req.Method/RequestURI/QueryString/Protocol as chunk views
// with zero copying.
func (b *InputBuffer) ParseRequestLine(req *Request) error {
	// State 1: skip leading CR/LF (connection-reuse tolerance).
	for {
		c, _, err := b.nextByte()
		if err != nil {
			return err
		}
		if !isCR(c) && !isLF(c) {
			b.pos--
			break
		}
	}

	// State 2: method.
	start := b.pos
	for {
		c, _, err := b.nextByte()
		if err != nil {
			return err
		}
		if c == ' ' || c == '\t' {
			req.Method.SetView(b.buf, start, b.pos-1-start)
			break
		}
		if !isTokenChar(c) {
			return ErrInvalidMethod
		}
	}

	// State 3: skip SP/HT runs.
	if err := b.skipSPHT(); err != nil {
		return err
	}

	// State 4: request target.
	start = b.pos
	questionPos := -1
	for {
		c, _, err := b.nextByte()
		if err != nil {
			return err
		}
		if c == ' ' || c == '\t' || isCR(c) || isLF(c) {
			end := b.pos - 1
			req.UnparsedURI.SetView(b.buf, start, end-start)
			if questionPos >= 0 {
				req.RequestURI.SetView(b.buf, start, questionPos-start)
				req.QueryString.SetView(b.buf, questionPos+1, end-(questionPos+1))
			} else {
				req.RequestURI.SetView(b.buf, start, end-start)
			}
			if isCR(c) || isLF(c) {
				// HTTP/0.9: no protocol token, terminator already consumed.
				if isCR(c) {
					// allow a following LF
					c2, _, err := b.nextByte()
					if err == nil && !isLF(c2) {
						b.pos--
					}
				}
				req.Protocol.SetView(b.buf, b.pos, 0)
				req.ProtoMajor, req.ProtoMinor = 0, 9
				return nil
			}
			break
		}
		if c == '?' && questionPos < 0 {
			questionPos = b.pos - 1
		}
		if questionPos < 0 {
			if !isRelaxedTargetChar(c) {
				return ErrInvalidRequestTarget
			}
		} else if !isRelaxedQueryChar(c) {
			return ErrInvalidRequestTarget
		}
	}

	// State 5: skip SP/HT.
	if err := b.skipSPHT(); err != nil {
		return err
	}

	// State 6: protocol, "HTTP/[0-9].[0-9]", ends on CR or LF.
	start = b.pos
	for {
		c, _, err := b.nextByte()
		if err != nil {
			return err
		}
		if isCR(c) || isLF(c) {
			end := b.pos - 1
			if isCR(c) {
				c2, _, err := b.nextByte()
				if err == nil && !isLF(c2) {
					b.pos--
				}
			}
			if end == start {
				req.Protocol.SetView(b.buf, start, 0)
				req.ProtoMajor, req.ProtoMinor = 0, 9
				return nil
			}
			if err := parseProtoVersion(b.buf[start:end], req); err != nil {
				return err
			}
			req.Protocol.SetView(b.buf, start, end-start)
			return nil
		}
	}
}

func (b *InputBuffer) skipSPHT() error {
	for {
		c, _, err := b.nextByte()
		if err != nil {
			return err
		}
		if !isSPHT(c) {
			b.pos--
			return nil
		}
	}
}

func parseProtoVersion(proto []byte, req *Request) error {
	if len(proto) < 8 || string(proto[:5]) != "HTTP/" {
		return ErrInvalidHTTPProtocol
	}
	dot := -1
	for i := 5; i < len(proto); i++ {
		if proto[i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 || dot == 5 || dot == len(proto)-1 {
		return ErrInvalidHTTPProtocol
	}
	major, ok1 := parseDigits(proto[5:dot])
	minor, ok2 := parseDigits(proto[dot+1:])
	if !ok1 || !ok2 {
		return ErrInvalidHTTPProtocol
	}
	req.ProtoMajor, req.ProtoMinor = major, minor
	return nil
}

func parseDigits(b []byte) (int, bool) {
	if len(b) == 0 {
		return 0, false
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// ---------------------------------------------------------------------------
// Header parser (spec §4.B)
// ---------------------------------------------------------------------------

// ParseHeaders repeatedly parses one header until the CR/LF blank line that
// ends the header section.
func (b *InputBuffer) ParseHeaders(req *Request) error {
	for {
		done, err := b.parseOneHeader(req)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// parseOneHeader parses a single header field (including obsolete
// line-folding continuations) and reports whether the blank line ending the
// header section was reached instead.
func (b *InputBuffer) parseOneHeader(req *Request) (bool, error) {
	first, _, err := b.nextByte()
	if err != nil {
		return false, err
	}
	if isLF(first) {
		return true, nil
	}
	if isCR(first) {
		c2, _, err := b.nextByte()
		if err != nil {
			return false, err
		}
		if isLF(c2) {
			return true, nil
		}
		return false, ErrInvalidHeaderName
	}
	b.pos--

	// Name: token bytes until ':'; upper-case ASCII folded to lower in place.
	nameStart := b.pos
	for {
		c, _, err := b.nextByte()
		if err != nil {
			return false, err
		}
		if c == ':' {
			break
		}
		if c >= 'A' && c <= 'Z' {
			b.buf[b.pos-1] = c + 0x20
		} else if !isTokenChar(c) {
			b.skipLine()
			if b.rejectIllegal {
				return false, ErrInvalidHeaderName
			}
			return false, nil
		}
	}
	nameEnd := b.pos - 1
	name := string(b.buf[nameStart:nameEnd])

	// Value: strip leading SP/HT, compact in place, honor obsolete folding.
	realPos := nameEnd
	valueStart := -1
	lastSignificant := realPos
	folded := false // just emitted the SP for an obsolete fold
	for {
		c, ok, err := b.nextByte()
		_ = ok
		if err != nil {
			return false, err
		}
		if isCR(c) {
			c2, _, err := b.nextByte()
			if err != nil {
				return false, err
			}
			if !isLF(c2) {
				return false, ErrInvalidHeaderName
			}
			peek, _, err := b.nextByte()
			if err == nil && isSPHT(peek) {
				// Obsolete line folding: collapse to a single SP and keep reading.
				if valueStart < 0 {
					valueStart = realPos
				}
				b.buf[realPos] = ' '
				realPos++
				lastSignificant = realPos
				folded = true
				continue
			}
			if err == nil {
				b.pos--
			}
			break
		}
		if isLF(c) {
			peek, _, err := b.nextByte()
			if err == nil && isSPHT(peek) {
				if valueStart < 0 {
					valueStart = realPos
				}
				b.buf[realPos] = ' '
				realPos++
				lastSignificant = realPos
				folded = true
				continue
			}
			if err == nil {
				b.pos--
			}
			break
		}
		if isSPHT(c) && (valueStart < 0 || folded) {
			continue // strip leading LWS of the value and of each continuation line
		}
		folded = false
		if valueStart < 0 {
			valueStart = realPos
		}
		if !isSPHT(c) {
			b.buf[realPos] = c
			realPos++
			lastSignificant = realPos
		} else {
			b.buf[realPos] = c
			realPos++
		}
	}
	if valueStart < 0 {
		valueStart = nameEnd
		lastSignificant = nameEnd
	}
	value := string(b.buf[valueStart:lastSignificant])

	if !isValidValue(value) {
		return false, ErrInvalidValue
	}
	if b.limits.MaxFields > 0 && req.Headers.Len() >= b.limits.MaxFields {
		return false, ErrRequestHeaderTooLarge
	}

	req.Headers.Add(name, value)
	return false, nil
}

// skipLine consumes bytes up to and including the next LF (used to recover
// from an illegal header-name byte when rejectIllegalHeaderName is unset).
func (b *InputBuffer) skipLine() {
	for {
		c, _, err := b.nextByte()
		if err != nil || isLF(c) {
			return
		}
	}
}

// RebaseForBody implements the 4,500-byte threshold from spec §4.B: when
// less than rebaseThreshold bytes remain in the buffer after headers, a
// fresh buffer is allocated for the body phase so the old one (still
// referenced by header/URI chunk views) can be safely reclaimed once the
// request is recycled, instead of being overwritten mid-flight.
func (b *InputBuffer) RebaseForBody() {
	remaining := b.lastValid - b.pos
	if remaining < rebaseThreshold {
		nb := make([]byte, len(b.buf))
		n := copy(nb, b.buf[b.pos:b.lastValid])
		b.buf = nb
		b.pos = 0
		b.lastValid = n
	}
}
