package httpx

import (
	"bytes"
	"errors"
)

// URL is a minimal representation of a parsed request URI.
type URL struct {
	Scheme   string
	Host     string
	Path     string
	RawQuery string
}

// ParseRequestURI parses the request-target per RFC 7230 §5.3, scanning
// raw directly rather than forcing the caller to materialize the whole
// request-target into a string first. raw is typically the backing slice
// of a Request.RequestURI chunk.ByteChunk view into the connection's parse
// buffer; callers must not retain raw past the next ParseRequestLine on
// that buffer, which is why the fields below are copied out rather than
// re-sliced from it.
//
// Supported forms:
//   - origin-form:   /path?query
//   - absolute-form: http://host/path?query
//   - asterisk-form: * (for OPTIONS *)
//
// Validation here is intentionally relaxed, not RFC-strict: the byte-level
// scan in the request-line parser (inputbuffer.go) already rejects raw
// control bytes and whitespace while locating the target's boundaries; this
// function only has to make sense of what's already known to be a clean
// token.
func ParseRequestURI(raw []byte) (*URL, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty request-target")
	}
	if bytes.IndexAny(raw, " \r\n") >= 0 {
		return nil, errors.New("invalid characters in request-target")
	}

	// OPTIONS * form
	if len(raw) == 1 && raw[0] == '*' {
		return &URL{Path: "*"}, nil
	}

	u := &URL{}
	switch {
	case hasPrefixFold(raw, "http://"):
		u.Scheme = "http"
		raw = raw[len("http://"):]
		slash := bytes.IndexByte(raw, '/')
		if slash == -1 {
			u.Host = lowerASCIIString(raw)
			u.Path = "/"
			return u, nil
		}
		u.Host = lowerASCIIString(raw[:slash])
		raw = raw[slash:]

	case hasPrefixFold(raw, "https://"):
		u.Scheme = "https"
		raw = raw[len("https://"):]
		slash := bytes.IndexByte(raw, '/')
		if slash == -1 {
			u.Host = lowerASCIIString(raw)
			u.Path = "/"
			return u, nil
		}
		u.Host = lowerASCIIString(raw[:slash])
		raw = raw[slash:]

	default:
		// origin-form (/path?query)
	}

	if qmark := bytes.IndexByte(raw, '?'); qmark >= 0 {
		u.Path = string(raw[:qmark])
		u.RawQuery = string(raw[qmark+1:])
	} else {
		u.Path = string(raw)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u, nil
}

// hasPrefixFold reports whether b starts with the (already-lowercase)
// ASCII prefix, case-insensitively; schemes only ever arrive as "http"/
// "https" or not at all, so a 1:1 byte fold is enough.
func hasPrefixFold(b []byte, prefix string) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		c := b[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != prefix[i] {
			return false
		}
	}
	return true
}

// lowerASCIIString folds b to lowercase while copying it out to a string in
// a single pass, instead of allocating once via string(b) and again via
// strings.ToLower.
func lowerASCIIString(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
