package httpx

// MimeHeaders is the ordered multimap the request parser fills in: names
// are folded to lower case at the byte level as they're scanned (spec §3),
// values are copied out of the parse buffer into strings as each header is
// parsed (they are not views into it), and duplicate keys preserve
// insertion order. Unlike Header (used for responses), keys are stored
// lower-case rather than canonicalized; lookups fold the requested name to
// lower case before comparing it with the stored names.
type MimeHeaders struct {
	names  []string
	values []string
}

// Add appends name/value. name must already be lower-cased by the caller
// (the header parser folds it in place while scanning).
func (h *MimeHeaders) Add(name, value string) {
	h.names = append(h.names, name)
	h.values = append(h.values, value)
}

// Get returns the first value stored for name (name.ToLower), and whether it was found.
func (h *MimeHeaders) Get(name string) (string, bool) {
	want := foldLowerASCII(name)
	for i, n := range h.names {
		if n == want {
			return h.values[i], true
		}
	}
	return "", false
}

// Values returns every value stored for name, in insertion order.
func (h *MimeHeaders) Values(name string) []string {
	want := foldLowerASCII(name)
	var out []string
	for i, n := range h.names {
		if n == want {
			out = append(out, h.values[i])
		}
	}
	return out
}

// Len reports the number of stored fields (including duplicate keys).
func (h *MimeHeaders) Len() int { return len(h.names) }

// Each iterates fields in insertion order.
func (h *MimeHeaders) Each(fn func(name, value string)) {
	for i, n := range h.names {
		fn(n, h.values[i])
	}
}

// Recycle empties the multimap for reuse at the next request boundary,
// retaining the backing arrays.
func (h *MimeHeaders) Recycle() {
	h.names = h.names[:0]
	h.values = h.values[:0]
}

func foldLowerASCII(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			b := []byte(s)
			for ; i < len(b); i++ {
				if b[i] >= 'A' && b[i] <= 'Z' {
					b[i] += 0x20
				}
			}
			return string(b)
		}
	}
	return s
}
