package httpcore

// HeaderStore is a case-insensitive, order-preserving multimap from
// header name to the ordered sequence of values observed on the
// wire. The request parser uses one instance for request headers and
// a second for trailers (spec.md §2, §4.3).
//
// Grounded on fasthttp's argsKV append/lookup discipline
// (args.go/header.go), generalised from "one value per key, duplicate
// key wins" to "ordered value list per lowercase key" since header
// fields (unlike query args) must preserve every repeated occurrence
// in arrival order.
//
// A HeaderStore is single-writer until the owning parser's
// HeadersReadyFunc returns, after which it must be treated as
// read-only (spec.md §5).
type HeaderStore struct {
	entries []headerEntry
	index   map[string]int
}

type headerEntry struct {
	lower  string
	orig   string
	values []string
}

// NewHeaderStore returns an empty header store ready for use.
func NewHeaderStore() *HeaderStore {
	return &HeaderStore{index: make(map[string]int, 16)}
}

// Reset empties the store so it can be reused for the next request.
func (h *HeaderStore) Reset() {
	h.entries = h.entries[:0]
	for k := range h.index {
		delete(h.index, k)
	}
}

// Len returns the number of distinct header names stored.
func (h *HeaderStore) Len() int {
	return len(h.entries)
}

// Contains reports whether name has at least one value, matched
// case-insensitively.
func (h *HeaderStore) Contains(name string) bool {
	_, ok := h.index[lowerASCII(name)]
	return ok
}

// Peek returns the first value stored for name, or "" if absent.
func (h *HeaderStore) Peek(name string) string {
	if i, ok := h.index[lowerASCII(name)]; ok && len(h.entries[i].values) > 0 {
		return h.entries[i].values[0]
	}
	return ""
}

// PeekAll returns the full, ordered value list stored for name. The
// returned slice is the store's own backing slice — per spec.md §4.3
// the parser is permitted to append to it directly, so callers that
// need a stable snapshot must copy it.
func (h *HeaderStore) PeekAll(name string) []string {
	if i, ok := h.index[lowerASCII(name)]; ok {
		return h.entries[i].values
	}
	return nil
}

// Keys returns the distinct lowercase header names in insertion
// order.
func (h *HeaderStore) Keys() []string {
	keys := make([]string, len(h.entries))
	for i, e := range h.entries {
		keys[i] = e.lower
	}
	return keys
}

// Add appends value to name's value list, creating the entry (and
// recording orig as its case-preserved spelling) if this is the
// first occurrence of name.
func (h *HeaderStore) Add(name, value string) {
	lower := lowerASCII(name)
	if i, ok := h.index[lower]; ok {
		h.entries[i].values = append(h.entries[i].values, value)
		return
	}
	h.index[lower] = len(h.entries)
	h.entries = append(h.entries, headerEntry{lower: lower, orig: name, values: []string{value}})
}

// Set replaces name's entire value list with a single value.
func (h *HeaderStore) Set(name, value string) {
	h.Put(name, []string{value})
}

// Put replaces name's entire value list with values, creating the
// entry if absent. An empty values slice is equivalent to Del.
func (h *HeaderStore) Put(name string, values []string) {
	lower := lowerASCII(name)
	if len(values) == 0 {
		h.Del(name)
		return
	}
	if i, ok := h.index[lower]; ok {
		h.entries[i].orig = name
		h.entries[i].values = values
		return
	}
	h.index[lower] = len(h.entries)
	h.entries = append(h.entries, headerEntry{lower: lower, orig: name, values: values})
}

// Del removes name and all of its values.
func (h *HeaderStore) Del(name string) {
	lower := lowerASCII(name)
	i, ok := h.index[lower]
	if !ok {
		return
	}
	h.entries = append(h.entries[:i], h.entries[i+1:]...)
	delete(h.index, lower)
	for k, v := range h.index {
		if v > i {
			h.index[k] = v - 1
		}
	}
}

// OrigName returns the name as stored for name: by default,
// title-cased per normalizeHeaderName, matching fasthttp's default
// header normalizing; exactly as it arrived on the wire if the
// parser that populated this store was built with
// Config.DisableHeaderNormalizing set. Returns "" if name is absent.
func (h *HeaderStore) OrigName(name string) string {
	if i, ok := h.index[lowerASCII(name)]; ok {
		return h.entries[i].orig
	}
	return ""
}

// normalizeHeaderName title-cases name the way fasthttp's header
// normalizing does by default: the first byte and every byte
// following a '-' is uppercased, every other letter is lowercased
// (e.g. "content-type" / "CONTENT-TYPE" -> "Content-Type"). The
// parser calls this on every captured header/trailer name unless
// Config.DisableHeaderNormalizing asks it to keep the exact wire
// spelling instead.
func normalizeHeaderName(name string) string {
	b := []byte(name)
	upper := true
	for i, c := range b {
		switch {
		case c == '-':
			upper = true
		case upper:
			if c >= 'a' && c <= 'z' {
				b[i] = c - ('a' - 'A')
			}
			upper = false
		default:
			if c >= 'A' && c <= 'Z' {
				b[i] = c + ('a' - 'A')
			}
		}
	}
	return string(b)
}

func lowerASCII(s string) string {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			b := []byte(s)
			for ; i < len(b); i++ {
				if b[i] >= 'A' && b[i] <= 'Z' {
					b[i] += 'a' - 'A'
				}
			}
			return string(b)
		}
	}
	return s
}
