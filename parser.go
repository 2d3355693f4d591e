package httpcore

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// parserState is the top-level request state (spec.md §4.1).
type parserState int

const (
	stateRequestLineMethod parserState = iota
	stateRequestLineURI
	stateRequestLineProto
	stateHeaderName
	stateHeaderValue
	stateFixedBody
	stateChunkedBody
	stateComplete
)

// chunkSubState drives CHUNKED_BODY framing.
type chunkSubState int

const (
	chunkSize chunkSubState = iota
	chunkExtension
	chunkData
	chunkDataDone
	chunkTrailerName
	chunkTrailerValue
)

// HeadersReadyFunc is invoked exactly once per request, after the
// header block terminator has been consumed and the body shape has
// been decided.
type HeadersReadyFunc func(method, uri, protocol string, headers *HeaderStore)

// RequestParser is a single-owner, incremental HTTP/1.x request
// state machine. A single goroutine (the "network reader" of
// spec.md §5) calls Offer repeatedly as bytes arrive; it must never
// be called concurrently with itself.
//
// Grounded on fasthttp's headerscanner.go/http.go line-at-a-time
// tokenizing discipline, generalised from "parse one fully buffered
// request" to "tolerate being fed at any byte boundary, across any
// number of Offer calls" — the reason this file is a fresh state
// machine rather than a port of header.go's Parse method.
type RequestParser struct {
	cfg       *Config
	ctx       context.Context
	onHeaders HeadersReadyFunc

	state      parserState
	chunkState chunkSubState
	scratch    []byte
	headerName string

	headers  *HeaderStore
	trailers *HeaderStore

	method   string
	uri      string
	protocol string

	// declaredLength holds -1 (unknown, pre-headers-ready), -2
	// (chunked), or the fixed Content-Length (spec.md §3 invariant).
	declaredLength int64
	bytesRead      int64
	curChunkSize   int64

	conduit *BodyConduit

	lineBytes   int
	headerBytes int
}

// NewRequestParser constructs a parser in RL_METHOD, ready to consume
// the first byte of a request line. ctx, if non-nil, is threaded into
// the BodyConduit(s) the parser allocates so a cancelled context
// interrupts a blocked pull read.
func NewRequestParser(cfg *Config, ctx context.Context, onHeaders HeadersReadyFunc) *RequestParser {
	return &RequestParser{
		cfg:            cfg,
		ctx:            ctx,
		onHeaders:      onHeaders,
		headers:        NewHeaderStore(),
		trailers:       NewHeaderStore(),
		declaredLength: -1,
		state:          stateRequestLineMethod,
	}
}

// Complete reports whether the request, including body and any
// trailers, has been fully consumed.
func (p *RequestParser) Complete() bool {
	return p.state == stateComplete
}

// Conduit returns the body conduit allocated for this request, or nil
// if the request has no body (framing rule 4) or headers have not
// been parsed yet. Per spec.md §6 the handler owns this reference
// once HeadersReadyFunc returns.
func (p *RequestParser) Conduit() *BodyConduit {
	return p.conduit
}

// Trailers returns the trailer header store. It is only meaningful to
// read once Complete() is true for a chunked request (spec.md §5).
func (p *RequestParser) Trailers() *HeaderStore {
	return p.trailers
}

// Offer feeds the next slice of network-supplied bytes into the
// parser. It may be called with slices of any size, sliced at any
// byte boundary relative to the wire format; partial tokens persist
// in the parser's scratch buffer across calls.
func (p *RequestParser) Offer(data []byte) error {
	for len(data) > 0 {
		switch p.state {
		case stateFixedBody:
			n, err := p.offerFixedBody(data)
			data = data[n:]
			if err != nil {
				return err
			}
		case stateChunkedBody:
			n, err := p.offerChunkedByte(data)
			data = data[n:]
			if err != nil {
				return err
			}
		case stateComplete:
			return p.newInvalidRequest(StatusBadRequest, "request body too long", errParserComplete.Error())
		default:
			b := data[0]
			data = data[1:]
			if err := p.stepByte(b); err != nil {
				return err
			}
		}
	}
	return nil
}

// stepByte advances the request-line and header-block states, one
// byte at a time.
func (p *RequestParser) stepByte(b byte) error {
	switch p.state {
	case stateRequestLineMethod:
		return p.stepRequestLineToken(b, stateRequestLineURI, func(tok string) error {
			if !isValidToken(tok) {
				return p.newInvalidRequest(StatusBadRequest, "malformed request line", "invalid method token "+tok)
			}
			p.method = tok
			return nil
		})
	case stateRequestLineURI:
		return p.stepRequestLineToken(b, stateRequestLineProto, func(tok string) error {
			if err := p.validateTarget(tok); err != nil {
				return err
			}
			p.uri = tok
			return nil
		})
	case stateRequestLineProto:
		if b == '\r' {
			return nil
		}
		if b == '\n' {
			proto := string(p.scratch)
			p.scratch = p.scratch[:0]
			if proto != "HTTP/1.0" && proto != "HTTP/1.1" {
				return p.newInvalidRequest(StatusBadRequest, "unsupported protocol version", proto)
			}
			p.protocol = proto
			p.state = stateHeaderName
			p.headerBytes = 0
			return nil
		}
		return p.appendLineByte(b)
	case stateHeaderName:
		colon, blockEnd, err := p.onNameByte(b)
		if err != nil {
			return err
		}
		if colon {
			p.state = stateHeaderValue
			return nil
		}
		if blockEnd {
			return p.finishHeaderBlock()
		}
		return nil
	case stateHeaderValue:
		if p.onValueByte(b) {
			p.headers.Add(p.headerName, trimOWS(p.scratch))
			p.scratch = p.scratch[:0]
			p.state = stateHeaderName
		}
		if p.headerBytes > p.cfg.maxHeaderBlockBytes() {
			return p.newInvalidRequest(StatusRequestHeaderFieldsTooLarge, "header block too large", "")
		}
		return nil
	}
	return nil
}

// stepRequestLineToken accumulates bytes for RL_METHOD / RL_URI,
// dispatching on the SP terminator and enforcing the shared CR
// tolerance and 414 budget.
func (p *RequestParser) stepRequestLineToken(b byte, next parserState, onToken func(string) error) error {
	if b == '\r' {
		return nil
	}
	if b == ' ' {
		tok := string(p.scratch)
		p.scratch = p.scratch[:0]
		if tok == "" {
			return p.newInvalidRequest(StatusBadRequest, "malformed request line", "empty token")
		}
		if err := onToken(tok); err != nil {
			return err
		}
		p.state = next
		return nil
	}
	if b == '\n' {
		return p.newInvalidRequest(StatusBadRequest, "malformed request line", "unexpected line feed before protocol")
	}
	return p.appendLineByte(b)
}

func (p *RequestParser) appendLineByte(b byte) error {
	p.appendScratch(b)
	p.lineBytes++
	if p.lineBytes > p.cfg.maxRequestLineBytes() {
		return p.newInvalidRequest(StatusRequestURITooLong, "request line too long", "")
	}
	return nil
}

// onNameByte consumes one byte of a header (or trailer) name. colon
// reports that ':' was seen and p.headerName now holds the captured
// name; blockEnd reports an empty line (header block terminator).
func (p *RequestParser) onNameByte(b byte) (colon, blockEnd bool, err error) {
	if b == '\r' {
		return false, false, nil
	}
	if b == ':' {
		name := string(p.scratch)
		if !httpguts.ValidHeaderFieldName(name) {
			return false, false, p.newInvalidRequest(StatusBadRequest, "malformed header", "invalid header field name "+name)
		}
		if !p.cfg.disableHeaderNormalizing() {
			name = normalizeHeaderName(name)
		}
		p.headerName = name
		p.scratch = p.scratch[:0]
		return true, false, nil
	}
	if b == '\n' {
		if len(p.scratch) == 0 {
			return false, true, nil
		}
		return false, false, p.newInvalidRequest(StatusBadRequest, "malformed header", "header name contained LF")
	}
	p.appendScratch(b)
	p.headerBytes++
	if p.headerBytes > p.cfg.maxHeaderBlockBytes() {
		return false, false, p.newInvalidRequest(StatusRequestHeaderFieldsTooLarge, "header block too large", "")
	}
	return false, false, nil
}

// onValueByte consumes one byte of a header (or trailer) value,
// skipping any leading SPs, and reports whether LF ended the line.
func (p *RequestParser) onValueByte(b byte) (lineEnd bool) {
	if b == '\r' {
		return false
	}
	if b == '\n' {
		return true
	}
	if len(p.scratch) == 0 && b == ' ' {
		return false
	}
	p.appendScratch(b)
	p.headerBytes++
	return false
}

func (p *RequestParser) appendScratch(b byte) {
	if len(p.scratch) == cap(p.scratch) {
		p.scratch = growBuffer(p.scratch, len(p.scratch)+1)
	}
	p.scratch = append(p.scratch, b)
}

func trimOWS(b []byte) string {
	return strings.TrimRight(string(b), " \t")
}

// finishHeaderBlock applies the framing rules of spec.md §4.1 once
// the header block terminator (empty line) has been consumed.
func (p *RequestParser) finishHeaderBlock() error {
	clValues := p.headers.PeekAll("content-length")
	teValues := p.headers.PeekAll("transfer-encoding")

	switch {
	case len(clValues) > 0 && len(teValues) > 0:
		return p.newInvalidRequest(StatusBadRequest, "conflicting framing headers",
			"both content-length and transfer-encoding present")

	case len(teValues) > 0:
		if !lastCodingIsChunked(teValues) {
			return p.newInvalidRequest(StatusBadRequest, "unsupported transfer-encoding",
				"last coding is not chunked")
		}
		p.declaredLength = -2
		p.conduit = NewBodyConduit(p.cfg, p.ctx)
		p.state = stateChunkedBody
		p.chunkState = chunkSize
		p.invokeOnHeaders()
		return nil

	case len(clValues) > 0:
		n, ok := parseAgreeingContentLength(clValues)
		if !ok {
			return p.newInvalidRequest(StatusBadRequest, "invalid content-length", strings.Join(clValues, ","))
		}
		p.declaredLength = n
		if n == 0 {
			p.conduit = NewBodyConduit(p.cfg, p.ctx)
			p.conduit.Close()
			p.state = stateComplete
			p.invokeOnHeaders()
			return nil
		}
		p.conduit = NewBodyConduit(p.cfg, p.ctx)
		p.state = stateFixedBody
		p.invokeOnHeaders()
		return nil

	default:
		p.conduit = nil
		p.state = stateComplete
		p.invokeOnHeaders()
		return nil
	}
}

func (p *RequestParser) invokeOnHeaders() {
	if p.onHeaders != nil {
		p.onHeaders(p.method, p.uri, p.protocol, p.headers)
	}
}

// offerFixedBody bulk-copies as many of data's bytes as remain
// declared for FIXED_BODY, returning the number consumed.
func (p *RequestParser) offerFixedBody(data []byte) (int, error) {
	remaining := p.declaredLength - p.bytesRead
	n := len(data)
	if int64(n) > remaining {
		n = int(remaining)
	}
	if n > 0 {
		if err := p.deliverBody(data[:n]); err != nil {
			return n, err
		}
		p.bytesRead += int64(n)
	}
	if p.bytesRead == p.declaredLength {
		p.conduit.Close()
		p.state = stateComplete
	}
	return n, nil
}

// deliverBody copies buf into an owned buffer and hands it to the
// conduit, surfacing a protocol-internal error (budget exceeded)
// synchronously to the caller, per spec.md §7.
func (p *RequestParser) deliverBody(buf []byte) error {
	owned := append([]byte(nil), buf...)
	var handOffErr error
	p.conduit.HandOff(owned, func(err error) { handOffErr = err })
	return handOffErr
}

// offerChunkedByte advances the CHUNKED_BODY sub-state machine,
// consuming one byte normally but bulk-copying while in the DATA
// sub-state. It returns the number of input bytes consumed.
func (p *RequestParser) offerChunkedByte(data []byte) (int, error) {
	if p.chunkState == chunkData {
		return p.offerChunkData(data)
	}

	b := data[0]
	switch p.chunkState {
	case chunkSize:
		return 1, p.stepChunkSize(b)
	case chunkExtension:
		return 1, p.stepChunkExtension(b)
	case chunkDataDone:
		if b == '\r' {
			return 1, nil
		}
		if b == '\n' {
			p.chunkState = chunkSize
			return 1, nil
		}
		return 1, p.newInvalidRequest(StatusBadRequest, "malformed chunk framing", "expected line feed after chunk data")
	case chunkTrailerName:
		colon, blockEnd, err := p.onNameByte(b)
		if err != nil {
			return 1, err
		}
		if colon {
			p.chunkState = chunkTrailerValue
			return 1, nil
		}
		if blockEnd {
			p.conduit.Close()
			p.state = stateComplete
		}
		return 1, nil
	case chunkTrailerValue:
		if p.onValueByte(b) {
			p.trailers.Add(p.headerName, trimOWS(p.scratch))
			p.scratch = p.scratch[:0]
			p.chunkState = chunkTrailerName
		}
		if p.headerBytes > p.cfg.maxHeaderBlockBytes() {
			return 1, p.newInvalidRequest(StatusRequestHeaderFieldsTooLarge, "header block too large", "")
		}
		return 1, nil
	}
	return 1, nil
}

func (p *RequestParser) stepChunkSize(b byte) error {
	if b == '\r' {
		return nil
	}
	if v, ok := hexDigitValue(b); ok {
		p.curChunkSize = p.curChunkSize*16 + v
		return nil
	}
	if b == ';' {
		p.chunkState = chunkExtension
		return nil
	}
	if b == '\n' {
		p.enterPostSize()
		return nil
	}
	return p.newInvalidRequest(StatusBadRequest, "malformed chunk size", "unexpected byte in chunk size")
}

func (p *RequestParser) stepChunkExtension(b byte) error {
	if b == '\n' {
		p.enterPostSize()
	}
	// every other byte, including '\r', is part of the ignored
	// extension and is simply discarded (spec.md §4.1, §9).
	return nil
}

// enterPostSize routes to TRAILER_NAME or DATA depending on the
// chunk size just committed; the open question in spec.md §9 ("does
// a 0-size chunk with an extension still reach TRAILER_NAME") is
// answered yes, since both the SIZE and EXTENSION LF branches call
// this same helper.
func (p *RequestParser) enterPostSize() {
	if p.curChunkSize == 0 {
		p.chunkState = chunkTrailerName
		p.headerBytes = 0
	} else {
		p.chunkState = chunkData
	}
}

func (p *RequestParser) offerChunkData(data []byte) (int, error) {
	n := len(data)
	if int64(n) > p.curChunkSize {
		n = int(p.curChunkSize)
	}
	if n > 0 {
		if err := p.deliverBody(data[:n]); err != nil {
			return n, err
		}
		p.curChunkSize -= int64(n)
	}
	if p.curChunkSize == 0 {
		p.chunkState = chunkDataDone
	}
	return n, nil
}

// validateTarget applies spec.md §9's optional strict origin-form
// check on top of a syntactic URI-reference parse. Grounded on the
// design note that URI parsing is delegated to an external collaborator;
// no library in the pack specialises in this, so net/url — the
// standard library's URI-reference parser — plays that role.
func (p *RequestParser) validateTarget(uri string) error {
	if uri == "*" {
		return nil
	}
	if p.method == "CONNECT" {
		return nil
	}
	if _, err := url.ParseRequestURI(uri); err != nil {
		return p.newInvalidRequest(StatusBadRequest, "malformed request target", err.Error())
	}
	if p.cfg.strictTargetForm() && !strings.HasPrefix(uri, "/") {
		return p.newInvalidRequest(StatusBadRequest, "non-origin-form request target", uri)
	}
	return nil
}

func hexDigitValue(b byte) (int64, bool) {
	switch {
	case b >= '0' && b <= '9':
		return int64(b - '0'), true
	case b >= 'a' && b <= 'f':
		return int64(b-'a') + 10, true
	case b >= 'A' && b <= 'F':
		return int64(b-'A') + 10, true
	}
	return 0, false
}

// isValidToken mirrors the RFC 7230 token grammar (tchar*) fasthttp's
// generated validMethodValueByteTable documents — but, since that
// generated table file was not part of the retrieved pack, it
// delegates to x/net/http/httpguts.IsTokenRune rather than
// hand-duplicating a byte table.
func isValidToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !httpguts.IsTokenRune(rune(s[i])) {
			return false
		}
	}
	return true
}

// parseAgreeingContentLength implements framing rule 2: multiple
// content-length values are accepted only if they all agree.
func parseAgreeingContentLength(values []string) (int64, bool) {
	n, ok := parseNonNegativeInt(values[0])
	if !ok {
		return 0, false
	}
	for _, v := range values[1:] {
		m, ok := parseNonNegativeInt(v)
		if !ok || m != n {
			return 0, false
		}
	}
	return n, true
}

func parseNonNegativeInt(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 63)
	if err != nil {
		return 0, false
	}
	return n, true
}

// lastCodingIsChunked implements the last-coding matching spec.md §9
// describes: transfer-encoding may repeat across header lines or
// within a single comma-separated value; only the final, non-empty
// coding is inspected, and it must equal "chunked" as a whole token
// (case-insensitively), not merely contain it.
func lastCodingIsChunked(values []string) bool {
	joined := strings.Join(values, ",")
	parts := strings.Split(joined, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		tok := strings.TrimSpace(parts[i])
		if tok == "" {
			continue
		}
		return strings.EqualFold(tok, "chunked")
	}
	return false
}
