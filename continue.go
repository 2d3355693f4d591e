package httpcore

import (
	"strconv"

	"golang.org/x/net/http/httpguts"
)

// ContinueDecision is the framing-layer verdict on an Expect header
// observed at headers-ready time (spec.md §6).
type ContinueDecision int

const (
	// ContinueNotRequested means no interim response is due: the
	// request carried no "Expect: 100-continue" header, or carried one
	// without a Content-Length header. The server proceeds without
	// emitting any interim response.
	ContinueNotRequested ContinueDecision = iota

	// ContinueShouldSend means the server should emit 100 Continue
	// before body parsing begins.
	ContinueShouldSend

	// ContinueShouldReject means the server should emit
	// 417 Expectation Failed and close the connection without
	// reading a body.
	ContinueShouldReject
)

// DecideContinue inspects a parsed header store for an
// "Expect: 100-continue" directive and returns the framing-layer
// verdict. It does not write to the connection; the enclosing server
// (an external collaborator per spec.md §1) acts on the verdict.
//
// Grounded on fasthttp's MayContinue/ContinueReadBody pattern in
// http.go (deleted along with the rest of that file; the decision
// table survives here stripped of socket I/O).
func DecideContinue(headers *HeaderStore) ContinueDecision {
	if !expectsContinue(headers) {
		return ContinueNotRequested
	}
	cl := headers.Peek("Content-Length")
	if cl == "" {
		// No declared length: a bare Expect header with a chunked or
		// absent body is not what spec.md §6 gates on, so there is
		// nothing to reject; let the request proceed without the
		// interim response.
		return ContinueNotRequested
	}
	n, err := strconv.ParseInt(cl, 10, 32)
	if err != nil || n < 0 {
		return ContinueShouldReject
	}
	return ContinueShouldSend
}

func expectsContinue(headers *HeaderStore) bool {
	return httpguts.HeaderValuesContainsToken(headers.PeekAll("Expect"), "100-continue")
}
