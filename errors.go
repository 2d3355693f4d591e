package httpcore

import (
	"errors"
	"fmt"
)

// InvalidRequestError is raised synchronously from RequestParser.Offer
// on any framing violation. PublicMessage is safe to send back to the
// client alongside Code; PrivateDetail is for operator-side logs and
// may contain request-derived bytes. When the parser was constructed
// with Config.SecureErrorMessages set, Error() omits PrivateDetail
// from its combined string, so a bare %v of the error (as a logger
// call might do) never carries request bytes into output the caller
// didn't explicitly ask for via PrivateDetail.
//
// Grounded on fasthttp's named-error-struct-embedding-error shape
// (ErrNothingRead, ErrSmallBuffer in header.go) rather than a single
// sentinel, since the caller needs the status code and the two
// message audiences spec.md §7 distinguishes.
type InvalidRequestError struct {
	Code          int
	PublicMessage string
	PrivateDetail string

	secure bool
}

func (e *InvalidRequestError) Error() string {
	if e.PrivateDetail == "" || e.secure {
		return e.PublicMessage
	}
	return fmt.Sprintf("%s: %s", e.PublicMessage, e.PrivateDetail)
}

func (p *RequestParser) newInvalidRequest(code int, public, detail string) *InvalidRequestError {
	return &InvalidRequestError{Code: code, PublicMessage: public, PrivateDetail: detail, secure: p.cfg.secureErrorMessages()}
}

func (p *RequestParser) newInvalidRequestf(code int, public string, detailFormat string, args ...any) *InvalidRequestError {
	return &InvalidRequestError{Code: code, PublicMessage: public, PrivateDetail: fmt.Sprintf(detailFormat, args...), secure: p.cfg.secureErrorMessages()}
}

// ConduitError wraps a protocol-internal failure raised by a
// BodyConduit: budget exhaustion on the producer side, or timeout/
// interruption on the consumer side. It is never translated to an
// HTTP status by this package; the enclosing server decides.
type ConduitError struct {
	error
}

// Unwrap exposes the underlying sentinel (ErrBodyTooLarge,
// ErrReadTimeout, ErrInterrupted, ...) to errors.Is/errors.As.
func (e *ConduitError) Unwrap() error {
	return e.error
}

func newConduitError(cause error) *ConduitError {
	return &ConduitError{error: cause}
}

var (
	// ErrBodyTooLarge is raised by BodyConduit.HandOff when accepting
	// the offered bytes would exceed the conduit's byte cap.
	ErrBodyTooLarge = errors.New("body size exceeds the conduit's byte cap")

	// ErrReadTimeout is raised by a blocking BodyConduit.Read/ReadByte
	// call that waited longer than the configured read timeout for the
	// next buffer.
	ErrReadTimeout = errors.New("timed out waiting for body bytes")

	// ErrInterrupted is raised by a blocking BodyConduit.Read/ReadByte
	// call whose wait was cancelled via context cancellation.
	ErrInterrupted = errors.New("interrupted while waiting for body bytes")

	// ErrPullAfterListenerInstalled is returned by Read/ReadByte once a
	// listener has been installed via SwitchToListener; per spec.md §3
	// the pull interface must no longer be used after that point.
	ErrPullAfterListenerInstalled = errors.New("pull interface used after a listener was installed")

	// ErrListenerAlreadyInstalled is returned by a second call to
	// BodyConduit.SwitchToListener. Per spec.md §9 this module picks
	// fail-fast over idempotent-replace.
	ErrListenerAlreadyInstalled = errors.New("a listener is already installed on this conduit")

	// errParserComplete is the detail text RequestParser.Offer carries
	// on the InvalidRequestError it raises once the parser has already
	// reached the COMPLETE state; per spec.md §4.1 re-entry policy this
	// is reported as a 400.
	errParserComplete = errors.New("offer called after request is complete")
)
