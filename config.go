package httpcore

import "time"

// Config carries the tunables shared by a RequestParser and the
// BodyConduit instances it creates. There is no functional-options
// layer here: callers set exported fields on a Config value before
// constructing a parser, the same way fasthttp.Server is configured.
type Config struct {
	// MaxBodyBytes caps the total number of body bytes a BodyConduit
	// will accept across its lifetime. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// ReadTimeout bounds how long a blocking BodyConduit.Read waits
	// for the next buffer before failing with ErrReadTimeout. Zero
	// means DefaultReadTimeout.
	ReadTimeout time.Duration

	// DisableHeaderNormalizing, when true, makes the parser store every
	// header/trailer name exactly as it arrived on the wire. By
	// default names are title-cased (normalizeHeaderName), matching
	// fasthttp's default header normalizing; HeaderStore.OrigName
	// reflects whichever form was stored. Peek/Contains/etc. remain
	// case-insensitive regardless.
	DisableHeaderNormalizing bool

	// SecureErrorMessages, when true, makes InvalidRequestError.Error()
	// omit PrivateDetail from its combined string, so logging the error
	// directly (e.g. via a bare %v) never surfaces the request-derived
	// bytes PrivateDetail may carry; PrivateDetail itself remains
	// available on the error value for callers that want it. Mirrors
	// fasthttp's SecureErrorLogMessage.
	SecureErrorMessages bool

	// StrictTargetForm rejects request targets that are not in
	// origin-form (i.e. do not start with '/') for methods other than
	// CONNECT. The asterisk-form target "*" is accepted either way.
	// Off by default; see spec Design Notes §9.
	StrictTargetForm bool

	// MaxRequestLineBytes bounds the method+URI+protocol line before
	// the parser fails with 414 Request-URI Too Long. Zero means
	// DefaultMaxRequestLineBytes.
	MaxRequestLineBytes int

	// MaxHeaderBlockBytes bounds the cumulative size of the header (or
	// trailer) block before the parser fails with 431 Request Header
	// Fields Too Large. Zero means DefaultMaxHeaderBlockBytes.
	MaxHeaderBlockBytes int

	// Logger is the logger associated with this configuration;
	// DefaultLogger() stands in when nil. The parser and body conduit
	// do not write any messages to it.
	Logger Logger
}

const (
	// DefaultMaxBodyBytes is used when Config.MaxBodyBytes is zero.
	DefaultMaxBodyBytes = 4 * 1024 * 1024

	// DefaultReadTimeout is used when Config.ReadTimeout is zero.
	DefaultReadTimeout = 30 * time.Second

	// DefaultMaxRequestLineBytes is used when Config.MaxRequestLineBytes
	// is zero. Mirrors fasthttp's default first-line budget.
	DefaultMaxRequestLineBytes = 4 * 1024

	// DefaultMaxHeaderBlockBytes is used when Config.MaxHeaderBlockBytes
	// is zero.
	DefaultMaxHeaderBlockBytes = 8 * 1024
)

func (c *Config) maxBodyBytes() int64 {
	if c == nil || c.MaxBodyBytes <= 0 {
		return DefaultMaxBodyBytes
	}
	return c.MaxBodyBytes
}

func (c *Config) readTimeout() time.Duration {
	if c == nil || c.ReadTimeout <= 0 {
		return DefaultReadTimeout
	}
	return c.ReadTimeout
}

func (c *Config) logger() Logger {
	if c == nil || c.Logger == nil {
		return defaultLogger
	}
	return c.Logger
}

func (c *Config) maxRequestLineBytes() int {
	if c == nil || c.MaxRequestLineBytes <= 0 {
		return DefaultMaxRequestLineBytes
	}
	return c.MaxRequestLineBytes
}

func (c *Config) maxHeaderBlockBytes() int {
	if c == nil || c.MaxHeaderBlockBytes <= 0 {
		return DefaultMaxHeaderBlockBytes
	}
	return c.MaxHeaderBlockBytes
}

func (c *Config) strictTargetForm() bool {
	return c != nil && c.StrictTargetForm
}

func (c *Config) disableHeaderNormalizing() bool {
	return c != nil && c.DisableHeaderNormalizing
}

func (c *Config) secureErrorMessages() bool {
	return c != nil && c.SecureErrorMessages
}
