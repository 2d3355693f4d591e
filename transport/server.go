// Package transport is the socket-acceptor / worker-dispatch layer
// that sits outside the request-ingestion core: it owns the listener,
// the per-connection goroutine pool, and the 100-continue framing
// decision, and feeds raw bytes into one httpcore.RequestParser per
// request (spec.md §1 names this an external collaborator; §5 calls
// it the "network reader").
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/crypto/acme/autocert"

	"github.com/valyala/tcplisten"

	httpcore "github.com/rbirkby/muserver-go"
)

// Exchange is handed to Handler once HeadersReadyFunc has fired for a
// request. The handler owns Conduit (if non-nil) and Trailers for the
// remainder of the request's lifetime, per spec.md §6.
type Exchange struct {
	Method   string
	URI      string
	Protocol string
	Headers  *httpcore.HeaderStore
	Trailers *httpcore.HeaderStore
	Conduit  *httpcore.BodyConduit

	Conn net.Conn
}

// Handler processes one fully-headered request. It must not retain
// Exchange past its own return.
type Handler func(*Exchange)

// Default tunables, mirroring fasthttp.Server's DefaultConcurrency
// and buffer-size conventions (server.go, now absorbed into this
// file).
const (
	DefaultConcurrency    = 256 * 1024
	defaultReadBufferSize = 4096
)

// Server accepts connections and drives one httpcore.RequestParser
// per request over each, dispatching completed headers to Handler.
// Response generation belongs to the caller (spec.md §1 names it an
// external collaborator); Server only ever writes the 100-continue
// interim response and the status line for a framing fault it
// detects directly.
type Server struct {
	// Handler is invoked once per request, after HeadersReadyFunc
	// fires.
	Handler Handler

	// Config governs the httpcore.RequestParser / BodyConduit
	// instances Server allocates per request.
	Config *httpcore.Config

	// Concurrency bounds the number of connections served at once.
	// DefaultConcurrency is used if zero.
	Concurrency int

	// ReadBufferSize sizes the per-connection network read buffer.
	// defaultReadBufferSize is used if zero.
	ReadBufferSize int

	// ReadTimeout/WriteTimeout bound a connection's per-operation
	// network I/O; zero disables the corresponding deadline.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Logger receives diagnostics. httpcore.DefaultLogger() is used
	// if nil.
	Logger httpcore.Logger

	// ReusePort enables SO_REUSEPORT on the listener tcplisten.Config
	// creates in ListenAndServe, letting multiple processes (or
	// multiple Server instances) share one port.
	ReusePort bool

	// AutocertManager, if set, supplies a TLS config via ACME for
	// ListenAndServeTLS instead of a static certificate.
	AutocertManager *autocert.Manager
}

func (s *Server) logger() httpcore.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return httpcore.DefaultLogger()
}

func (s *Server) concurrency() int {
	if s.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return s.Concurrency
}

func (s *Server) readBufferSize() int {
	if s.ReadBufferSize <= 0 {
		return defaultReadBufferSize
	}
	return s.ReadBufferSize
}

// ListenAndServe builds a tcplisten-backed listener for addr and
// serves it. Grounded on fasthttp.Server.ListenAndServe, generalised
// to route the socket options through tcplisten.Config instead of a
// bare net.Listen, since SO_REUSEPORT is this module's one acceptor
// enhancement over the teacher's default.
func (s *Server) ListenAndServe(addr string) error {
	cfg := tcplisten.Config{
		ReusePort: s.ReusePort,
	}
	ln, err := cfg.NewListener("tcp4", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// ListenAndServeTLS serves HTTPS from addr. If AutocertManager is
// set, certificates are negotiated via ACME; otherwise certFile/
// keyFile name a static key pair.
func (s *Server) ListenAndServeTLS(addr, certFile, keyFile string) error {
	var tlsConfig *tls.Config
	if s.AutocertManager != nil {
		tlsConfig = s.AutocertManager.TLSConfig()
	} else {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return err
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}
	ln, err := tls.Listen("tcp", addr, tlsConfig)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections from ln until it returns a permanent
// error, dispatching each to a worker-pool goroutine. Grounded on
// fasthttp.Server.Serve/acceptConn.
func (s *Server) Serve(ln net.Listener) error {
	if s.ReadTimeout > 0 || s.WriteTimeout > 0 {
		ln = &TimeoutListener{
			Listener:     ln,
			ReadTimeout:  s.ReadTimeout,
			WriteTimeout: s.WriteTimeout,
		}
	}

	wp := &workerPool{
		WorkerFunc:      s.serveConn,
		MaxWorkersCount: s.concurrency(),
		Logger:          s.logger(),
	}
	wp.Start()

	var lastOverflowLog time.Time
	for {
		c, err := acceptConn(ln, s.logger())
		if err != nil {
			wp.Stop()
			if err == io.EOF {
				return nil
			}
			return err
		}
		if !wp.Serve(c) {
			c.Close()
			if time.Since(lastOverflowLog) > time.Minute {
				s.logger().Printf("incoming connection dropped: %d concurrent connections already served", s.concurrency())
				lastOverflowLog = time.Now()
			}
		}
	}
}

func acceptConn(ln net.Listener, logger httpcore.Logger) (net.Conn, error) {
	for {
		c, err := ln.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				logger.Printf("temporary error accepting connection: %v", err)
				time.Sleep(time.Second)
				continue
			}
			return nil, err
		}
		return c, nil
	}
}

// serveConn is the "network reader" role of spec.md §5: it owns a
// fresh RequestParser per request and feeds it network bytes, while
// Handler runs concurrently in its own goroutine as soon as headers
// are ready, draining the body via BodyConduit's pull or push
// interface while this loop keeps offering the bytes still arriving
// on the wire. Pipelining is a core Non-goal, so each request's
// Handler goroutine is joined before the next request is read off the
// same connection.
func (s *Server) serveConn(c net.Conn) error {
	defer c.Close()

	br := bufio.NewReaderSize(c, s.readBufferSize())
	buf := make([]byte, s.readBufferSize())

	for {
		closed, err := s.serveOneRequest(c, br, buf)
		if err != nil {
			return err
		}
		if closed {
			return nil
		}
	}
}

// serveOneRequest parses one request off br. closed reports an EOF
// that arrived before the request's header block was complete (an
// idle connection shutting down, or a peer closing mid-headers), as
// opposed to a request-framing failure or an EOF inside the body.
func (s *Server) serveOneRequest(c net.Conn, br *bufio.Reader, buf []byte) (closed bool, err error) {
	var ex Exchange
	ex.Conn = c

	headersSeen := false
	handlerStarted := false
	continueDecision := httpcore.ContinueNotRequested
	handlerDone := make(chan struct{})

	parser := httpcore.NewRequestParser(s.Config, context.Background(), func(method, uri, protocol string, headers *httpcore.HeaderStore) {
		headersSeen = true
		ex.Method, ex.URI, ex.Protocol, ex.Headers = method, uri, protocol, headers
		continueDecision = httpcore.DecideContinue(headers)
	})

	rejected := false
	var offerErr error
	for !parser.Complete() {
		n, readErr := br.Read(buf)
		if n > 0 {
			offerErr = parser.Offer(buf[:n])
		}

		if offerErr == nil && headersSeen && !handlerStarted {
			switch continueDecision {
			case httpcore.ContinueShouldReject:
				// spec.md §6: an Expect header the server can't honor
				// gets 417 and the connection closes; Handler never
				// sees this request.
				s.respondToExpectation(c, continueDecision)
				offerErr = errExpectationRejected
				rejected = true
			default:
				handlerStarted = true
				ex.Trailers = parser.Trailers()
				ex.Conduit = parser.Conduit()
				go func() {
					defer close(handlerDone)
					if s.Handler != nil {
						s.Handler(&ex)
					}
				}()
				if continueDecision == httpcore.ContinueShouldSend {
					offerErr = s.respondToExpectation(c, continueDecision)
				}
			}
		}

		if offerErr != nil {
			break
		}
		if readErr != nil {
			if readErr == io.EOF {
				if !headersSeen {
					return true, nil
				}
				readErr = io.ErrUnexpectedEOF
			}
			offerErr = readErr
			break
		}
	}

	if handlerStarted {
		if offerErr != nil && ex.Conduit != nil {
			ex.Conduit.Abort(offerErr)
		}
		<-handlerDone
	}

	if offerErr != nil {
		if !rejected {
			var ire *httpcore.InvalidRequestError
			if errors.As(offerErr, &ire) {
				s.writeStatusLine(c, ire.Code)
			} else {
				s.writeStatusLine(c, httpcore.StatusInternalServerError)
				s.logger().Printf("connection %s<->%s: %v", c.LocalAddr(), c.RemoteAddr(), offerErr)
			}
		}
		return false, offerErr
	}

	return false, nil
}

// errExpectationRejected marks a request serveOneRequest already
// responded to (417 Expectation Failed) before ever handing an
// Exchange to Handler, so the generic error path in serveOneRequest
// must not write a second status line.
var errExpectationRejected = errors.New("request rejected: unsatisfiable 100-continue expectation")

// respondToExpectation writes the 100-continue interim response or
// the 417 rejection spec.md §6 describes, before body parsing
// continues.
func (s *Server) respondToExpectation(c net.Conn, decision httpcore.ContinueDecision) error {
	switch decision {
	case httpcore.ContinueShouldSend:
		_, err := io.WriteString(c, "HTTP/1.1 100 Continue\r\n\r\n")
		return err
	case httpcore.ContinueShouldReject:
		return s.writeStatusLine(c, httpcore.StatusExpectationFailed)
	}
	return nil
}

func (s *Server) writeStatusLine(c net.Conn, code int) error {
	_, err := fmt.Fprintf(c, "HTTP/1.1 %d %s\r\nConnection: close\r\nContent-Length: 0\r\n\r\n",
		code, httpcore.StatusMessage(code))
	return err
}
