package transport

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	httpcore "github.com/rbirkby/muserver-go"
)

// TestServeConnStreamsBodyConcurrentlyWithHandler demonstrates spec.md
// §5's two-role model: Handler runs in its own goroutine and observes
// body bytes as they arrive, rather than only after the whole request
// has been read off the wire.
func TestServeConnStreamsBodyConcurrentlyWithHandler(t *testing.T) {
	t.Parallel()

	server, client := net.Pipe()

	handlerSawFirstByte := make(chan struct{})
	handlerDone := make(chan struct{})

	s := &Server{
		Handler: func(ex *Exchange) {
			defer close(handlerDone)
			if ex.Conduit == nil {
				t.Errorf("Exchange.Conduit is nil for a request with a declared body")
				return
			}
			b, err := ex.Conduit.ReadByte()
			if err != nil {
				t.Errorf("ReadByte: %v", err)
				return
			}
			if b != 'a' {
				t.Errorf("first body byte = %q, want 'a'", b)
			}
			close(handlerSawFirstByte)

			rest := make([]byte, 4)
			if _, err := io.ReadFull(ex.Conduit, rest); err != nil {
				t.Errorf("ReadFull rest of body: %v", err)
				return
			}
			if string(rest) != "bcde" {
				t.Errorf("rest of body = %q, want bcde", rest)
			}
		},
		Logger: httpcore.DefaultLogger(),
	}

	servedDone := make(chan error, 1)
	go func() { servedDone <- s.serveConn(server) }()

	req := "POST /upload HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\na"
	if _, err := client.Write([]byte(req)); err != nil {
		t.Fatalf("write headers + first body byte: %v", err)
	}

	select {
	case <-handlerSawFirstByte:
	case <-time.After(time.Second):
		t.Fatalf("Handler did not observe the first body byte before the rest was sent")
	}

	if _, err := client.Write([]byte("bcde")); err != nil {
		t.Fatalf("write rest of body: %v", err)
	}

	select {
	case <-handlerDone:
	case <-time.After(time.Second):
		t.Fatalf("Handler did not complete")
	}

	client.Close()
	select {
	case <-servedDone:
	case <-time.After(time.Second):
		t.Fatalf("serveConn did not return after the connection closed")
	}
}

// TestServeConnWritesContinueBeforeBody checks that a 100-continue
// interim response is written as soon as headers are ready, ahead of
// the body that follows it on the wire.
func TestServeConnWritesContinueBeforeBody(t *testing.T) {
	t.Parallel()

	server, client := net.Pipe()

	handlerDone := make(chan struct{})
	s := &Server{
		Handler: func(ex *Exchange) {
			defer close(handlerDone)
			if ex.Conduit != nil {
				io.Copy(io.Discard, ex.Conduit)
			}
		},
		Logger: httpcore.DefaultLogger(),
	}

	servedDone := make(chan error, 1)
	go func() { servedDone <- s.serveConn(server) }()

	req := "POST /upload HTTP/1.1\r\nHost: x\r\nExpect: 100-continue\r\nContent-Length: 3\r\n\r\n"
	writeDone := make(chan struct{})
	go func() {
		if _, err := client.Write([]byte(req)); err != nil {
			t.Errorf("write request: %v", err)
		}
		close(writeDone)
	}()

	br := bufio.NewReader(client)
	statusLine, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if statusLine != "HTTP/1.1 100 Continue\r\n" {
		t.Fatalf("status line = %q, want 100 Continue", statusLine)
	}
	if blank, err := br.ReadString('\n'); err != nil || blank != "\r\n" {
		t.Fatalf("blank line after status = %q, %v", blank, err)
	}

	select {
	case <-writeDone:
	case <-time.After(time.Second):
		t.Fatalf("timeout writing request")
	}

	if _, err := client.Write([]byte("abc")); err != nil {
		t.Fatalf("write body: %v", err)
	}

	select {
	case <-handlerDone:
	case <-time.After(time.Second):
		t.Fatalf("Handler did not complete")
	}

	client.Close()
	select {
	case <-servedDone:
	case <-time.After(time.Second):
		t.Fatalf("serveConn did not return after the connection closed")
	}
}

// TestServeConnRejectsOversizedContinueExpectation checks the
// 417 Expectation Failed path DecideContinue drives.
func TestServeConnRejectsOversizedContinueExpectation(t *testing.T) {
	t.Parallel()

	server, client := net.Pipe()

	s := &Server{
		Handler: func(ex *Exchange) {
			if ex.Conduit != nil {
				io.Copy(io.Discard, ex.Conduit)
			}
		},
		Logger: httpcore.DefaultLogger(),
	}

	servedDone := make(chan error, 1)
	go func() { servedDone <- s.serveConn(server) }()

	req := "POST /upload HTTP/1.1\r\nHost: x\r\nExpect: 100-continue\r\nContent-Length: 99999999999\r\n\r\n"
	go func() {
		client.Write([]byte(req))
	}()

	br := bufio.NewReader(client)
	statusLine, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if statusLine != "HTTP/1.1 417 Expectation Failed\r\n" {
		t.Fatalf("status line = %q, want 417 Expectation Failed", statusLine)
	}

	client.Close()
	select {
	case <-servedDone:
	case <-time.After(time.Second):
		t.Fatalf("serveConn did not return after the connection closed")
	}
}
