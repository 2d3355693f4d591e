package httpcore

import (
	"context"
	"io"
	"sync"
	"time"
)

// BodyListener is the push-mode sink for a BodyConduit (spec.md §6).
// OnData is called with each buffer handed to the conduit, in arrival
// order; the listener must call ack exactly once per OnData call,
// with a non-nil error only if it wants to abandon the body.
// OnComplete fires once, after the last OnData call, when the producer
// closes the conduit; it does not wait for outstanding acks. OnError fires in place of a pending OnComplete
// if a protocol-internal error occurs; no OnComplete follows it.
type BodyListener interface {
	OnData(data []byte, ack func(error))
	OnComplete()
	OnError(cause error)
}

// BodyConduit is a bounded, thread-safe byte-buffer pipe carrying
// request body bytes from the network-reader goroutine (single
// producer) to the handler goroutine (single consumer), in either
// blocking-pull or push-listener mode (spec.md §4.2).
//
// Grounded on fasthttp's requestStream (streaming.go) for the pull
// side's read-cursor-over-owned-buffer shape, and on workerpool.go's
// channel-based wakeup idiom for the blocking-wait-with-timeout
// behaviour the teacher's own bufio.Reader.Read doesn't need (fasthttp
// never blocks a body read across goroutines; this conduit must,
// since producer and consumer live on different goroutines here).
type BodyConduit struct {
	cfg *Config
	ctx context.Context

	mu          sync.Mutex
	queue       []*ownedBuffer
	current     *ownedBuffer
	queuedBytes int64
	totalBytes  int64
	maxBytes    int64
	readTimeout time.Duration
	closed      bool
	err         error
	listener    BodyListener
	notifyCh    chan struct{}
}

// NewBodyConduit allocates an empty conduit governed by cfg. ctx may
// be nil; if non-nil, its cancellation surfaces as ErrInterrupted to
// a blocked Read/ReadByte call.
func NewBodyConduit(cfg *Config, ctx context.Context) *BodyConduit {
	return &BodyConduit{
		cfg:         cfg,
		ctx:         ctx,
		maxBytes:    cfg.maxBodyBytes(),
		readTimeout: cfg.readTimeout(),
		notifyCh:    make(chan struct{}),
	}
}

// wake must be called with mu held; it releases every goroutine
// currently blocked in Read/ReadByte so they can re-check state.
func (c *BodyConduit) wake() {
	close(c.notifyCh)
	c.notifyCh = make(chan struct{})
}

// HandOff is the producer-side entry point: it enqueues data (or
// forwards it to the installed listener), accumulates the byte
// budget, and invokes onDelivered once the bytes have been accepted
// or rejected. It never blocks the caller.
func (c *BodyConduit) HandOff(data []byte, onDelivered func(error)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		onDelivered(nil)
		return
	}

	newTotal := c.totalBytes + int64(len(data))
	if newTotal > c.maxBytes {
		c.mu.Unlock()
		onDelivered(newConduitError(ErrBodyTooLarge))
		return
	}
	c.totalBytes = newTotal

	if l := c.listener; l != nil {
		c.mu.Unlock()
		l.OnData(data, onDelivered)
		return
	}

	buf := newOwnedBuffer(data)
	c.queue = append(c.queue, buf)
	c.queuedBytes += int64(buf.len())
	c.wake()
	c.mu.Unlock()

	// The queue is unbounded in count (only bounded in total bytes),
	// so the queued path acknowledges immediately; the listener path
	// defers the ack until the listener itself consumes the buffer
	// (spec.md §4.2 "Backpressure").
	onDelivered(nil)
}

// Close is the producer-side end-of-body signal. It enqueues the END
// sentinel (pull mode) or notifies the listener that the body is
// complete (push mode). Idempotent: a second call is a no-op.
func (c *BodyConduit) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true

	if l := c.listener; l != nil {
		c.mu.Unlock()
		l.OnComplete()
		return
	}
	c.wake()
	c.mu.Unlock()
}

// Abort closes the conduit with cause recorded as its terminal error.
// If a listener is installed, OnError(cause) fires instead of
// OnComplete; no further OnComplete call follows (spec.md §7).
func (c *BodyConduit) Abort(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.err = cause

	if l := c.listener; l != nil {
		c.mu.Unlock()
		l.OnError(cause)
		return
	}
	c.wake()
	c.mu.Unlock()
}

// Available returns the number of bytes currently buffered for pull,
// without waiting.
func (c *BodyConduit) Available() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.queuedBytes
	if c.current != nil {
		n += int64(c.current.len())
	}
	return int(n)
}

// Read implements the blocking pull interface. It returns io.EOF once
// the END sentinel has been observed and all buffered bytes drained
// (the Go-idiomatic analogue of spec.md §4.2's "-1" sentinel return).
func (c *BodyConduit) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		c.mu.Lock()
		if c.listener != nil {
			c.mu.Unlock()
			return 0, ErrPullAfterListenerInstalled
		}
		if c.current == nil || c.current.len() == 0 {
			if c.current != nil {
				c.current.release()
				c.current = nil
			}
			if len(c.queue) > 0 {
				c.current = c.queue[0]
				c.queue = c.queue[1:]
				c.queuedBytes -= int64(c.current.len())
			}
		}
		if c.current != nil && c.current.len() > 0 {
			n := copy(p, c.current.bytes())
			c.current.advance(n)
			c.mu.Unlock()
			return n, nil
		}
		if c.err != nil {
			err := c.err
			c.mu.Unlock()
			return 0, err
		}
		if c.closed {
			c.mu.Unlock()
			return 0, io.EOF
		}
		ch := c.notifyCh
		c.mu.Unlock()

		if err := c.wait(ch); err != nil {
			return 0, err
		}
	}
}

// ReadByte satisfies io.ByteReader so a BodyConduit composes directly
// with bufio.Reader-based consumers.
func (c *BodyConduit) ReadByte() (byte, error) {
	var b [1]byte
	n, err := c.Read(b[:])
	if n == 1 {
		return b[0], nil
	}
	return 0, err
}

func (c *BodyConduit) wait(ch chan struct{}) error {
	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if c.readTimeout > 0 {
		timer = time.NewTimer(c.readTimeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}
	var doneCh <-chan struct{}
	if c.ctx != nil {
		doneCh = c.ctx.Done()
	}
	select {
	case <-ch:
		return nil
	case <-timeoutCh:
		return newConduitError(ErrReadTimeout)
	case <-doneCh:
		return newConduitError(ErrInterrupted)
	}
}

// SwitchToListener atomically drains any queued buffers to l in FIFO
// order and installs l as the push sink. Per spec.md §9 this module
// prefers fail-fast over idempotent-replace: a second call returns
// ErrListenerAlreadyInstalled and leaves the existing listener and any
// already-queued state untouched.
func (c *BodyConduit) SwitchToListener(l BodyListener) error {
	c.mu.Lock()
	if c.listener != nil {
		c.mu.Unlock()
		return ErrListenerAlreadyInstalled
	}
	c.listener = l
	pending := c.queue
	current := c.current
	c.queue = nil
	c.current = nil
	c.queuedBytes = 0
	wasClosed := c.closed
	cause := c.err
	c.mu.Unlock()

	if current != nil && current.len() > 0 {
		data := append([]byte(nil), current.bytes()...)
		current.release()
		l.OnData(data, func(error) {})
	} else if current != nil {
		current.release()
	}
	for _, buf := range pending {
		data := append([]byte(nil), buf.bytes()...)
		buf.release()
		l.OnData(data, func(error) {})
	}
	if cause != nil {
		l.OnError(cause)
	} else if wasClosed {
		l.OnComplete()
	}
	return nil
}
