package bodycodec

import (
	"io"

	httpcore "github.com/rbirkby/muserver-go"
)

// DecodingListener wraps an httpcore.BodyListener, decompressing each
// chunk handed to it by a BodyConduit before forwarding the
// decompressed bytes to Inner. It bridges the conduit's push-mode
// delivery to gzip/brotli's pull-based Read, since neither
// decompressor exposes a chunk-at-a-time push API: compressed chunks
// are written into an io.Pipe, and a background goroutine drains the
// decompressor and calls Inner.OnData with the result.
type DecodingListener struct {
	inner httpcore.BodyListener
	enc   Encoding

	pw     *io.PipeWriter
	doneCh chan struct{}
}

// NewDecodingListener returns a listener that decompresses according
// to enc before forwarding to inner. For Identity it forwards
// unchanged with no extra goroutine or buffering.
func NewDecodingListener(enc Encoding, inner httpcore.BodyListener) *DecodingListener {
	l := &DecodingListener{inner: inner, enc: enc}
	if enc == Identity {
		return l
	}
	pr, pw := io.Pipe()
	l.pw = pw
	l.doneCh = make(chan struct{})
	go l.decodeLoop(pr)
	return l
}

func (l *DecodingListener) decodeLoop(pr *io.PipeReader) {
	defer close(l.doneCh)

	if l.enc == Gzip {
		zr, err := acquireGzipReader(pr)
		if err != nil {
			pr.CloseWithError(err)
			l.inner.OnError(err)
			return
		}
		defer releaseGzipReader(zr)
		l.drain(zr, pr)
		return
	}

	r, err := NewDecodingReader(l.enc, pr)
	if err != nil {
		pr.CloseWithError(err)
		l.inner.OnError(err)
		return
	}
	l.drain(r, pr)
}

func (l *DecodingListener) drain(r io.Reader, pr *io.PipeReader) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			ackErr := make(chan error, 1)
			l.inner.OnData(data, func(e error) { ackErr <- e })
			if e := <-ackErr; e != nil {
				pr.CloseWithError(e)
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				l.inner.OnComplete()
			} else {
				l.inner.OnError(err)
			}
			pr.CloseWithError(err)
			return
		}
	}
}

// OnData implements httpcore.BodyListener.
func (l *DecodingListener) OnData(data []byte, ack func(error)) {
	if l.enc == Identity {
		l.inner.OnData(data, ack)
		return
	}
	_, err := l.pw.Write(data)
	ack(err)
}

// OnComplete implements httpcore.BodyListener.
func (l *DecodingListener) OnComplete() {
	if l.enc == Identity {
		l.inner.OnComplete()
		return
	}
	l.pw.Close()
	<-l.doneCh
}

// OnError implements httpcore.BodyListener.
func (l *DecodingListener) OnError(cause error) {
	if l.enc == Identity {
		l.inner.OnError(cause)
		return
	}
	l.pw.CloseWithError(cause)
	<-l.doneCh
}
