package bodycodec

import (
	"bytes"
	"compress/gzip"
	"testing"
	"time"
)

type recordingListener struct {
	onData     func([]byte, func(error))
	onComplete func()
	onError    func(error)
}

func (l *recordingListener) OnData(data []byte, ack func(error)) { l.onData(data, ack) }
func (l *recordingListener) OnComplete()                         { l.onComplete() }
func (l *recordingListener) OnError(cause error)                 { l.onError(cause) }

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

func TestDecodingListenerGzipRoundTrip(t *testing.T) {
	compressed := gzipBytes(t, "the quick brown fox")

	var got []byte
	done := make(chan struct{})
	inner := &recordingListener{
		onData: func(data []byte, ack func(error)) {
			got = append(got, data...)
			ack(nil)
		},
		onComplete: func() { close(done) },
		onError:    func(err error) { t.Fatalf("unexpected OnError: %v", err) },
	}

	l := NewDecodingListener(Gzip, inner)

	// Deliver the compressed payload split across two chunks, as a
	// conduit's producer side would.
	mid := len(compressed) / 2
	ackCh := make(chan error, 2)
	l.OnData(compressed[:mid], func(err error) { ackCh <- err })
	l.OnData(compressed[mid:], func(err error) { ackCh <- err })
	for i := 0; i < 2; i++ {
		select {
		case err := <-ackCh:
			if err != nil {
				t.Fatalf("OnData ack err = %v", err)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for OnData ack %d", i)
		}
	}
	l.OnComplete()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for OnComplete")
	}

	if string(got) != "the quick brown fox" {
		t.Fatalf("decompressed = %q, want %q", got, "the quick brown fox")
	}
}

func TestDecodingListenerIdentityForwardsUnchanged(t *testing.T) {
	var got []byte
	done := make(chan struct{})
	inner := &recordingListener{
		onData: func(data []byte, ack func(error)) {
			got = append(got, data...)
			ack(nil)
		},
		onComplete: func() { close(done) },
		onError:    func(error) {},
	}

	l := NewDecodingListener(Identity, inner)
	l.OnData([]byte("raw"), func(error) {})
	l.OnComplete()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("OnComplete should have fired")
	}
	if string(got) != "raw" {
		t.Fatalf("got %q, want %q", got, "raw")
	}
}

func TestDecodingListenerPropagatesTruncatedStreamError(t *testing.T) {
	compressed := gzipBytes(t, "payload")
	truncated := compressed[:len(compressed)-4]

	errCh := make(chan error, 1)
	inner := &recordingListener{
		onData: func(_ []byte, ack func(error)) { ack(nil) },
		onComplete: func() {
			t.Fatalf("OnComplete should not fire for a truncated stream")
		},
		onError: func(err error) { errCh <- err },
	}

	l := NewDecodingListener(Gzip, inner)
	l.OnData(truncated, func(error) {})
	l.OnComplete()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected a non-nil decode error")
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for OnError")
	}
}
