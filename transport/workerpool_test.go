package transport

import (
	"io"
	"net"
	"testing"
	"time"

	httpcore "github.com/rbirkby/muserver-go"
)

func TestWorkerPoolStartStopSerial(t *testing.T) {
	t.Parallel()
	testWorkerPoolStartStop(t)
}

func TestWorkerPoolStartStopConcurrent(t *testing.T) {
	t.Parallel()

	concurrency := 10
	ch := make(chan struct{}, concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			testWorkerPoolStartStop(t)
			ch <- struct{}{}
		}()
	}
	for i := 0; i < concurrency; i++ {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("timeout")
		}
	}
}

func testWorkerPoolStartStop(t *testing.T) {
	wp := &workerPool{
		WorkerFunc:      func(conn net.Conn) error { return nil },
		MaxWorkersCount: 10,
		Logger:          httpcore.DefaultLogger(),
	}
	for i := 0; i < 10; i++ {
		wp.Start()
		wp.Stop()
	}
}

func TestWorkerPoolServesAcceptedConnections(t *testing.T) {
	t.Parallel()

	ready := make(chan struct{})
	wp := &workerPool{
		WorkerFunc: func(conn net.Conn) error {
			buf := make([]byte, 6)
			if _, err := io.ReadFull(conn, buf); err != nil {
				t.Errorf("read: %v", err)
			}
			if string(buf) != "foobar" {
				t.Errorf("read %q, want foobar", buf)
			}
			if _, err := conn.Write([]byte("baz")); err != nil {
				t.Errorf("write: %v", err)
			}
			<-ready
			return conn.Close()
		},
		MaxWorkersCount: 4,
		Logger:          httpcore.DefaultLogger(),
	}
	wp.Start()
	defer wp.Stop()

	const n = 4
	clientCh := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		server, client := net.Pipe()
		go func(client net.Conn) {
			if _, err := client.Write([]byte("foobar")); err != nil {
				t.Errorf("write: %v", err)
			}
			buf := make([]byte, 3)
			if _, err := io.ReadFull(client, buf); err != nil {
				t.Errorf("read: %v", err)
			}
			if string(buf) != "baz" {
				t.Errorf("read %q, want baz", buf)
			}
			clientCh <- struct{}{}
		}(client)
		if !wp.Serve(server) {
			t.Fatalf("worker pool should have capacity for connection %d", i)
		}
	}

	close(ready)
	for i := 0; i < n; i++ {
		select {
		case <-clientCh:
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for client %d", i)
		}
	}
}
