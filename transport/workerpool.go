package transport

import (
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	httpcore "github.com/rbirkby/muserver-go"
)

// ServeHandler serves a single accepted connection end to end. It
// must close c before returning.
type ServeHandler func(c net.Conn) error

// workerPool dispatches accepted connections to a pool of workers in
// FILO order, i.e. the most recently idle worker serves the next
// incoming connection. Kept from fasthttp's workerpool.go nearly
// verbatim (the FILO stack keeps CPU caches hot); only the
// request/response-specific error classification in workerFunc was
// dropped, since this package has no response layer to blame errors
// on.
type workerPool struct {
	workerChanPool sync.Pool

	Logger httpcore.Logger

	ready      workerChanStack
	WorkerFunc ServeHandler

	stopCh chan struct{}

	MaxWorkersCount int

	MaxIdleWorkerDuration time.Duration

	workersCount int32

	mustStop atomic.Bool
}

type workerChan struct {
	next *workerChan

	ch chan net.Conn

	lastUseTime int64
}

type workerChanStack struct {
	head, tail *workerChan
}

func (s *workerChanStack) push(ch *workerChan) {
	ch.next = s.head
	s.head = ch
	if s.tail == nil {
		s.tail = ch
	}
}

func (s *workerChanStack) pop() *workerChan {
	head := s.head
	if head == nil {
		return nil
	}
	s.head = head.next
	if s.head == nil {
		s.tail = nil
	}
	return head
}

func (wp *workerPool) Start() {
	if wp.stopCh != nil {
		return
	}
	wp.stopCh = make(chan struct{})
	stopCh := wp.stopCh
	wp.workerChanPool.New = func() any {
		return &workerChan{
			ch: make(chan net.Conn, workerChanCap),
		}
	}
	go func() {
		for {
			wp.clean()
			select {
			case <-stopCh:
				return
			default:
				time.Sleep(wp.getMaxIdleWorkerDuration())
			}
		}
	}()
}

func (wp *workerPool) Stop() {
	if wp.stopCh == nil {
		return
	}
	close(wp.stopCh)
	wp.stopCh = nil

	for {
		ch := wp.ready.pop()
		if ch == nil {
			break
		}
		ch.ch <- nil
	}
	wp.mustStop.Store(true)
}

func (wp *workerPool) getMaxIdleWorkerDuration() time.Duration {
	if wp.MaxIdleWorkerDuration <= 0 {
		return 10 * time.Second
	}
	return wp.MaxIdleWorkerDuration
}

func (wp *workerPool) clean() {
	maxIdleWorkerDuration := wp.getMaxIdleWorkerDuration()
	criticalTime := time.Now().Add(-maxIdleWorkerDuration).UnixNano()

	current := wp.ready.head
	for current != nil {
		next := current.next
		if current.lastUseTime < criticalTime {
			current.ch <- nil
			wp.workerChanPool.Put(current)
		} else {
			wp.ready.head = current
			break
		}
		current = next
	}
	wp.ready.tail = wp.ready.head
}

func (wp *workerPool) Serve(c net.Conn) bool {
	ch := wp.getCh()
	if ch == nil {
		return false
	}
	ch.ch <- c
	return true
}

var workerChanCap = func() int {
	if runtime.GOMAXPROCS(0) == 1 {
		return 0
	}
	return 1
}()

func (wp *workerPool) getCh() *workerChan {
	var ch *workerChan
	var createWorker bool

	ch = wp.ready.pop()
	if ch == nil && atomic.LoadInt32(&wp.workersCount) < int32(wp.MaxWorkersCount) {
		atomic.AddInt32(&wp.workersCount, 1)
		createWorker = true
	}

	if ch == nil && createWorker {
		vch := wp.workerChanPool.Get()
		ch = vch.(*workerChan)
		go func() {
			wp.workerFunc(ch)
			wp.workerChanPool.Put(vch)
		}()
	}
	return ch
}

func (wp *workerPool) release(ch *workerChan) bool {
	ch.lastUseTime = time.Now().UnixNano()
	if wp.mustStop.Load() {
		return false
	}
	wp.ready.push(ch)
	return true
}

func (wp *workerPool) workerFunc(ch *workerChan) {
	var c net.Conn

	for c = range ch.ch {
		if c == nil {
			break
		}

		if err := wp.WorkerFunc(c); err != nil {
			wp.Logger.Printf("error serving connection %q<->%q: %v", c.LocalAddr(), c.RemoteAddr(), err)
		}

		if !wp.release(ch) {
			break
		}
	}

	atomic.AddInt32(&wp.workersCount, -1)
}
