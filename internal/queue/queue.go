// Package queue implements the bounded drop-oldest frame queue that sits
// between the broadcast loop and one streaming consumer.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/amoylab/castwall/internal/frame"
)

var (
	// ErrClosed is returned by reads on a released queue
	ErrClosed = errors.New("queue closed")
	// ErrTimeout is returned when PopTimeout found nothing to read
	ErrTimeout = errors.New("queue read timed out")
)

// Queue is a fixed-capacity ring of frames. Push never blocks: when the
// ring is full the oldest frame is evicted to admit the new one, so the
// queue always holds the most recent frames. Any number of goroutines may
// read concurrently.
type Queue struct {
	mu      sync.Mutex
	buf     []*frame.Frame
	head    int // index of the oldest frame
	size    int
	closed  bool
	dropped uint64

	ready chan struct{} // holds one token while frames are waiting
	done  chan struct{} // closed by Close
}

// New creates a queue holding at most capacity frames
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		buf:   make([]*frame.Frame, capacity),
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Push admits f, evicting the oldest frame if the queue is full. It
// reports whether a frame was evicted. Pushing to a closed queue is a
// no-op.
func (q *Queue) Push(f *frame.Frame) (evicted bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if q.size == len(q.buf) {
		q.buf[q.head] = nil
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		q.dropped++
		evicted = true
	}
	q.buf[(q.head+q.size)%len(q.buf)] = f
	q.size++
	q.mu.Unlock()

	q.signal()
	return evicted
}

// Pop blocks until a frame is available, ctx ends or the queue is closed
func (q *Queue) Pop(ctx context.Context) (*frame.Frame, error) {
	for {
		f, more, err := q.tryPop()
		if err != nil || f != nil {
			if more {
				q.signal()
			}
			return f, err
		}
		select {
		case <-q.ready:
		case <-q.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// PopTimeout is Pop bounded by d; it returns ErrTimeout when d elapses
// without a frame.
func (q *Queue) PopTimeout(d time.Duration) (*frame.Frame, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	f, err := q.Pop(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrTimeout
	}
	return f, err
}

// TryPop returns the oldest frame without blocking, or nil
func (q *Queue) TryPop() *frame.Frame {
	f, more, _ := q.tryPop()
	if more {
		q.signal()
	}
	return f
}

func (q *Queue) tryPop() (f *frame.Frame, more bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, false, ErrClosed
	}
	if q.size == 0 {
		return nil, false, nil
	}
	f = q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return f, q.size > 0, nil
}

// signal leaves a wake-up token for one waiting reader
func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Close drains the queue and wakes every blocked reader with ErrClosed.
// It returns the number of frames discarded.
func (q *Queue) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}
	discarded := q.size
	for i := range q.buf {
		q.buf[i] = nil
	}
	q.head, q.size = 0, 0
	q.closed = true
	close(q.done)
	return discarded
}

// Len returns the number of queued frames
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the capacity
func (q *Queue) Cap() int { return len(q.buf) }

// Dropped returns how many frames were evicted by Push
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Closed reports whether Close was called
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
