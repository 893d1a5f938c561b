package registry

import (
	"sort"
	"sync"

	"github.com/amoylab/castwall/internal/frame"
	"github.com/amoylab/castwall/internal/queue"
)

// QueueSet holds the queues of one client: one for the tiled feed and one
// per window slot. Window queues are created on first publish.
type QueueSet struct {
	clientID   int64
	capacity   int
	maxWindows int

	mu      sync.Mutex
	tiled   *queue.Queue
	windows map[int]*queue.Queue
	closed  bool
}

func newQueueSet(clientID int64, capacity, maxWindows int) *QueueSet {
	return &QueueSet{
		clientID:   clientID,
		capacity:   capacity,
		maxWindows: maxWindows,
		tiled:      queue.New(capacity),
		windows:    make(map[int]*queue.Queue),
	}
}

// ClientID returns the owning client
func (s *QueueSet) ClientID() int64 { return s.clientID }

// Publish pushes f into the queue addressed by f.Key. It reports whether
// an older frame was evicted and whether the frame was accepted at all;
// frames for a closed set or an out-of-range window slot are rejected.
func (s *QueueSet) Publish(f *frame.Frame) (evicted, accepted bool) {
	q := s.queueFor(f.Key, true)
	if q == nil {
		return false, false
	}
	return q.Push(f), true
}

// Queue returns the queue for key if it exists
func (s *QueueSet) Queue(key frame.StreamKey) (*queue.Queue, bool) {
	q := s.queueFor(key, false)
	return q, q != nil
}

func (s *QueueSet) queueFor(key frame.StreamKey, create bool) *queue.Queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if key.IsTiled() {
		return s.tiled
	}
	idx, ok := key.WindowIndex()
	if !ok || idx >= s.maxWindows {
		return nil
	}
	q, ok := s.windows[idx]
	if !ok && create {
		q = queue.New(s.capacity)
		s.windows[idx] = q
	}
	return q
}

// Windows returns the populated window slots in ascending order
func (s *QueueSet) Windows() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.windows))
	for idx := range s.windows {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Closed reports whether the set was released
func (s *QueueSet) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// close drains and releases every queue, returning the discarded frame count
func (s *QueueSet) close() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	s.closed = true
	discarded := s.tiled.Close()
	for idx, q := range s.windows {
		discarded += q.Close()
		delete(s.windows, idx)
	}
	return discarded
}
