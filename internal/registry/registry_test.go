package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/amoylab/castwall/internal/common/config"
	"github.com/amoylab/castwall/internal/frame"
	"github.com/amoylab/castwall/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() config.RegistryConfig {
	return config.RegistryConfig{
		ClientTimeout: 10 * time.Second,
		ReapInterval:  5 * time.Second,
		QueueCapacity: 10,
		MaxWindows:    10,
		FirstClientID: 1000,
	}
}

func newTestRegistry(clock *fakeClock, opts ...Option) *Registry {
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(zap.NewNop(), testConfig(), opts...)
}

func TestResolve_NewSession(t *testing.T) {
	r := newTestRegistry(newFakeClock())

	id := r.Resolve("")
	assert.True(t, id.NewSession)
	assert.True(t, id.NewClient)
	assert.Equal(t, int64(1000), id.ClientID)
	assert.Len(t, id.SessionID, 32)
	assert.Equal(t, 1, r.SessionCount())
	assert.Equal(t, 1, r.ClientCount())
}

func TestResolve_Idempotent(t *testing.T) {
	r := newTestRegistry(newFakeClock())

	first := r.Resolve("")
	for i := 0; i < 5; i++ {
		again := r.Resolve(first.SessionID)
		assert.Equal(t, first.ClientID, again.ClientID)
		assert.Equal(t, first.SessionID, again.SessionID)
		assert.False(t, again.NewSession)
		assert.False(t, again.NewClient)
	}
	assert.Equal(t, 1, r.ClientCount())
}

func TestResolve_DistinctSessionsGetDistinctIDs(t *testing.T) {
	r := newTestRegistry(newFakeClock())

	seen := make(map[int64]bool)
	for i := 0; i < 50; i++ {
		id := r.Resolve("")
		assert.False(t, seen[id.ClientID], "id %d handed out twice", id.ClientID)
		seen[id.ClientID] = true
	}
	assert.Equal(t, 50, r.SessionCount())
}

func TestResolve_ConcurrentCallers(t *testing.T) {
	r := newTestRegistry(newFakeClock())

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[int64]struct{})
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := r.Resolve("")
			mu.Lock()
			ids[id.ClientID] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, ids, 32)
}

func TestResolve_UnknownTokenGetsFreshSession(t *testing.T) {
	r := newTestRegistry(newFakeClock())

	id := r.Resolve("not-a-known-token")
	assert.True(t, id.NewSession)
	assert.NotEqual(t, "not-a-known-token", id.SessionID)
	assert.Equal(t, 1, r.SessionCount())
}

func TestResolve_StaleMappingAllocatesNewClient(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(clock)

	first := r.Resolve("")
	// simulate a mapping that outlived its client
	r.mu.Lock()
	delete(r.clients, first.ClientID)
	r.mu.Unlock()

	second := r.Resolve(first.SessionID)
	assert.True(t, second.NewClient)
	assert.NotEqual(t, first.ClientID, second.ClientID)
	assert.Equal(t, 1, r.SessionCount())

	_, ok := r.Queues(second.ClientID)
	assert.True(t, ok)
}

func TestTouch(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(clock)

	id := r.Resolve("")
	clock.Advance(8 * time.Second)
	assert.True(t, r.Touch(id.ClientID))
	clock.Advance(8 * time.Second)

	assert.Empty(t, r.Reap(clock.Now()))
	assert.False(t, r.Touch(4242))
}

func TestActiveCount(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(clock)

	a := r.Resolve("")
	clock.Advance(6 * time.Second)
	r.Resolve("")
	clock.Advance(5 * time.Second)

	assert.Equal(t, 1, r.ActiveCount(clock.Now()))
	assert.Equal(t, 2, r.ClientCount())

	sets := r.ActiveQueueSets(clock.Now())
	require.Len(t, sets, 1)
	assert.NotEqual(t, a.ClientID, sets[0].ClientID())
}

func TestActiveCount_BoundaryIsInclusive(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(clock)

	r.Resolve("")
	clock.Advance(10 * time.Second)
	assert.Equal(t, 1, r.ActiveCount(clock.Now()))
	assert.Empty(t, r.Reap(clock.Now()))

	clock.Advance(time.Millisecond)
	assert.Equal(t, 0, r.ActiveCount(clock.Now()))
}

func TestReap_RemovesClientSessionsAndQueues(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(clock)

	stale := r.Resolve("")
	set, ok := r.Queues(stale.ClientID)
	require.True(t, ok)
	set.Publish(&frame.Frame{Key: frame.TiledKey, Seq: 1})
	set.Publish(&frame.Frame{Key: frame.WindowKey(2), Seq: 1})
	winQ, ok := set.Queue(frame.WindowKey(2))
	require.True(t, ok)

	clock.Advance(7 * time.Second)
	fresh := r.Resolve("")
	clock.Advance(4 * time.Second)

	reaped := r.Reap(clock.Now())
	assert.Equal(t, []int64{stale.ClientID}, reaped)

	_, ok = r.Queues(stale.ClientID)
	assert.False(t, ok)
	assert.True(t, set.Closed())
	assert.True(t, winQ.Closed())
	assert.Equal(t, 0, winQ.Len())
	assert.Equal(t, 1, r.SessionCount())
	assert.False(t, r.Touch(stale.ClientID))

	_, ok = r.Queues(fresh.ClientID)
	assert.True(t, ok)

	// the old token now resolves to a brand new client
	again := r.Resolve(stale.SessionID)
	assert.True(t, again.NewClient)
	assert.NotEqual(t, stale.ClientID, again.ClientID)
	assert.NotEqual(t, fresh.ClientID, again.ClientID)
}

func TestReap_WakesBlockedConsumer(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(clock)

	id := r.Resolve("")
	set, _ := r.Queues(id.ClientID)
	q, _ := set.Queue(frame.TiledKey)

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Pop(context.Background())
		errCh <- err
	}()

	clock.Advance(11 * time.Second)
	r.Reap(clock.Now())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, queue.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer was not woken by reap")
	}
}

func TestReap_IDsAreNotReused(t *testing.T) {
	clock := newFakeClock()
	r := newTestRegistry(clock)

	first := r.Resolve("")
	clock.Advance(11 * time.Second)
	r.Reap(clock.Now())

	second := r.Resolve("")
	assert.Greater(t, second.ClientID, first.ClientID)
}

func TestEvents(t *testing.T) {
	clock := newFakeClock()
	var (
		mu     sync.Mutex
		events []Event
	)
	r := newTestRegistry(clock, WithObserver(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}))

	id := r.Resolve("")
	r.Resolve(id.SessionID)
	clock.Advance(15 * time.Second)
	r.Reap(clock.Now())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, EventClientCreated, events[0].Type)
	assert.Equal(t, id.SessionID, events[0].SessionID)
	assert.Equal(t, EventClientReaped, events[1].Type)
	assert.Equal(t, id.ClientID, events[1].ClientID)
	assert.Equal(t, 15*time.Second, events[1].IdleFor)
}

func TestObserverMayCallBack(t *testing.T) {
	clock := newFakeClock()
	var r *Registry
	counts := make(chan int, 4)
	r = newTestRegistry(clock, WithObserver(func(Event) {
		counts <- r.ClientCount()
	}))

	r.Resolve("")
	assert.Equal(t, 1, <-counts)
}

func TestDump(t *testing.T) {
	clock := newFakeClock()
	seq := 0
	r := newTestRegistry(clock, WithSessionIDGenerator(func() string {
		seq++
		return fmt.Sprintf("session-%02d-0123456789", seq)
	}))

	a := r.Resolve("")
	clock.Advance(12 * time.Second)
	b := r.Resolve("")
	clock.Advance(1500 * time.Millisecond)

	infos := r.Dump(clock.Now())
	require.Len(t, infos, 2)

	assert.Equal(t, a.ClientID, infos[0].ID)
	assert.False(t, infos[0].Active)
	assert.Equal(t, 13500*time.Millisecond, infos[0].Age)
	assert.Equal(t, []string{"session-01-0123456789"}, infos[0].Sessions)

	assert.Equal(t, b.ClientID, infos[1].ID)
	assert.True(t, infos[1].Active)
	assert.Equal(t, []string{"session-02-0123456789"}, infos[1].Sessions)
}

func TestClose(t *testing.T) {
	r := newTestRegistry(newFakeClock())
	id := r.Resolve("")
	set, _ := r.Queues(id.ClientID)

	r.Close()
	assert.True(t, set.Closed())
	assert.Equal(t, 0, r.ClientCount())
	assert.Equal(t, 0, r.SessionCount())
}

func TestAbbreviateSession(t *testing.T) {
	assert.Equal(t, "0123abcd...", AbbreviateSession("0123abcdef456789"))
	assert.Equal(t, "short", AbbreviateSession("short"))
}
