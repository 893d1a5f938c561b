package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/amoylab/castwall/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mk(seq uint64) *frame.Frame {
	return &frame.Frame{Key: frame.TiledKey, Seq: seq, Data: []byte{byte(seq)}}
}

func TestQueue_DropOldest(t *testing.T) {
	q := New(10)
	for i := uint64(1); i <= 10; i++ {
		assert.False(t, q.Push(mk(i)))
		assert.LessOrEqual(t, q.Len(), q.Cap())
	}
	assert.Equal(t, 10, q.Len())

	// each push into a full queue evicts exactly one frame
	for i := uint64(11); i <= 25; i++ {
		assert.True(t, q.Push(mk(i)))
		assert.Equal(t, 10, q.Len())
	}
	var got []uint64
	for f := q.TryPop(); f != nil; f = q.TryPop() {
		got = append(got, f.Seq)
	}
	assert.Equal(t, []uint64{16, 17, 18, 19, 20, 21, 22, 23, 24, 25}, got)
	assert.Equal(t, uint64(15), q.Dropped())
}

func TestQueue_KeepsMostRecentInOrder(t *testing.T) {
	q := New(3)
	for i := uint64(1); i <= 7; i++ {
		q.Push(mk(i))
	}
	var got []uint64
	for f := q.TryPop(); f != nil; f = q.TryPop() {
		got = append(got, f.Seq)
	}
	assert.Equal(t, []uint64{5, 6, 7}, got)
	assert.Equal(t, uint64(4), q.Dropped())
}

func TestQueue_PopTimeout(t *testing.T) {
	q := New(2)
	start := time.Now()
	f, err := q.PopTimeout(30 * time.Millisecond)
	assert.Nil(t, f)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	q.Push(mk(1))
	f, err = q.PopTimeout(time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), f.Seq)
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := New(2)
	got := make(chan *frame.Frame, 1)
	go func() {
		f, err := q.Pop(context.Background())
		if err == nil {
			got <- f
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(mk(42))
	select {
	case f := <-got:
		assert.Equal(t, uint64(42), f.Seq)
	case <-time.After(time.Second):
		t.Fatal("reader was not woken by push")
	}
}

func TestQueue_PopContextCancel(t *testing.T) {
	q := New(2)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Pop(ctx)
		errCh <- err
	}()
	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("pop ignored cancellation")
	}
}

func TestQueue_CloseWakesReaders(t *testing.T) {
	q := New(4)
	q.Push(mk(1))
	q.Push(mk(2))
	_ = q.TryPop()

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	q2 := New(1)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q2.Pop(context.Background())
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, q2.Close())
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.ErrorIs(t, err, ErrClosed)
	}

	assert.Equal(t, 1, q.Close())
	assert.Equal(t, 0, q.Close())
	assert.True(t, q.Closed())
	assert.Equal(t, 0, q.Len())
	assert.False(t, q.Push(mk(3)))
	assert.Equal(t, 0, q.Len())
	_, err := q.PopTimeout(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueue_ConcurrentReadersDrainEverything(t *testing.T) {
	q := New(64)
	const n = 50
	for i := 1; i <= n; i++ {
		q.Push(mk(uint64(i)))
	}

	var mu sync.Mutex
	seen := map[uint64]bool{}
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				f, err := q.PopTimeout(50 * time.Millisecond)
				if err != nil {
					return
				}
				mu.Lock()
				seen[f.Seq] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestQueue_MinimumCapacity(t *testing.T) {
	q := New(0)
	assert.Equal(t, 1, q.Cap())
	q.Push(mk(1))
	assert.True(t, q.Push(mk(2)))
	assert.Equal(t, uint64(2), q.TryPop().Seq)
}
