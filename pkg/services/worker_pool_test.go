package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWorkerPool_Process_SubmissionOrder(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: 3}, zap.NewNop())

	// Later items finish first.
	items := make([]WorkItem[string], 3)
	for i := range items {
		delay := time.Duration(3-i) * 10 * time.Millisecond
		id := fmt.Sprintf("source_%d", i)
		items[i] = WorkItem[string]{
			ID: id,
			Execute: func(ctx context.Context) (string, error) {
				time.Sleep(delay)
				return "rows from " + id, nil
			},
		}
	}

	results := Process(context.Background(), pool, items, nil)

	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, items[i].ID, r.ID)
		assert.Equal(t, "rows from "+items[i].ID, r.Result)
		assert.NoError(t, r.Err)
	}
}

func TestWorkerPool_Process_WithErrors(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: 2}, zap.NewNop())

	expectedErr := errors.New("connector failed")
	items := []WorkItem[int]{
		{ID: "a", Execute: func(ctx context.Context) (int, error) { return 1, nil }},
		{ID: "b", Execute: func(ctx context.Context) (int, error) { return 0, expectedErr }},
		{ID: "c", Execute: func(ctx context.Context) (int, error) { return 3, nil }},
	}

	results := Process(context.Background(), pool, items, nil)

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, expectedErr)
	assert.Equal(t, 3, results[2].Result)
}

func TestWorkerPool_Process_BoundedConcurrency(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: 2}, zap.NewNop())

	var current, peak int32
	items := make([]WorkItem[struct{}], 8)
	for i := range items {
		items[i] = WorkItem[struct{}]{
			ID: fmt.Sprintf("item_%d", i),
			Execute: func(ctx context.Context) (struct{}, error) {
				n := atomic.AddInt32(&current, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&current, -1)
				return struct{}{}, nil
			},
		}
	}

	Process(context.Background(), pool, items, nil)

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestWorkerPool_Process_Progress(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: 4}, zap.NewNop())

	items := make([]WorkItem[int], 5)
	for i := range items {
		items[i] = WorkItem[int]{ID: fmt.Sprint(i), Execute: func(ctx context.Context) (int, error) { return i, nil }}
	}

	var mu sync.Mutex
	var seen []int
	Process(context.Background(), pool, items, func(completed, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 5, total)
		seen = append(seen, completed)
	})

	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5}, seen)
}

func TestWorkerPool_Process_CancelledContext(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: 1}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	// Whichever item takes the only slot blocks until released.
	execute := func(ctx context.Context) (int, error) {
		once.Do(func() { close(started) })
		<-release
		return 1, nil
	}
	items := []WorkItem[int]{
		{ID: "a", Execute: execute},
		{ID: "b", Execute: execute},
		{ID: "c", Execute: execute},
	}

	var results []WorkResult[int]
	finished := make(chan struct{})
	go func() {
		results = Process(ctx, pool, items, nil)
		close(finished)
	}()

	<-started
	cancel()
	// Let the waiting items observe the cancellation before the slot frees.
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-finished

	require.Len(t, results, 3)
	var ok, cancelled int
	for _, r := range results {
		if r.Err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, r.Err, context.Canceled)
		cancelled++
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 2, cancelled)
}

func TestWorkerPool_Process_Empty(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{}, zap.NewNop())
	assert.Nil(t, Process[int](context.Background(), pool, nil, nil))
	assert.Equal(t, 8, pool.config.MaxConcurrent)
}
