package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var processed int64
	done := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		if atomic.AddInt64(&processed, 1) == 3 {
			close(done)
		}
		return nil
	}, QueueConfig{Workers: 2})

	q.Start(context.Background())
	defer q.Stop()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(Job{ID: id, Type: "noop"}))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs not processed in time")
	}
	require.EqualValues(t, 3, atomic.LoadInt64(&processed))
}

func TestQueueCancelDropsPendingJob(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]bool)
	gate := make(chan struct{})

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		if job.ID == "blocker" {
			<-gate
			return nil
		}
		mu.Lock()
		seen[job.ID] = true
		mu.Unlock()
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 8})

	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "blocker"}))
	require.NoError(t, q.Enqueue(Job{ID: "doomed"}))
	require.NoError(t, q.Enqueue(Job{ID: "survivor"}))

	q.Cancel("doomed")
	close(gate)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen["survivor"]
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.False(t, seen["doomed"])
}

func TestQueueEnqueueClearsStaleCancellation(t *testing.T) {
	var processed int64
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt64(&processed, 1)
		return nil
	}, QueueConfig{Workers: 1})

	q.Start(context.Background())
	defer q.Stop()

	q.Cancel("doc-1")
	require.NoError(t, q.Enqueue(Job{ID: "doc-1"}))

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&processed) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
