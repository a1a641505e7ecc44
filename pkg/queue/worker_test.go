package queue_test

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

	"github.com/dmitrymomot/viewportly/pkg/logger"
	"github.com/dmitrymomot/viewportly/pkg/queue"
	"github.com/dmitrymomot/viewportly/pkg/retry"
)

func startWorker(t *testing.T, storage queue.Storage, h queue.Handler, opts ...queue.WorkerOption) *queue.Worker {
	t.Helper()
	opts = append([]queue.WorkerOption{
		queue.WithPollTimeout(10 * time.Millisecond),
		queue.WithRetryBackoff(retry.FixedBackoff{Interval: 5 * time.Millisecond}),
		queue.WithWorkerLogger(logger.Noop()),
	}, opts...)
	w, err := queue.NewWorker(storage, h, opts...)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	return w
}

func TestWorkerProcessesAllMessages(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage(100)
	var mu sync.Mutex
	seen := map[string]bool{}

	w := startWorker(t, storage, func(_ context.Context, msg queue.Message) error {
		mu.Lock()
		seen[msg.ID] = true
		mu.Unlock()
		return nil
	}, queue.WithConcurrency(4))

	for i := range 50 {
		require.NoError(t, storage.Push(context.Background(), queue.Message{ID: fmt.Sprint(i), Body: []byte("x")}))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 50
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, w.Stop())
}

func TestWorkerRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage(10)
	var calls atomic.Int32
	attempts := make(chan int, 10)

	w := startWorker(t, storage, func(_ context.Context, msg queue.Message) error {
		attempts <- msg.Attempt
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, storage.Push(context.Background(), queue.Message{ID: "m1"}))

	assert.Eventually(t, func() bool { return calls.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop())

	close(attempts)
	var got []int
	for a := range attempts {
		got = append(got, a)
	}
	assert.Equal(t, []int{1, 2, 3}, got)

	dead, err := storage.DeadLetters(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, dead)
}

func TestWorkerDeadLetters(t *testing.T) {
	t.Parallel()

	t.Run("after max attempts", func(t *testing.T) {
		t.Parallel()
		storage := queue.NewMemoryStorage(10)
		var calls atomic.Int32
		w := startWorker(t, storage, func(context.Context, queue.Message) error {
			calls.Add(1)
			return errors.New("always fails")
		}, queue.WithMaxAttempts(3))
		require.NoError(t, storage.Push(context.Background(), queue.Message{ID: "m1"}))

		assert.Eventually(t, func() bool {
			dead, _ := storage.DeadLetters(context.Background(), 0)
			return len(dead) == 1
		}, 2*time.Second, 5*time.Millisecond)
		require.NoError(t, w.Stop())

		dead, _ := storage.DeadLetters(context.Background(), 0)
		assert.Equal(t, 3, dead[0].Attempt)
		assert.Equal(t, "always fails", dead[0].LastError)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("skip retry", func(t *testing.T) {
		t.Parallel()
		storage := queue.NewMemoryStorage(10)
		w := startWorker(t, storage, func(context.Context, queue.Message) error {
			return fmt.Errorf("bad payload: %w", queue.ErrSkipRetry)
		})
		require.NoError(t, storage.Push(context.Background(), queue.Message{ID: "m1"}))

		assert.Eventually(t, func() bool {
			dead, _ := storage.DeadLetters(context.Background(), 0)
			return len(dead) == 1 && dead[0].Attempt == 1
		}, 2*time.Second, 5*time.Millisecond)
		require.NoError(t, w.Stop())
	})

	t.Run("panic is recovered", func(t *testing.T) {
		t.Parallel()
		storage := queue.NewMemoryStorage(10)
		w := startWorker(t, storage, func(context.Context, queue.Message) error {
			panic("kaboom")
		}, queue.WithMaxAttempts(1))
		require.NoError(t, storage.Push(context.Background(), queue.Message{ID: "m1"}))

		assert.Eventually(t, func() bool {
			dead, _ := storage.DeadLetters(context.Background(), 0)
			return len(dead) == 1
		}, 2*time.Second, 5*time.Millisecond)
		require.NoError(t, w.Stop())
	})
}

func TestWorkerStopFlushesPendingRetries(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage(10)
	handled := make(chan struct{}, 1)
	w, err := queue.NewWorker(storage, func(context.Context, queue.Message) error {
		handled <- struct{}{}
		return errors.New("fail")
	},
		queue.WithPollTimeout(10*time.Millisecond),
		queue.WithRetryBackoff(retry.FixedBackoff{Interval: time.Hour}),
		queue.WithWorkerLogger(logger.Noop()),
	)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, storage.Push(context.Background(), queue.Message{ID: "m1"}))

	<-handled
	require.NoError(t, w.Stop())

	n, err := storage.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "pending retry is pushed back on stop")
}

func TestWorkerLifecycle(t *testing.T) {
	t.Parallel()

	_, err := queue.NewWorker(nil, func(context.Context, queue.Message) error { return nil })
	assert.ErrorIs(t, err, queue.ErrStorageNil)

	_, err = queue.NewWorker(queue.NewMemoryStorage(1), nil)
	assert.ErrorIs(t, err, queue.ErrHandlerNil)

	w, err := queue.NewWorker(queue.NewMemoryStorage(1), func(context.Context, queue.Message) error { return nil },
		queue.WithPollTimeout(10*time.Millisecond), queue.WithWorkerLogger(logger.Noop()))
	require.NoError(t, err)
	assert.ErrorIs(t, w.Stop(), queue.ErrWorkerNotStarted)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx)() }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
