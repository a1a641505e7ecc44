package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/viewportly/pkg/queue"
)

func storages(t *testing.T) map[string]queue.Storage {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]queue.Storage{
		"memory": queue.NewMemoryStorage(8),
		"redis":  queue.NewRedisStorage(client, "test:inbox"),
	}
}

func TestStorage(t *testing.T) {
	t.Parallel()

	for name, storage := range storages(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			msg, err := storage.Pop(ctx, 10*time.Millisecond)
			require.NoError(t, err)
			assert.Nil(t, msg, "empty storage times out with nil")

			require.NoError(t, storage.Push(ctx, queue.Message{ID: "1", Body: []byte("a")}))
			require.NoError(t, storage.Push(ctx, queue.Message{ID: "2", Body: []byte("b")}))

			n, err := storage.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			first, err := storage.Pop(ctx, time.Second)
			require.NoError(t, err)
			require.NotNil(t, first)
			assert.Equal(t, "1", first.ID)
			assert.Equal(t, []byte("a"), first.Body)

			second, err := storage.Pop(ctx, time.Second)
			require.NoError(t, err)
			require.NotNil(t, second)
			assert.Equal(t, "2", second.ID)

			require.NoError(t, storage.DeadLetter(ctx, queue.Message{ID: "dead", Attempt: 5, LastError: "boom"}))
			dead, err := storage.DeadLetters(ctx, 10)
			require.NoError(t, err)
			require.Len(t, dead, 1)
			assert.Equal(t, "dead", dead[0].ID)
			assert.Equal(t, 5, dead[0].Attempt)
			assert.Equal(t, "boom", dead[0].LastError)
		})
	}
}

func TestMemoryStorageFull(t *testing.T) {
	t.Parallel()
	s := queue.NewMemoryStorage(1)
	require.NoError(t, s.Push(context.Background(), queue.Message{ID: "1"}))
	assert.ErrorIs(t, s.Push(context.Background(), queue.Message{ID: "2"}), queue.ErrQueueFull)
}

func TestEnqueuer(t *testing.T) {
	t.Parallel()
	s := queue.NewMemoryStorage(4)
	e, err := queue.NewEnqueuer(s)
	require.NoError(t, err)

	id, err := e.Enqueue(context.Background(), "", []byte("payload"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	id2, err := e.Enqueue(context.Background(), "evt_1", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", id2)

	_, err = e.Enqueue(context.Background(), "", nil)
	assert.ErrorIs(t, err, queue.ErrEmptyBody)

	msg, err := s.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, id, msg.ID)
	assert.False(t, msg.EnqueuedAt.IsZero())

	_, err = queue.NewEnqueuer(nil)
	assert.ErrorIs(t, err, queue.ErrStorageNil)
}
