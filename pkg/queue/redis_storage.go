package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps messages in a Redis list (LPUSH/BRPOP) and dead letters
// in a second list suffixed with ":dlq".
type RedisStorage struct {
	client redis.UniversalClient
	key    string
	dlqKey string
}

// NewRedisStorage stores messages in the Redis list key.
func NewRedisStorage(client redis.UniversalClient, key string) *RedisStorage {
	return &RedisStorage{client: client, key: key, dlqKey: key + ":dlq"}
}

// Push appends msg to the list.
func (s *RedisStorage) Push(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.client.LPush(ctx, s.key, data).Err()
}

// Pop blocks up to timeout and returns nil on timeout.
func (s *RedisStorage) Pop(ctx context.Context, timeout time.Duration) (*Message, error) {
	res, err := s.client.BRPop(ctx, timeout, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BRPOP replies with [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("%w: unexpected BRPOP reply of %d items", ErrMalformedMessage, len(res))
	}

	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return nil, errors.Join(ErrMalformedMessage, err)
	}
	return &msg, nil
}

// DeadLetter appends msg to the dead-letter list.
func (s *RedisStorage) DeadLetter(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := s.client.RPush(ctx, s.dlqKey, data).Err(); err != nil {
		return errors.Join(ErrFailedToMoveToDLQ, err)
	}
	return nil
}

// DeadLetters returns up to limit dead messages.
func (s *RedisStorage) DeadLetters(ctx context.Context, limit int) ([]Message, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raw, err := s.client.LRange(ctx, s.dlqKey, 0, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, errors.Join(ErrMalformedMessage, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// Len returns the number of queued messages.
func (s *RedisStorage) Len(ctx context.Context) (int64, error) {
	return s.client.LLen(ctx, s.key).Result()
}
