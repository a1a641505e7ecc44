package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryStorage is an in-process bounded Storage. Messages are lost on restart.
type MemoryStorage struct {
	ch chan Message

	mu   sync.Mutex
	dead []Message
}

// NewMemoryStorage creates a buffered in-process storage.
func NewMemoryStorage(capacity int) *MemoryStorage {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryStorage{ch: make(chan Message, capacity)}
}

// Push returns ErrQueueFull when the buffer is full.
func (s *MemoryStorage) Push(ctx context.Context, msg Message) error {
	select {
	case s.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Pop waits up to timeout for a message and returns nil on timeout.
func (s *MemoryStorage) Pop(ctx context.Context, timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-s.ch:
		return &msg, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DeadLetter keeps msg for inspection.
func (s *MemoryStorage) DeadLetter(_ context.Context, msg Message) error {
	s.mu.Lock()
	s.dead = append(s.dead, msg)
	s.mu.Unlock()
	return nil
}

// DeadLetters returns up to limit dead messages.
func (s *MemoryStorage) DeadLetters(_ context.Context, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.dead)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Message, n)
	copy(out, s.dead[:n])
	return out, nil
}

func (s *MemoryStorage) Len(context.Context) (int64, error) {
	return int64(len(s.ch)), nil
}
