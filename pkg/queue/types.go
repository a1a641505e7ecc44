package queue

import (
	"context"
	"time"
)

// Message is one unit of work travelling through a Storage.
type Message struct {
	ID         string    `json:"id"`
	Body       []byte    `json:"body"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	LastError  string    `json:"last_error,omitempty"`
}

// Storage is a FIFO with a dead-letter side list.
type Storage interface {
	Push(ctx context.Context, msg Message) error
	// Pop waits up to timeout for a message. It returns (nil, nil) when the
	// wait expires with nothing available.
	Pop(ctx context.Context, timeout time.Duration) (*Message, error)
	DeadLetter(ctx context.Context, msg Message) error
	DeadLetters(ctx context.Context, limit int) ([]Message, error)
	Len(ctx context.Context) (int64, error)
}

// Handler processes a message. Returning an error schedules a retry unless
// the error wraps ErrSkipRetry.
type Handler func(ctx context.Context, msg Message) error
