package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Enqueuer assigns ids and timestamps to new messages.
type Enqueuer struct {
	storage Storage
	now     func() time.Time
}

// NewEnqueuer creates an Enqueuer over storage.
func NewEnqueuer(storage Storage) (*Enqueuer, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}
	return &Enqueuer{storage: storage, now: time.Now}, nil
}

// Enqueue stores body under id, generating an id when empty.
func (e *Enqueuer) Enqueue(ctx context.Context, id string, body []byte) (string, error) {
	if len(body) == 0 {
		return "", ErrEmptyBody
	}
	if id == "" {
		id = uuid.NewString()
	}
	msg := Message{ID: id, Body: body, EnqueuedAt: e.now().UTC()}
	if err := e.storage.Push(ctx, msg); err != nil {
		return "", err
	}
	return id, nil
}
