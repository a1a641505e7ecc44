package queue

import "errors"

var (
	ErrStorageNil        = errors.New("queue: storage cannot be nil")
	ErrHandlerNil        = errors.New("queue: handler cannot be nil")
	ErrEmptyBody         = errors.New("queue: message body cannot be empty")
	ErrQueueFull         = errors.New("queue: storage is full")
	ErrStorageClosed     = errors.New("queue: storage closed")
	ErrWorkerStarted     = errors.New("queue: worker already started")
	ErrWorkerNotStarted  = errors.New("queue: worker not started")
	ErrSkipRetry         = errors.New("queue: do not retry")
	ErrFailedToMoveToDLQ = errors.New("queue: failed to move message to dead letter list")
	ErrMalformedMessage  = errors.New("queue: malformed message")
)
