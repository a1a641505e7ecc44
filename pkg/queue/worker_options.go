package queue

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/viewportly/pkg/retry"
)

// WorkerOption configures a Worker instance.
type WorkerOption func(*workerOptions)

type workerOptions struct {
	concurrency    int
	pollTimeout    time.Duration
	handlerTimeout time.Duration
	maxAttempts    int
	backoff        retry.Backoff
	logger         *slog.Logger
}

// WithConcurrency sets the number of goroutines pulling from the storage.
func WithConcurrency(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithPollTimeout bounds a single blocking Pop so that Stop is observed promptly.
func WithPollTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pollTimeout = d
		}
	}
}

// WithHandlerTimeout bounds a single Handler call.
func WithHandlerTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.handlerTimeout = d
		}
	}
}

// WithMaxAttempts sets how many times a message is handled before it is
// dead-lettered.
func WithMaxAttempts(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithRetryBackoff sets the pause before a failed message is pushed back.
func WithRetryBackoff(b retry.Backoff) WorkerOption {
	return func(o *workerOptions) {
		if b != nil {
			o.backoff = b
		}
	}
}

// WithWorkerLogger sets the worker logger.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
