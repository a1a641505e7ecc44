// Package queue implements a small at-least-once work queue.
//
// The package is organised around three components:
//
//   - Storage  holds Messages in FIFO order with a dead-letter side list
//   - Enqueuer stamps new messages with an id and enqueue time
//   - Worker   runs a fixed pool of goroutines that pop messages and call a Handler
//
// # Storage
//
// MemoryStorage is a buffered channel for a single process. Push fails with
// ErrQueueFull instead of blocking when the buffer is full. RedisStorage keeps
// messages in a Redis list (LPUSH and BRPOP) so several processes can share
// one queue, and dead letters in a sibling list.
//
// # Delivery
//
// A Handler that returns an error has its message pushed back after the
// backoff set by WithRetryBackoff. Messages are dead-lettered once they reach
// WithMaxAttempts or when the error wraps ErrSkipRetry. Handler panics are
// recovered and treated as failures. Each call runs with a context detached
// from worker shutdown and bounded by WithHandlerTimeout, so Stop waits for
// in-flight handlers instead of interrupting them.
//
// # Usage
//
//	storage := queue.NewRedisStorage(client, "billing:inbox")
//	enqueuer, _ := queue.NewEnqueuer(storage)
//	_, err := enqueuer.Enqueue(ctx, ev.ID, body)
//
//	worker, _ := queue.NewWorker(storage, handle,
//		queue.WithConcurrency(8),
//		queue.WithMaxAttempts(5),
//	)
//	g.Go(worker.Run(ctx))
//
// Config reads QUEUE_* variables and converts them with Config.WorkerOptions.
//
// # Error Handling
//
// Sentinel errors such as ErrQueueFull, ErrSkipRetry and ErrMalformedMessage
// are matched with errors.Is.
package queue
