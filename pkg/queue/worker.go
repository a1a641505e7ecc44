package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/viewportly/pkg/logger"
	"github.com/dmitrymomot/viewportly/pkg/retry"
)

// Worker runs a fixed pool of goroutines that pop messages from a Storage and
// hand them to a Handler. Failed messages are pushed back after a backoff and
// dead-lettered once maxAttempts is reached.
type Worker struct {
	storage Storage
	handler Handler
	opts    workerOptions
	log     *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
	wg      sync.WaitGroup // pool goroutines
	pending sync.WaitGroup // delayed retries
}

// NewWorker creates a Worker that passes messages from storage to handler.
func NewWorker(storage Storage, handler Handler, opts ...WorkerOption) (*Worker, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}
	if handler == nil {
		return nil, ErrHandlerNil
	}

	o := workerOptions{
		concurrency:    4,
		pollTimeout:    time.Second,
		handlerTimeout: 30 * time.Second,
		maxAttempts:    5,
		backoff: retry.ExponentialBackoff{
			InitialInterval: time.Second,
			MaxInterval:     time.Minute,
			Multiplier:      2,
			JitterFactor:    0.1,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Worker{
		storage: storage,
		handler: handler,
		opts:    o,
		log:     o.logger.With(logger.Component("queue.worker")),
	}, nil
}

// Start launches the pool and returns immediately.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return ErrWorkerStarted
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.stopped = make(chan struct{})

	for range w.opts.concurrency {
		w.wg.Add(1)
		go w.loop(ctx)
	}

	w.log.InfoContext(ctx, "worker started", slog.Int("concurrency", w.opts.concurrency))
	return nil
}

// Stop cancels polling, waits for in-flight handlers, and flushes delayed
// retries back to the storage.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerNotStarted
	}
	cancel := w.cancel
	stopped := w.stopped
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
	close(stopped)
	w.pending.Wait()

	w.log.Info("worker stopped")
	return nil
}

// Run adapts the worker to errgroup: it starts, blocks until ctx is done, then stops.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()

	for ctx.Err() == nil {
		msg, err := w.storage.Pop(ctx, w.opts.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.ErrorContext(ctx, "failed to pop message", logger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.opts.pollTimeout):
			}
			continue
		}
		if msg == nil {
			continue
		}
		w.process(ctx, *msg)
	}
}

func (w *Worker) process(ctx context.Context, msg Message) {
	msg.Attempt++
	err := w.handle(ctx, msg)
	if err == nil {
		return
	}

	msg.LastError = err.Error()
	log := w.log.With(logger.MessageID(msg.ID), logger.Attempt(msg.Attempt), logger.Error(err))

	if errors.Is(err, ErrSkipRetry) || msg.Attempt >= w.opts.maxAttempts {
		// The handler's context may already be canceled; dead-lettering must still happen.
		if dlqErr := w.storage.DeadLetter(context.WithoutCancel(ctx), msg); dlqErr != nil {
			log.ErrorContext(ctx, "failed to dead-letter message", slog.Any("dlq_error", dlqErr))
			return
		}
		log.WarnContext(ctx, "message moved to dead letter list")
		return
	}

	delay := w.opts.backoff.NextInterval(msg.Attempt)
	log.WarnContext(ctx, "message failed, retrying", logger.Duration(delay))
	w.retryLater(msg, delay)
}

func (w *Worker) handle(ctx context.Context, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler: %v", r)
		}
	}()

	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.opts.handlerTimeout)
	defer cancel()
	return w.handler(hctx, msg)
}

func (w *Worker) retryLater(msg Message, delay time.Duration) {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()

	w.pending.Add(1)
	go func() {
		defer w.pending.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-stopped:
		}

		if err := w.storage.Push(context.Background(), msg); err != nil {
			w.log.Error("failed to requeue message", logger.MessageID(msg.ID), logger.Error(err))
			_ = w.storage.DeadLetter(context.Background(), msg)
		}
	}()
}
