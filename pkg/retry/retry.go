package retry

import (
	"context"
	"errors"
	"time"
)

// DefaultAttempts is used when WithAttempts is not given.
const DefaultAttempts = 3

// Option configures Do and DoValue.
type Option func(*options)

type options struct {
	attempts  int
	backoff   Backoff
	retryable func(error) bool
	onRetry   func(attempt int, err error)
}

// WithAttempts sets the total number of tries, including the first one.
func WithAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.attempts = n
		}
	}
}

// WithBackoff sets the delay between attempts.
func WithBackoff(b Backoff) Option {
	return func(o *options) {
		if b != nil {
			o.backoff = b
		}
	}
}

// WithRetryIf limits retries to errors for which fn returns true.
func WithRetryIf(fn func(error) bool) Option {
	return func(o *options) { o.retryable = fn }
}

// WithOnRetry is called before each pause with the attempt that just failed.
func WithOnRetry(fn func(attempt int, err error)) Option {
	return func(o *options) { o.onRetry = fn }
}

// Do calls fn until it succeeds, returns a permanent error, the attempts are
// exhausted or ctx is done. The last error is returned unwrapped from its
// Permanent marker.
func Do(ctx context.Context, fn func(ctx context.Context) error, opts ...Option) error {
	o := &options{attempts: DefaultAttempts, backoff: DefaultBackoff()}
	for _, opt := range opts {
		opt(o)
	}

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if o.retryable != nil && !o.retryable(err) {
			return err
		}
		if attempt >= o.attempts {
			return errors.Join(ErrAttemptsExhausted, err)
		}
		if o.onRetry != nil {
			o.onRetry(attempt, err)
		}

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(o.backoff.NextInterval(attempt)):
		}
	}
}

// DoValue is Do for functions returning a value.
func DoValue[T any](ctx context.Context, fn func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var out T
	err := Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, opts...)
	return out, err
}
