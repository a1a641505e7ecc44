// Package retry re-runs a fallible operation with bounded attempts and a
// pluggable backoff.
//
// Do and DoValue call fn until it succeeds, the attempts run out or the
// context is canceled. Between attempts they sleep for the interval returned
// by the configured Backoff:
//
//   - ExponentialBackoff grows the pause by Multiplier, capped at MaxInterval,
//     with optional jitter
//   - FixedBackoff waits the same Interval every time
//
// # Stopping Early
//
// Errors wrapped with Permanent end the loop at once and are returned
// unwrapped. WithRetryIf narrows retries further to errors the predicate
// accepts, which is how callers separate transient store failures from
// constraint violations.
//
// # Usage
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//		return store.Save(ctx, rec)
//	},
//		retry.WithAttempts(5),
//		retry.WithRetryIf(isTransient),
//	)
//
//	n, err := retry.DoValue(ctx, func(ctx context.Context) (int64, error) {
//		return client.Incr(ctx, key).Result()
//	})
//
// When attempts run out the last error is joined with ErrAttemptsExhausted.
package retry
