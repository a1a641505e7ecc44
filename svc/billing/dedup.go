package billing

import (
	"context"
	"time"

	"github.com/dmitrymomot/viewportly/pkg/retry"
)

// Deduplicator guards event processing with EventStore claims.
type Deduplicator struct {
	store     EventStore
	lease     time.Duration
	retryOpts []retry.Option
}

// NewDeduplicator wraps store with a claim lease and retry policy.
func NewDeduplicator(store EventStore, lease time.Duration, retryOpts ...retry.Option) *Deduplicator {
	if lease <= 0 {
		lease = 2 * time.Minute
	}
	return &Deduplicator{
		store:     store,
		lease:     lease,
		retryOpts: append([]retry.Option{retry.WithRetryIf(isTransient)}, retryOpts...),
	}
}

// Claim returns true when the caller owns the event and must process it,
// false when the event was already processed. An event held by another
// worker yields ErrClaimInProgress.
func (d *Deduplicator) Claim(ctx context.Context, eventID string) (bool, error) {
	res, err := retry.DoValue(ctx, func(ctx context.Context) (ClaimResult, error) {
		return d.store.Claim(ctx, eventID, d.lease)
	}, d.retryOpts...)
	if err != nil {
		return false, err
	}

	switch res {
	case ClaimAcquired:
		return true, nil
	case ClaimAlreadyProcessed:
		return false, nil
	default:
		return false, ErrClaimInProgress
	}
}

// Complete records outcome for a claimed event.
func (d *Deduplicator) Complete(ctx context.Context, eventID string, outcome Outcome) error {
	return retry.Do(ctx, func(ctx context.Context) error {
		return d.store.Complete(ctx, eventID, outcome)
	}, d.retryOpts...)
}

// Release drops a claim so the event can be redelivered.
func (d *Deduplicator) Release(ctx context.Context, eventID string) error {
	return retry.Do(ctx, func(ctx context.Context) error {
		return d.store.Release(ctx, eventID)
	}, d.retryOpts...)
}
