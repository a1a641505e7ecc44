package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserRepository persists users.
type UserRepository interface {
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByCustomerID(ctx context.Context, customerID string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
}

// StateRef identifies what a transition needs loaded. SubscriptionID is the
// processor's id; UserID and CustomerID are fallbacks for locating the user
// when the subscription is not stored yet.
type StateRef struct {
	SubscriptionID string
	UserID         uuid.UUID
	CustomerID     string
}

// State is the snapshot a transition reads. Any field may be nil.
type State struct {
	User *User
	// Subscription is the stored subscription with the referenced external id.
	Subscription *Subscription
	// Current is the user's non-canceled subscription, possibly the same row.
	Current *Subscription
}

// Mutation is what a transition writes. Subscriptions are upserted by
// external id in slice order.
type Mutation struct {
	User          *User
	Subscriptions []Subscription
}

// Empty reports whether m writes nothing.
func (m Mutation) Empty() bool {
	return m.User == nil && len(m.Subscriptions) == 0
}

// SubscriptionRepository applies transitions atomically.
type SubscriptionRepository interface {
	// Apply loads the State for ref, calls fn, and persists the returned
	// Mutation atomically. An error from fn aborts without writing.
	Apply(ctx context.Context, ref StateRef, fn func(State) (Mutation, error)) error
	GetCurrentSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error)
}

// UsageLedger persists monthly usage.
type UsageLedger interface {
	// GetUsage returns the record for the period, or a zero-count record.
	GetUsage(ctx context.Context, userID uuid.UUID, period string) (UsageRecord, error)
	// UpdateUsage atomically replaces the record with fn's result.
	// Results with a lower Count than stored fail with ErrUsageDecrease.
	UpdateUsage(ctx context.Context, userID uuid.UUID, period string, fn func(UsageRecord) (UsageRecord, error)) (UsageRecord, error)
}

// ClaimResult is the outcome of an EventStore claim.
type ClaimResult int

const (
	ClaimAcquired ClaimResult = iota + 1
	ClaimAlreadyProcessed
	ClaimBusy
)

// EventStore records which external events have been handled.
type EventStore interface {
	// Claim atomically inserts id as pending unless it exists. A pending
	// claim older than lease may be taken over.
	Claim(ctx context.Context, id string, lease time.Duration) (ClaimResult, error)
	// Complete marks a claimed id processed. It is write-once.
	Complete(ctx context.Context, id string, outcome Outcome) error
	// Release drops a pending claim so the event can be retried.
	Release(ctx context.Context, id string) error
}
