package billing

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the plan level a user is entitled to.
type Tier string

const (
	TierFree      Tier = "free"
	TierPro       Tier = "pro"
	TierUnlimited Tier = "unlimited"
)

// Rank orders tiers for upgrade decisions. Unknown tiers rank below free.
func (t Tier) Rank() int {
	switch t {
	case TierFree:
		return 1
	case TierPro:
		return 2
	case TierUnlimited:
		return 3
	default:
		return 0
	}
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool { return t.Rank() > 0 }

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusNone     Status = "none"
	StatusTrialing Status = "trialing"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// Current reports whether a subscription in this status still entitles the
// user to its tier. At most one current subscription exists per user.
func (s Status) Current() bool {
	return s == StatusTrialing || s == StatusActive || s == StatusPastDue
}

// User is an account with an optional billing customer.
type User struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Tier       Tier      `json:"tier"`
	CustomerID string    `json:"customer_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Subscription is a provider subscription mirrored locally.
type Subscription struct {
	ID                uuid.UUID `json:"id"`
	UserID            uuid.UUID `json:"user_id"`
	ExternalID        string    `json:"external_id"`
	CustomerID        string    `json:"customer_id"`
	PriceID           string    `json:"price_id"`
	Tier              Tier      `json:"tier"`
	Status            Status    `json:"status"`
	CancelAtPeriodEnd bool      `json:"cancel_at_period_end"`
	PeriodStart       time.Time `json:"period_start"`
	PeriodEnd         time.Time `json:"period_end"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// UsageRecord counts metered operations for one user in one period.
// Count never decreases within a period.
type UsageRecord struct {
	UserID          uuid.UUID `json:"user_id"`
	Period          string    `json:"period"`
	Count           int64     `json:"count"`
	Limit           int64     `json:"limit"`
	NotifiedPercent int       `json:"notified_percent"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Outcome records what processing an event did.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeNoop      Outcome = "noop"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeOrphan    Outcome = "orphan"
	OutcomeRejected  Outcome = "rejected"
	OutcomeDuplicate Outcome = "duplicate"
)

// ProcessedEvent records a deduplicated provider event.
type ProcessedEvent struct {
	ID          string     `json:"id"`
	Outcome     Outcome    `json:"outcome,omitempty"`
	ClaimedAt   time.Time  `json:"claimed_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}
