package billing

import (
	"time"

	"github.com/google/uuid"
)

// IntentKind names a notification to send.
type IntentKind string

// Intent kinds.
const (
	IntentSubscriptionActivated IntentKind = "subscription_activated"
	IntentPaymentFailed         IntentKind = "payment_failed"
	IntentCancellationScheduled IntentKind = "cancellation_scheduled"
	IntentCancellationReversed  IntentKind = "cancellation_reversed"
	IntentSubscriptionCanceled  IntentKind = "subscription_canceled"
	IntentUsageThreshold        IntentKind = "usage_threshold_reached"
)

// Intent is a notification request produced by a state change. It is plain
// data; delivering it is the Dispatcher's job and never affects state.
type Intent struct {
	Kind      IntentKind `json:"kind"`
	UserID    uuid.UUID  `json:"user_id"`
	Email     string     `json:"email"`
	Name      string     `json:"name,omitempty"`
	Tier      Tier       `json:"tier,omitempty"`
	PeriodEnd time.Time  `json:"period_end,omitzero"`
	Percent   int        `json:"percent,omitempty"`
	Used      int64      `json:"used,omitempty"`
	Limit     int64      `json:"limit,omitempty"`
	Period    string     `json:"period,omitempty"`
}

func newIntent(kind IntentKind, u *User) Intent {
	in := Intent{Kind: kind}
	if u != nil {
		in.UserID = u.ID
		in.Email = u.Email
		in.Name = u.Name
		in.Tier = u.Tier
	}
	return in
}
