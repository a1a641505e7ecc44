package billing

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType is the processor-neutral name of a webhook event.
type EventType string

// Normalized event types.
const (
	EventCheckoutCompleted       EventType = "checkout.completed"
	EventInvoicePaymentFailed    EventType = "invoice.payment_failed"
	EventInvoicePaymentSucceeded EventType = "invoice.payment_succeeded"
	EventSubscriptionUpdated     EventType = "subscription.updated"
	EventSubscriptionDeleted     EventType = "subscription.deleted"
)

// Known reports whether t is one of the normalized event types.
func (t EventType) Known() bool {
	switch t {
	case EventCheckoutCompleted, EventInvoicePaymentFailed, EventInvoicePaymentSucceeded,
		EventSubscriptionUpdated, EventSubscriptionDeleted:
		return true
	}
	return false
}

// Event is a verified webhook envelope. Type is empty-safe: events the
// processor sends that we do not act on keep their raw name in ProviderType
// and an unknown Type.
type Event struct {
	ID           string          `json:"id"`
	Type         EventType       `json:"type"`
	ProviderType string          `json:"provider_type"`
	Provider     string          `json:"provider"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Data         json.RawMessage `json:"data"`
}

// Change is the processor-neutral content of an event payload.
// Zero values mean "not reported by the processor".
type Change struct {
	SubscriptionID    string
	CustomerID        string
	UserID            uuid.UUID
	PriceID           string
	Tier              Tier
	Status            Status
	CancelAtPeriodEnd *bool
	PeriodStart       time.Time
	PeriodEnd         time.Time
}
