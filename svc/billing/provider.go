package billing

import (
	"context"

	"github.com/google/uuid"
)

// WebhookVerifier authenticates a raw webhook body and returns its envelope.
// Errors are *VerificationError.
type WebhookVerifier interface {
	Verify(payload []byte, signatureHeader string) (*Event, error)
	// SignatureHeader names the HTTP header carrying the signature.
	SignatureHeader() string
}

// PayloadDecoder extracts the processor-neutral Change from a verified event.
type PayloadDecoder interface {
	Decode(ev *Event) (*Change, error)
}

// CheckoutRequest describes a checkout session to create.
type CheckoutRequest struct {
	UserID     uuid.UUID
	Email      string
	CustomerID string
	Tier       Tier
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// SessionIssuer creates processor-hosted checkout and portal pages.
type SessionIssuer interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// Provider is one payment processor integration.
type Provider interface {
	WebhookVerifier
	PayloadDecoder
	SessionIssuer
	Name() string
}

// Metadata keys written into processor sessions and read back from webhooks.
const (
	metaUserID = "user_id"
	metaTier   = "tier"
)
