package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

var stripeEventTypes = map[string]EventType{
	"checkout.session.completed":    EventCheckoutCompleted,
	"invoice.payment_failed":        EventInvoicePaymentFailed,
	"invoice.payment_succeeded":     EventInvoicePaymentSucceeded,
	"invoice.paid":                  EventInvoicePaymentSucceeded,
	"customer.subscription.updated": EventSubscriptionUpdated,
	"customer.subscription.deleted": EventSubscriptionDeleted,
}

// StripeProvider integrates Stripe Checkout, the Billing Portal and webhooks.
type StripeProvider struct {
	api           *client.API
	backends      *stripe.Backends
	webhookSecret string
	tolerance     time.Duration
	catalog       *Catalog
}

// StripeOption configures a StripeProvider instance.
type StripeOption func(*StripeProvider)

// WithStripeBackends points the API client at custom backends.
func WithStripeBackends(b *stripe.Backends) StripeOption {
	return func(p *StripeProvider) { p.backends = b }
}

// NewStripeProvider creates a Stripe provider.
func NewStripeProvider(cfg StripeConfig, tolerance time.Duration, catalog *Catalog, opts ...StripeOption) (*StripeProvider, error) {
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: STRIPE_WEBHOOK_SECRET is required", ErrInvalidConfig)
	}
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	p := &StripeProvider{
		webhookSecret: cfg.WebhookSecret,
		tolerance:     tolerance,
		catalog:       catalog,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.api = client.New(cfg.SecretKey, p.backends)
	return p, nil
}

// Name returns "stripe".
func (p *StripeProvider) Name() string { return "stripe" }

// SignatureHeader returns the webhook signature header.
func (p *StripeProvider) SignatureHeader() string { return "Stripe-Signature" }

type stripeEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Verify checks the Stripe-Signature header. The library rejects an expired
// timestamp before comparing signatures, so staleness wins over a bad MAC.
func (p *StripeProvider) Verify(payload []byte, signatureHeader string) (*Event, error) {
	if err := webhook.ValidatePayloadWithTolerance(payload, signatureHeader, p.webhookSecret, p.tolerance); err != nil {
		if errors.Is(err, webhook.ErrTooOld) {
			return nil, stale(err)
		}
		return nil, badSignature(err)
	}

	var env stripeEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}
	if env.ID == "" || env.Type == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrMalformedPayload)
	}

	return &Event{
		ID:           env.ID,
		Type:         stripeEventTypes[env.Type],
		ProviderType: env.Type,
		Provider:     p.Name(),
		OccurredAt:   time.Unix(env.Created, 0).UTC(),
		Data:         env.Data.Object,
	}, nil
}

type stripeCheckoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

type stripeInvoice struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

type stripeSubscription struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// Decode parses the payload of ev.
func (p *StripeProvider) Decode(ev *Event) (*Change, error) {
	switch ev.Type {
	case EventCheckoutCompleted:
		var s stripeCheckoutSession
		if err := json.Unmarshal(ev.Data, &s); err != nil {
			return nil, errors.Join(ErrMalformedPayload, err)
		}
		if s.Mode != "" && s.Mode != string(stripe.CheckoutSessionModeSubscription) {
			return nil, fmt.Errorf("%w: checkout mode %q", ErrMalformedPayload, s.Mode)
		}
		ref := s.ClientReferenceID
		if ref == "" {
			ref = s.Metadata[metaUserID]
		}
		return &Change{
			SubscriptionID: s.Subscription,
			CustomerID:     s.Customer,
			UserID:         parseUserID(ref),
			PriceID:        s.Metadata["price_id"],
			Tier:           p.catalog.resolveTier(s.Metadata["price_id"], s.Metadata[metaTier]),
		}, nil

	case EventInvoicePaymentFailed, EventInvoicePaymentSucceeded:
		var inv stripeInvoice
		if err := json.Unmarshal(ev.Data, &inv); err != nil {
			return nil, errors.Join(ErrMalformedPayload, err)
		}
		subID := inv.Subscription
		if subID == "" && inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
			subID = inv.Parent.SubscriptionDetails.Subscription
		}
		if subID == "" {
			return nil, fmt.Errorf("%w: invoice %s has no subscription", ErrMalformedPayload, inv.ID)
		}
		return &Change{SubscriptionID: subID, CustomerID: inv.Customer}, nil

	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var s stripeSubscription
		if err := json.Unmarshal(ev.Data, &s); err != nil {
			return nil, errors.Join(ErrMalformedPayload, err)
		}
		if s.ID == "" {
			return nil, fmt.Errorf("%w: subscription without id", ErrMalformedPayload)
		}
		ch := &Change{
			SubscriptionID:    s.ID,
			CustomerID:        s.Customer,
			UserID:            parseUserID(s.Metadata[metaUserID]),
			Status:            stripeStatus(s.Status),
			CancelAtPeriodEnd: &s.CancelAtPeriodEnd,
			PeriodStart:       unixOrZero(s.CurrentPeriodStart),
			PeriodEnd:         unixOrZero(s.CurrentPeriodEnd),
		}
		if len(s.Items.Data) > 0 {
			ch.PriceID = s.Items.Data[0].Price.ID
			ch.Tier, _ = p.catalog.TierForPrice(ch.PriceID)
		}
		return ch, nil
	}
	return nil, fmt.Errorf("%w: unsupported event type %q", ErrMalformedPayload, ev.ProviderType)
}

// CreateCheckoutSession returns a hosted checkout URL.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error) {
	meta := map[string]string{
		metaUserID: req.UserID.String(),
		metaTier:   string(req.Tier),
		"price_id": req.PriceID,
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(req.UserID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(req.PriceID),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:       stripe.String(req.SuccessURL),
		CancelURL:        stripe.String(req.CancelURL),
		Metadata:         meta,
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{Metadata: meta},
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.Context = ctx

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return "", errors.Join(ErrSessionFailed, err)
	}
	return sess.URL, nil
}

// CreatePortalSession returns a billing portal URL.
func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if customerID == "" {
		return "", ErrNoBillingAccount
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", errors.Join(ErrSessionFailed, err)
	}
	return sess.URL, nil
}

func stripeStatus(s string) Status {
	switch s {
	case "trialing":
		return StatusTrialing
	case "active":
		return StatusActive
	case "past_due", "unpaid":
		return StatusPastDue
	case "canceled", "incomplete_expired":
		return StatusCanceled
	}
	return ""
}

func parseUserID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func unixOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
