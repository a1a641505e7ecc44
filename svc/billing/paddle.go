package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

const paddleSignatureHeader = "Paddle-Signature"

// Transaction origins that represent a renewal rather than a new checkout.
var paddleRenewalOrigins = map[string]bool{
	"subscription_recurring": true,
	"subscription_charge":    true,
}

// PaddleProvider integrates Paddle Billing transactions, the customer portal
// and notification webhooks.
type PaddleProvider struct {
	client    *paddle.SDK
	verifier  *paddle.WebhookVerifier
	tolerance time.Duration
	catalog   *Catalog
	now       func() time.Time
}

// PaddleOption configures a PaddleProvider instance.
type PaddleOption func(*PaddleProvider)

// WithPaddleClock sets the clock used for timestamp tolerance.
func WithPaddleClock(now func() time.Time) PaddleOption {
	return func(p *PaddleProvider) { p.now = now }
}

// NewPaddleProvider creates a Paddle provider.
func NewPaddleProvider(cfg PaddleConfig, tolerance time.Duration, catalog *Catalog, opts ...PaddleOption) (*PaddleProvider, error) {
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: PADDLE_WEBHOOK_SECRET is required", ErrInvalidConfig)
	}

	var (
		client *paddle.SDK
		err    error
	)
	if cfg.Sandbox {
		client, err = paddle.NewSandbox(cfg.APIKey)
	} else {
		client, err = paddle.New(cfg.APIKey)
	}
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	p := &PaddleProvider{
		client:    client,
		verifier:  paddle.NewWebhookVerifier(cfg.WebhookSecret),
		tolerance: tolerance,
		catalog:   catalog,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns "paddle".
func (p *PaddleProvider) Name() string { return "paddle" }

// SignatureHeader returns the webhook signature header.
func (p *PaddleProvider) SignatureHeader() string { return paddleSignatureHeader }

type paddleEnvelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// Verify checks the ts;h1 signature header. The SDK verifier does not look
// at the timestamp, so its age is checked here first.
func (p *PaddleProvider) Verify(payload []byte, signatureHeader string) (*Event, error) {
	ts, err := paddleTimestamp(signatureHeader)
	if err != nil {
		return nil, badSignature(err)
	}
	if age := p.now().Sub(ts); age > p.tolerance || age < -p.tolerance {
		return nil, stale(fmt.Errorf("signature timestamp %s is %s old", ts.Format(time.RFC3339), age.Round(time.Second)))
	}

	req, err := http.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	if err != nil {
		return nil, badSignature(err)
	}
	req.Header.Set(paddleSignatureHeader, signatureHeader)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, badSignature(err)
	}
	if !valid {
		return nil, badSignature(nil)
	}

	var env paddleEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}
	if env.EventID == "" || env.EventType == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrMalformedPayload)
	}

	return &Event{
		ID:           env.EventID,
		Type:         p.eventType(env.EventType, env.Data),
		ProviderType: env.EventType,
		Provider:     p.Name(),
		OccurredAt:   env.OccurredAt.UTC(),
		Data:         env.Data,
	}, nil
}

func (p *PaddleProvider) eventType(providerType string, data json.RawMessage) EventType {
	switch providerType {
	case "transaction.completed":
		var tx struct {
			Origin string `json:"origin"`
		}
		if err := json.Unmarshal(data, &tx); err != nil {
			return ""
		}
		switch {
		case paddleRenewalOrigins[tx.Origin]:
			return EventInvoicePaymentSucceeded
		case tx.Origin == "web" || tx.Origin == "api":
			return EventCheckoutCompleted
		}
	case "transaction.payment_failed", "subscription.past_due":
		return EventInvoicePaymentFailed
	case "subscription.updated":
		return EventSubscriptionUpdated
	case "subscription.canceled":
		return EventSubscriptionDeleted
	}
	return ""
}

type paddleItem struct {
	Price struct {
		ID string `json:"id"`
	} `json:"price"`
}

type paddlePeriod struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type paddleTransaction struct {
	ID             string         `json:"id"`
	CustomerID     string         `json:"customer_id"`
	SubscriptionID string         `json:"subscription_id"`
	CustomData     map[string]any `json:"custom_data"`
	Items          []paddleItem   `json:"items"`
	BillingPeriod  *paddlePeriod  `json:"billing_period"`
}

type paddleSubscription struct {
	ID                   string         `json:"id"`
	Status               string         `json:"status"`
	CustomerID           string         `json:"customer_id"`
	CustomData           map[string]any `json:"custom_data"`
	Items                []paddleItem   `json:"items"`
	CurrentBillingPeriod *paddlePeriod  `json:"current_billing_period"`
	ScheduledChange      *struct {
		Action string `json:"action"`
	} `json:"scheduled_change"`
}

// Decode parses the payload of ev.
func (p *PaddleProvider) Decode(ev *Event) (*Change, error) {
	if strings.HasPrefix(ev.ProviderType, "transaction.") {
		var tx paddleTransaction
		if err := json.Unmarshal(ev.Data, &tx); err != nil {
			return nil, errors.Join(ErrMalformedPayload, err)
		}
		if ev.Type != EventCheckoutCompleted && tx.SubscriptionID == "" {
			return nil, fmt.Errorf("%w: transaction %s has no subscription", ErrMalformedPayload, tx.ID)
		}
		ch := &Change{
			SubscriptionID: tx.SubscriptionID,
			CustomerID:     tx.CustomerID,
			UserID:         parseUserID(customString(tx.CustomData, metaUserID)),
			PriceID:        firstPrice(tx.Items),
		}
		ch.Tier = p.catalog.resolveTier(ch.PriceID, customString(tx.CustomData, metaTier))
		if tx.BillingPeriod != nil {
			ch.PeriodStart = tx.BillingPeriod.StartsAt.UTC()
			ch.PeriodEnd = tx.BillingPeriod.EndsAt.UTC()
		}
		return ch, nil
	}

	if strings.HasPrefix(ev.ProviderType, "subscription.") {
		var s paddleSubscription
		if err := json.Unmarshal(ev.Data, &s); err != nil {
			return nil, errors.Join(ErrMalformedPayload, err)
		}
		if s.ID == "" {
			return nil, fmt.Errorf("%w: subscription without id", ErrMalformedPayload)
		}
		cancel := s.ScheduledChange != nil && s.ScheduledChange.Action == "cancel"
		ch := &Change{
			SubscriptionID:    s.ID,
			CustomerID:        s.CustomerID,
			UserID:            parseUserID(customString(s.CustomData, metaUserID)),
			PriceID:           firstPrice(s.Items),
			Status:            paddleStatus(s.Status),
			CancelAtPeriodEnd: &cancel,
		}
		ch.Tier, _ = p.catalog.TierForPrice(ch.PriceID)
		if s.CurrentBillingPeriod != nil {
			ch.PeriodStart = s.CurrentBillingPeriod.StartsAt.UTC()
			ch.PeriodEnd = s.CurrentBillingPeriod.EndsAt.UTC()
		}
		return ch, nil
	}

	return nil, fmt.Errorf("%w: unsupported event type %q", ErrMalformedPayload, ev.ProviderType)
}

// CreateCheckoutSession opens a Paddle transaction for the plan's price and
// returns its hosted checkout URL.
func (p *PaddleProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error) {
	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})

	txReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			metaUserID: req.UserID.String(),
			metaTier:   string(req.Tier),
		},
	}
	if req.Email != "" {
		txReq.CustomData["email"] = req.Email
	}
	if req.SuccessURL != "" {
		txReq.Checkout = &paddle.TransactionCheckout{URL: paddle.PtrTo(req.SuccessURL)}
	}

	tx, err := p.client.TransactionsClient.CreateTransaction(ctx, txReq)
	if err != nil {
		return "", errors.Join(ErrSessionFailed, err)
	}
	if tx.Checkout == nil || tx.Checkout.URL == nil {
		return "", fmt.Errorf("%w: no checkout url for transaction %s", ErrSessionFailed, tx.ID)
	}
	return *tx.Checkout.URL, nil
}

// CreatePortalSession returns a customer portal URL.
func (p *PaddleProvider) CreatePortalSession(ctx context.Context, customerID, _ string) (string, error) {
	if customerID == "" {
		return "", ErrNoBillingAccount
	}
	sess, err := p.client.CustomerPortalSessionsClient.CreateCustomerPortalSession(ctx, &paddle.CreateCustomerPortalSessionRequest{
		CustomerID: customerID,
	})
	if err != nil {
		return "", errors.Join(ErrSessionFailed, err)
	}
	if sess.URLs.General.Overview == "" {
		return "", fmt.Errorf("%w: no portal url returned", ErrSessionFailed)
	}
	return sess.URLs.General.Overview, nil
}

// paddleTimestamp extracts ts from a "ts=...;h1=..." header.
func paddleTimestamp(header string) (time.Time, error) {
	if header == "" {
		return time.Time{}, errors.New("missing signature header")
	}
	for part := range strings.SplitSeq(header, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || k != "ts" {
			continue
		}
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid signature timestamp: %w", err)
		}
		return time.Unix(sec, 0), nil
	}
	return time.Time{}, errors.New("signature header has no timestamp")
}

func paddleStatus(s string) Status {
	switch s {
	case "trialing":
		return StatusTrialing
	case "active":
		return StatusActive
	case "past_due", "paused":
		return StatusPastDue
	case "canceled":
		return StatusCanceled
	}
	return ""
}

func firstPrice(items []paddleItem) string {
	if len(items) == 0 {
		return ""
	}
	return items[0].Price.ID
}

func customString(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}
