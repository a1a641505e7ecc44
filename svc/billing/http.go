package billing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/viewportly/pkg/logger"
)

const defaultMaxBodyBytes = 1 << 20

// Inbox accepts verified events for asynchronous processing.
type Inbox interface {
	Enqueue(ctx context.Context, id string, body []byte) (string, error)
}

// Handler serves the billing HTTP surface: the processor webhook plus
// checkout, portal and usage endpoints for signed-in users.
type Handler struct {
	provider     Provider
	processor    *Processor
	users        UserRepository
	subs         SubscriptionRepository
	meter        *Meter
	catalog      *Catalog
	inbox        Inbox
	successURL   string
	cancelURL    string
	returnURL    string
	maxBodyBytes int64
	metrics      *Metrics
	log          *slog.Logger
}

// HandlerOption configures a Handler instance.
type HandlerOption func(*Handler)

// WithInbox switches the webhook to async mode: verified events are queued
// and acknowledged before processing.
func WithInbox(inbox Inbox) HandlerOption {
	return func(h *Handler) { h.inbox = inbox }
}

// WithRedirectURLs sets the checkout and portal return URLs.
func WithRedirectURLs(success, cancel, ret string) HandlerOption {
	return func(h *Handler) {
		h.successURL = success
		h.cancelURL = cancel
		h.returnURL = ret
	}
}

// WithMaxBodyBytes caps the webhook body size.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// WithHandlerMetrics records webhook outcomes.
func WithHandlerMetrics(m *Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// WithHandlerLogger sets the handler logger.
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) { h.log = l }
}

// NewHandler wires the billing components into an HTTP handler.
func NewHandler(provider Provider, processor *Processor, users UserRepository, subs SubscriptionRepository, meter *Meter, catalog *Catalog, opts ...HandlerOption) *Handler {
	h := &Handler{
		provider:     provider,
		processor:    processor,
		users:        users,
		subs:         subs,
		meter:        meter,
		catalog:      catalog,
		maxBodyBytes: defaultMaxBodyBytes,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes mounts under /billing. Everything except the webhook requires a
// user id in the request context.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/webhook", h.webhook)
	r.Group(func(r chi.Router) {
		r.Use(RequireUser)
		r.Post("/checkout", h.checkout)
		r.Post("/portal", h.portal)
		r.Get("/usage", h.usage)
		r.Get("/subscription", h.subscription)
	})
	return r
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		h.metrics.webhook("too_large")
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body is too large")
		return
	}

	ev, err := h.provider.Verify(payload, r.Header.Get(h.provider.SignatureHeader()))
	switch {
	case errors.Is(err, ErrStaleEvent):
		h.metrics.webhook("stale")
		h.log.WarnContext(ctx, "stale webhook acknowledged", logger.Error(err))
		w.WriteHeader(http.StatusOK)
		return
	case errors.Is(err, ErrBadSignature):
		h.metrics.webhook("bad_signature")
		h.log.WarnContext(ctx, "webhook signature rejected", logger.Error(err))
		writeError(w, http.StatusBadRequest, "bad_signature", "invalid webhook signature")
		return
	case errors.Is(err, ErrMalformedPayload):
		h.metrics.webhook("malformed")
		h.log.WarnContext(ctx, "malformed webhook acknowledged", logger.Error(err))
		w.WriteHeader(http.StatusOK)
		return
	case err != nil:
		h.metrics.webhook("error")
		h.log.ErrorContext(ctx, "webhook verification failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "webhook verification failed")
		return
	}

	if h.inbox != nil {
		h.enqueue(w, r, ev)
		return
	}

	outcome, err := h.processor.Process(ctx, ev)
	switch {
	case errors.Is(err, ErrClaimInProgress):
		h.metrics.webhook("busy")
		writeError(w, http.StatusServiceUnavailable, "in_progress", "event is being processed")
	case err != nil:
		h.metrics.webhook("error")
		writeError(w, http.StatusInternalServerError, "internal_error", "event processing failed")
	default:
		h.metrics.webhook("processed")
		writeJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
	}
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, ev *Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		h.metrics.webhook("error")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to encode event")
		return
	}
	if _, err := h.inbox.Enqueue(r.Context(), ev.ID, body); err != nil {
		h.metrics.webhook("error")
		h.log.ErrorContext(r.Context(), "failed to enqueue webhook event", logger.EventID(ev.ID), logger.Error(err))
		writeError(w, http.StatusServiceUnavailable, "unavailable", "event could not be queued")
		return
	}
	h.metrics.webhook("queued")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

type checkoutRequest struct {
	Tier Tier `json:"tier"`
}

type urlResponse struct {
	URL string `json:"url"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON with a tier")
		return
	}
	if !req.Tier.Valid() || req.Tier == TierFree {
		writeError(w, http.StatusBadRequest, "invalid_tier", "tier must be a paid plan")
		return
	}
	if user.Tier.Rank() >= req.Tier.Rank() {
		writeError(w, http.StatusConflict, "already_subscribed", "current plan is equal or higher")
		return
	}
	priceID, err := h.catalog.PriceFor(req.Tier)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_tier", "plan is not purchasable")
		return
	}

	url, err := h.provider.CreateCheckoutSession(ctx, CheckoutRequest{
		UserID:     user.ID,
		Email:      user.Email,
		CustomerID: user.CustomerID,
		Tier:       req.Tier,
		PriceID:    priceID,
		SuccessURL: h.successURL,
		CancelURL:  h.cancelURL,
	})
	if err != nil {
		h.log.ErrorContext(ctx, "failed to create checkout session", logger.UserID(user.ID), logger.Error(err))
		writeError(w, http.StatusBadGateway, "processor_error", "could not start checkout")
		return
	}
	writeJSON(w, http.StatusOK, urlResponse{URL: url})
}

func (h *Handler) portal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	url, err := h.provider.CreatePortalSession(ctx, user.CustomerID, h.returnURL)
	switch {
	case errors.Is(err, ErrNoBillingAccount):
		writeError(w, http.StatusConflict, "no_billing_account", "user has never subscribed")
	case err != nil:
		h.log.ErrorContext(ctx, "failed to create portal session", logger.UserID(user.ID), logger.Error(err))
		writeError(w, http.StatusBadGateway, "processor_error", "could not open billing portal")
	default:
		writeJSON(w, http.StatusOK, urlResponse{URL: url})
	}
}

func (h *Handler) usage(w http.ResponseWriter, r *http.Request) {
	id, _ := UserIDFromContext(r.Context())
	u, err := h.meter.CurrentUsage(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) subscription(w http.ResponseWriter, r *http.Request) {
	id, _ := UserIDFromContext(r.Context())
	sub, err := h.subs.GetCurrentSubscription(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*User, bool) {
	id, _ := UserIDFromContext(r.Context())
	user, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, err)
		return nil, false
	}
	return user, true
}

func (h *Handler) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", "user not found")
	case errors.Is(err, ErrSubscriptionNotFound):
		writeError(w, http.StatusNotFound, "subscription_not_found", "no active subscription")
	default:
		h.log.ErrorContext(r.Context(), "billing lookup failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// RequireUser rejects requests without a user id in the context.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserIDFromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ErrorResponse is the JSON body of every non-2xx billing response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}

// WriteJSON and WriteError expose the response helpers to sibling services.
func WriteJSON(w http.ResponseWriter, status int, v any) { writeJSON(w, status, v) }

// WriteError writes an ErrorResponse.
func WriteError(w http.ResponseWriter, status int, code, msg string) {
	writeError(w, status, code, msg)
}
