package billing

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the billing package.
var (
	ErrBadSignature         = errors.New("billing: webhook signature is invalid")
	ErrStaleEvent           = errors.New("billing: webhook timestamp outside tolerance")
	ErrOrphanEvent          = errors.New("billing: event references unknown entity")
	ErrMalformedPayload     = errors.New("billing: malformed event payload")
	ErrClaimInProgress      = errors.New("billing: event is being processed by another worker")
	ErrUnrecoverableStore   = errors.New("billing: unrecoverable store error")
	ErrLimitExceeded        = errors.New("billing: usage limit exceeded")
	ErrUserNotFound         = errors.New("billing: user not found")
	ErrUserExists           = errors.New("billing: user already exists")
	ErrSubscriptionNotFound = errors.New("billing: subscription not found")
	ErrUsageDecrease        = errors.New("billing: usage count cannot decrease")
	ErrPlanNotFound         = errors.New("billing: plan not found")
	ErrNoBillingAccount     = errors.New("billing: user has no billing account")
	ErrInvalidConfig        = errors.New("billing: invalid config")
	ErrSessionFailed        = errors.New("billing: failed to create processor session")
)

// VerificationReason classifies a rejected webhook.
type VerificationReason string

// Verification failure reasons.
const (
	ReasonBadSignature VerificationReason = "bad_signature"
	ReasonStale        VerificationReason = "stale"
)

// VerificationError is returned by WebhookVerifier.Verify.
type VerificationError struct {
	Reason VerificationReason
	Err    error
}

func (e *VerificationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("webhook verification failed: %s", e.Reason)
	}
	return fmt.Sprintf("webhook verification failed: %s: %v", e.Reason, e.Err)
}

// Unwrap exposes the sentinel and the underlying cause.
func (e *VerificationError) Unwrap() []error {
	sentinel := ErrBadSignature
	if e.Reason == ReasonStale {
		sentinel = ErrStaleEvent
	}
	if e.Err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, e.Err}
}

func badSignature(err error) error {
	return &VerificationError{Reason: ReasonBadSignature, Err: err}
}

func stale(err error) error {
	return &VerificationError{Reason: ReasonStale, Err: err}
}

// LimitError describes a rejected usage reservation.
type LimitError struct {
	Used   int64
	Limit  int64
	Period string
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("usage limit exceeded: %d of %d used in %s", e.Used, e.Limit, e.Period)
}

// Unwrap returns ErrLimitExceeded.
func (e *LimitError) Unwrap() error { return ErrLimitExceeded }

// orphan wraps ErrOrphanEvent with a reason.
func orphan(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrOrphanEvent, fmt.Sprintf(format, args...))
}
