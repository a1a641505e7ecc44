package billing_test

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/viewportly/pkg/email"
	"github.com/dmitrymomot/viewportly/pkg/logger"
	"github.com/dmitrymomot/viewportly/svc/billing"
)

func TestDispatcherRetriesAndContinues(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	sink := billing.SinkFunc(func(_ context.Context, in billing.Intent) error {
		calls.Add(1)
		if in.Kind == billing.IntentPaymentFailed {
			return errors.New("smtp down")
		}
		return nil
	})
	d := billing.NewDispatcher(sink, billing.WithDispatcherLogger(logger.Noop()), billing.WithDispatcherRetry(fastRetry))

	failed := d.Dispatch(context.Background(), []billing.Intent{
		{Kind: billing.IntentPaymentFailed},
		{Kind: billing.IntentSubscriptionActivated},
	})
	assert.Equal(t, 1, failed)
	assert.EqualValues(t, 4, calls.Load(), "three attempts for the failing intent, one for the next")
}

type capturingSender struct {
	sent []email.SendEmailParams
	err  error
}

func (s *capturingSender) SendEmail(_ context.Context, p email.SendEmailParams) error {
	if s.err != nil {
		return s.err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	s.sent = append(s.sent, p)
	return nil
}

func TestEmailSink(t *testing.T) {
	t.Parallel()

	t.Run("renders each intent kind", func(t *testing.T) {
		t.Parallel()
		sender := &capturingSender{}
		sink := billing.NewEmailSink(sender, "Viewportly")
		kinds := []billing.IntentKind{
			billing.IntentSubscriptionActivated,
			billing.IntentPaymentFailed,
			billing.IntentCancellationScheduled,
			billing.IntentCancellationReversed,
			billing.IntentSubscriptionCanceled,
			billing.IntentUsageThreshold,
		}
		for _, k := range kinds {
			err := sink.Send(context.Background(), billing.Intent{
				Kind:    k,
				UserID:  uuid.New(),
				Email:   "user@example.com",
				Name:    "<Bob>",
				Tier:    billing.TierPro,
				Percent: 80,
				Used:    8,
				Limit:   10,
				Period:  "2025-05",
			})
			require.NoError(t, err, k)
		}
		require.Len(t, sender.sent, len(kinds))
		for i, p := range sender.sent {
			assert.Equal(t, "user@example.com", p.SendTo)
			assert.Equal(t, string(kinds[i]), p.Tag)
			assert.NotEmpty(t, p.Subject)
			assert.Contains(t, p.BodyHTML, "&lt;Bob&gt;", "names are escaped")
		}
		assert.Contains(t, sender.sent[5].Subject, "80%")
		assert.Contains(t, sender.sent[5].BodyHTML, "8 of 10")
		assert.Contains(t, sender.sent[5].BodyHTML, "have a Viewportly account")
	})

	t.Run("missing address is permanent", func(t *testing.T) {
		t.Parallel()
		sender := &capturingSender{}
		var calls atomic.Int32
		sink := billing.SinkFunc(func(ctx context.Context, in billing.Intent) error {
			calls.Add(1)
			return billing.NewEmailSink(sender, "Viewportly").Send(ctx, in)
		})
		d := billing.NewDispatcher(sink, billing.WithDispatcherLogger(logger.Noop()), billing.WithDispatcherRetry(fastRetry))
		assert.Equal(t, 1, d.Dispatch(context.Background(), []billing.Intent{{Kind: billing.IntentPaymentFailed}}))
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("sender error is returned", func(t *testing.T) {
		t.Parallel()
		sender := &capturingSender{err: email.ErrFailedToSendEmail}
		err := billing.NewEmailSink(sender, "Viewportly").Send(context.Background(), billing.Intent{Kind: billing.IntentPaymentFailed, Email: "a@example.com"})
		assert.ErrorIs(t, err, email.ErrFailedToSendEmail)
	})

	t.Run("rejected recipient is not retried", func(t *testing.T) {
		t.Parallel()
		sender := &capturingSender{err: errors.Join(email.ErrFailedToSendEmail, email.ErrRecipientRejected)}
		var calls atomic.Int32
		sink := billing.SinkFunc(func(ctx context.Context, in billing.Intent) error {
			calls.Add(1)
			return billing.NewEmailSink(sender, "Viewportly").Send(ctx, in)
		})
		d := billing.NewDispatcher(sink, billing.WithDispatcherLogger(logger.Noop()), billing.WithDispatcherRetry(fastRetry))
		assert.Equal(t, 1, d.Dispatch(context.Background(), []billing.Intent{{Kind: billing.IntentPaymentFailed, Email: "gone@example.com"}}))
		assert.EqualValues(t, 1, calls.Load())
	})
}

func TestLogSinkOmitsAddress(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(logger.WithOutput(&buf), logger.WithFormat(logger.FormatJSON))
	userID := uuid.New()

	err := billing.NewLogSink(log).Send(context.Background(), billing.Intent{
		Kind:   billing.IntentPaymentFailed,
		UserID: userID,
		Email:  "jane.doe@example.com",
		Tier:   billing.TierPro,
	})
	require.NoError(t, err)

	out := buf.String()
	assert.NotContains(t, out, "jane.doe@example.com")
	assert.NotContains(t, out, `"email"`)
	assert.Contains(t, out, userID.String())
	assert.Contains(t, out, `"has_email":true`)
	assert.Contains(t, out, string(billing.IntentPaymentFailed))
}
