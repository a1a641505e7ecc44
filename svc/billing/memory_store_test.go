package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/viewportly/svc/billing"
)

func TestMemoryStoreUsers(t *testing.T) {
	t.Parallel()
	s := billing.NewMemoryStore()
	ctx := context.Background()
	u := &billing.User{ID: uuid.New(), Email: "a@example.com", Tier: billing.TierFree, CustomerID: "cus_a"}

	require.NoError(t, s.CreateUser(ctx, u))
	assert.ErrorIs(t, s.CreateUser(ctx, u), billing.ErrUserExists)
	assert.ErrorIs(t, s.CreateUser(ctx, &billing.User{ID: uuid.New(), Email: "A@example.com"}), billing.ErrUserExists)

	got, err := s.GetUserByCustomerID(ctx, "cus_a")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.GetUserByCustomerID(ctx, "cus_missing")
	assert.ErrorIs(t, err, billing.ErrUserNotFound)
}

func TestMemoryStoreSingleCurrentSubscription(t *testing.T) {
	t.Parallel()
	s := billing.NewMemoryStore()
	ctx := context.Background()
	userID := uuid.New()
	require.NoError(t, s.CreateUser(ctx, &billing.User{ID: userID, Email: "b@example.com"}))

	write := func(subs ...billing.Subscription) error {
		return s.Apply(ctx, billing.StateRef{UserID: userID}, func(billing.State) (billing.Mutation, error) {
			return billing.Mutation{Subscriptions: subs}, nil
		})
	}
	sub := func(ext string, status billing.Status) billing.Subscription {
		return billing.Subscription{ID: uuid.New(), UserID: userID, ExternalID: ext, Tier: billing.TierPro, Status: status}
	}

	require.NoError(t, write(sub("sub_1", billing.StatusActive)))
	assert.ErrorIs(t, write(sub("sub_2", billing.StatusActive)), billing.ErrUnrecoverableStore)
	_, ok := s.Subscription("sub_2")
	assert.False(t, ok, "rejected mutation writes nothing")

	require.NoError(t, write(sub("sub_1", billing.StatusCanceled), sub("sub_2", billing.StatusActive)))
	cur, err := s.GetCurrentSubscription(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "sub_2", cur.ExternalID)
}

func TestMemoryStoreUsageNeverDecreases(t *testing.T) {
	t.Parallel()
	s := billing.NewMemoryStore()
	ctx := context.Background()
	userID := uuid.New()

	rec, err := s.UpdateUsage(ctx, userID, "2025-01", func(r billing.UsageRecord) (billing.UsageRecord, error) {
		r.Count = 5
		return r, nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 5, rec.Count)

	_, err = s.UpdateUsage(ctx, userID, "2025-01", func(r billing.UsageRecord) (billing.UsageRecord, error) {
		r.Count = 4
		return r, nil
	})
	assert.ErrorIs(t, err, billing.ErrUsageDecrease)

	rec, err = s.GetUsage(ctx, userID, "2025-01")
	require.NoError(t, err)
	assert.EqualValues(t, 5, rec.Count)

	rec, err = s.GetUsage(ctx, userID, "2025-02")
	require.NoError(t, err)
	assert.Zero(t, rec.Count)
}

func TestMemoryStoreClaims(t *testing.T) {
	t.Parallel()
	s := billing.NewMemoryStore()
	ctx := context.Background()

	res, err := s.Claim(ctx, "evt_1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, billing.ClaimAcquired, res)

	res, err = s.Claim(ctx, "evt_1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, billing.ClaimBusy, res)

	res, err = s.Claim(ctx, "evt_1", 0)
	require.NoError(t, err)
	assert.Equal(t, billing.ClaimAcquired, res, "expired lease is taken over")

	require.NoError(t, s.Complete(ctx, "evt_1", billing.OutcomeApplied))
	require.NoError(t, s.Complete(ctx, "evt_1", billing.OutcomeNoop))
	ev, ok := s.ProcessedEvent("evt_1")
	require.True(t, ok)
	assert.Equal(t, billing.OutcomeApplied, ev.Outcome, "completion is write-once")

	require.NoError(t, s.Release(ctx, "evt_1"))
	res, err = s.Claim(ctx, "evt_1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, billing.ClaimAlreadyProcessed, res, "release never reopens a processed event")

	_, err = s.Claim(ctx, "evt_2", time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, "evt_2"))
	res, err = s.Claim(ctx, "evt_2", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, billing.ClaimAcquired, res)
}
