package billing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/viewportly/pkg/logger"
	"github.com/dmitrymomot/viewportly/svc/billing"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newMeter(t *testing.T, tier billing.Tier, now *clock) (*billing.Meter, *billing.MemoryStore, uuid.UUID) {
	t.Helper()
	store := billing.NewMemoryStore()
	u := &billing.User{ID: uuid.New(), Email: "linus@example.com", Tier: tier}
	require.NoError(t, store.CreateUser(context.Background(), u))
	m := billing.NewMeter(store, store, billing.DefaultCatalog("price_pro", "price_unl"),
		billing.WithMeterClock(now.Now),
		billing.WithMeterLogger(logger.Noop()),
	)
	return m, store, u.ID
}

func use(t *testing.T, m *billing.Meter, userID uuid.UUID) []billing.Intent {
	t.Helper()
	r, err := m.CheckAndReserve(context.Background(), userID)
	require.NoError(t, err)
	intents, err := m.Commit(context.Background(), r)
	require.NoError(t, err)
	return intents
}

func TestMeterFreeLimit(t *testing.T) {
	t.Parallel()
	now := &clock{now: time.Date(2025, 5, 14, 9, 0, 0, 0, time.UTC)}
	m, store, userID := newMeter(t, billing.TierFree, now)
	ctx := context.Background()

	want := map[int][]int{8: {80}, 10: {100}}
	for n := 1; n <= 10; n++ {
		var thresholds []int
		for _, in := range use(t, m, userID) {
			assert.Equal(t, billing.IntentUsageThreshold, in.Kind)
			assert.Equal(t, "linus@example.com", in.Email)
			assert.Equal(t, "2025-05", in.Period)
			assert.EqualValues(t, n, in.Used)
			thresholds = append(thresholds, in.Percent)
		}
		assert.Equal(t, want[n], thresholds, "commit %d", n)
	}

	_, err := m.CheckAndReserve(ctx, userID)
	var limitErr *billing.LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.ErrorIs(t, err, billing.ErrLimitExceeded)
	assert.EqualValues(t, 10, limitErr.Used)
	assert.EqualValues(t, 10, limitErr.Limit)
	assert.Equal(t, "2025-05", limitErr.Period)

	rec, err := store.GetUsage(ctx, userID, "2025-05")
	require.NoError(t, err)
	assert.EqualValues(t, 10, rec.Count, "a rejected reservation must not count")
	assert.Equal(t, 100, rec.NotifiedPercent)
}

func TestMeterPeriodRollover(t *testing.T) {
	t.Parallel()
	now := &clock{now: time.Date(2025, 5, 31, 23, 59, 0, 0, time.UTC)}
	m, _, userID := newMeter(t, billing.TierFree, now)

	for range 10 {
		use(t, m, userID)
	}
	_, err := m.CheckAndReserve(context.Background(), userID)
	require.ErrorIs(t, err, billing.ErrLimitExceeded)

	now.Set(time.Date(2025, 6, 1, 0, 0, 1, 0, time.UTC))
	usage, err := m.CurrentUsage(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, billing.Usage{Count: 0, Limit: 10, Period: "2025-06", Tier: billing.TierFree}, usage)

	intents := use(t, m, userID)
	assert.Empty(t, intents)
}

func TestMeterTimezone(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+3", 3*60*60)
	ts := time.Date(2025, 5, 31, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-05", billing.PeriodKey(ts, time.UTC))
	assert.Equal(t, "2025-06", billing.PeriodKey(ts, loc))
}

func TestMeterUnlimited(t *testing.T) {
	t.Parallel()
	now := &clock{now: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)}
	m, _, userID := newMeter(t, billing.TierUnlimited, now)

	for range 150 {
		assert.Empty(t, use(t, m, userID))
	}
	usage, err := m.CurrentUsage(context.Background(), userID)
	require.NoError(t, err)
	assert.EqualValues(t, 150, usage.Count)
	assert.Equal(t, billing.Unlimited, usage.Limit)
}

func TestMeterUpgradeRaisesLimit(t *testing.T) {
	t.Parallel()
	now := &clock{now: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)}
	m, store, userID := newMeter(t, billing.TierFree, now)
	ctx := context.Background()

	for range 10 {
		use(t, m, userID)
	}
	_, err := m.CheckAndReserve(ctx, userID)
	require.ErrorIs(t, err, billing.ErrLimitExceeded)

	require.NoError(t, store.Apply(ctx, billing.StateRef{UserID: userID}, func(st billing.State) (billing.Mutation, error) {
		u := *st.User
		u.Tier = billing.TierPro
		return billing.Mutation{User: &u}, nil
	}))

	// Thresholds already announced this period are not repeated at the new limit.
	assert.Empty(t, use(t, m, userID))
}

func TestMeterUnknownUser(t *testing.T) {
	t.Parallel()
	now := &clock{now: time.Now()}
	m, _, _ := newMeter(t, billing.TierFree, now)
	_, err := m.CheckAndReserve(context.Background(), uuid.New())
	assert.ErrorIs(t, err, billing.ErrUserNotFound)
}

func TestMeterCommitFailure(t *testing.T) {
	t.Parallel()
	store := billing.NewMemoryStore()
	u := &billing.User{ID: uuid.New(), Email: "x@example.com", Tier: billing.TierFree}
	require.NoError(t, store.CreateUser(context.Background(), u))

	boom := errors.New("ledger offline")
	ledger := &failingLedger{UsageLedger: store, err: boom}
	m := billing.NewMeter(store, ledger, billing.DefaultCatalog("", ""), billing.WithMeterLogger(logger.Noop()))

	r, err := m.CheckAndReserve(context.Background(), u.ID)
	require.NoError(t, err)
	_, err = m.Commit(context.Background(), r)
	assert.ErrorIs(t, err, boom)
}

type failingLedger struct {
	billing.UsageLedger
	err error
}

func (l *failingLedger) UpdateUsage(context.Context, uuid.UUID, string, func(billing.UsageRecord) (billing.UsageRecord, error)) (billing.UsageRecord, error) {
	return billing.UsageRecord{}, l.err
}
