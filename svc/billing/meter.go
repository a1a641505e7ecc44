package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/viewportly/pkg/logger"
	"github.com/dmitrymomot/viewportly/pkg/retry"
)

// Thresholds are the usage percentages announced once per period.
var Thresholds = []int{80, 100}

// Reservation permits one metered operation. It is advisory: the ledger is
// not touched until Commit, so concurrent requests near the limit may all pass.
type Reservation struct {
	UserID uuid.UUID
	Email  string
	Name   string
	Tier   Tier
	Period string
	Limit  int64
}

// Usage is a user's consumption in the current period.
type Usage struct {
	Count  int64  `json:"count"`
	Limit  int64  `json:"limit"`
	Period string `json:"period"`
	Tier   Tier   `json:"tier"`
}

// Meter enforces per-period quotas against a UsageLedger.
type Meter struct {
	users   UserRepository
	ledger  UsageLedger
	catalog *Catalog
	loc     *time.Location
	now     func() time.Time
	metrics *Metrics
	log     *slog.Logger
}

// MeterOption configures a Meter instance.
type MeterOption func(*Meter)

// WithMeterClock sets the clock used to pick the period.
func WithMeterClock(now func() time.Time) MeterOption {
	return func(m *Meter) { m.now = now }
}

// WithLocation sets the time zone whose calendar month defines a period.
func WithLocation(loc *time.Location) MeterOption {
	return func(m *Meter) {
		if loc != nil {
			m.loc = loc
		}
	}
}

// WithMeterMetrics records reservations and threshold crossings.
func WithMeterMetrics(metrics *Metrics) MeterOption {
	return func(m *Meter) { m.metrics = metrics }
}

// WithMeterLogger sets the meter logger.
func WithMeterLogger(l *slog.Logger) MeterOption {
	return func(m *Meter) { m.log = l }
}

// NewMeter creates a meter over users and ledger.
func NewMeter(users UserRepository, ledger UsageLedger, catalog *Catalog, opts ...MeterOption) *Meter {
	m := &Meter{
		users:   users,
		ledger:  ledger,
		catalog: catalog,
		loc:     time.UTC,
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PeriodKey returns the YYYY-MM period containing t in loc.
func PeriodKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01")
}

// CheckAndReserve returns a reservation when the user's current-period
// count is below the limit of their current tier, or a *LimitError.
// It never modifies the ledger.
func (m *Meter) CheckAndReserve(ctx context.Context, userID uuid.UUID) (Reservation, error) {
	user, err := m.users.GetUser(ctx, userID)
	if err != nil {
		return Reservation{}, err
	}

	r := Reservation{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Tier:   user.Tier,
		Period: PeriodKey(m.now(), m.loc),
		Limit:  m.catalog.Limit(user.Tier),
	}
	if r.Limit == Unlimited {
		m.metrics.usageDecision("allowed")
		return r, nil
	}

	rec, err := m.ledger.GetUsage(ctx, userID, r.Period)
	if err != nil {
		return Reservation{}, err
	}
	if rec.Count >= r.Limit {
		m.metrics.usageDecision("rejected")
		return Reservation{}, &LimitError{Used: rec.Count, Limit: r.Limit, Period: r.Period}
	}

	m.metrics.usageDecision("allowed")
	return r, nil
}

// Commit counts the reserved operation and returns threshold intents for
// percentages crossed by this increment and not announced before.
func (m *Meter) Commit(ctx context.Context, r Reservation) ([]Intent, error) {
	var intents []Intent

	_, err := retry.DoValue(ctx, func(ctx context.Context) (UsageRecord, error) {
		intents = nil
		return m.ledger.UpdateUsage(ctx, r.UserID, r.Period, func(prev UsageRecord) (UsageRecord, error) {
			next := prev
			next.Count = prev.Count + 1
			next.Limit = r.Limit

			for _, t := range crossedThresholds(prev.Count, next.Count, r.Limit, prev.NotifiedPercent) {
				next.NotifiedPercent = t
				in := Intent{
					Kind:    IntentUsageThreshold,
					UserID:  r.UserID,
					Email:   r.Email,
					Name:    r.Name,
					Tier:    r.Tier,
					Percent: t,
					Used:    next.Count,
					Limit:   r.Limit,
					Period:  r.Period,
				}
				intents = append(intents, in)
			}
			return next, nil
		})
	}, retry.WithRetryIf(isTransient))
	if err != nil {
		if errors.Is(err, ErrUsageDecrease) {
			m.log.ErrorContext(ctx, "usage ledger rejected commit", logger.UserID(r.UserID), logger.Error(err))
		}
		return nil, err
	}
	return intents, nil
}

// CurrentUsage reports the count and limit for the current period.
func (m *Meter) CurrentUsage(ctx context.Context, userID uuid.UUID) (Usage, error) {
	user, err := m.users.GetUser(ctx, userID)
	if err != nil {
		return Usage{}, err
	}
	period := PeriodKey(m.now(), m.loc)
	rec, err := m.ledger.GetUsage(ctx, userID, period)
	if err != nil {
		return Usage{}, err
	}
	return Usage{Count: rec.Count, Limit: m.catalog.Limit(user.Tier), Period: period, Tier: user.Tier}, nil
}

// crossedThresholds returns thresholds t with prevPct < t <= nextPct and
// t > notified, in ascending order.
func crossedThresholds(prev, next, limit int64, notified int) []int {
	if limit <= 0 {
		return nil
	}
	var out []int
	for _, t := range Thresholds {
		if t <= notified {
			continue
		}
		// Integer form of prev/limit < t% <= next/limit.
		if prev*100 < int64(t)*limit && next*100 >= int64(t)*limit {
			out = append(out, t)
		}
	}
	return out
}
