package pgstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/viewportly/pkg/pg"
	"github.com/dmitrymomot/viewportly/svc/billing"
)

const subscriptionColumns = `id, user_id, external_id, customer_id, price_id, tier, status,
	cancel_at_period_end, period_start, period_end, created_at, updated_at`

func scanSubscription(row pgx.Row) (*billing.Subscription, error) {
	var sub billing.Subscription
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.ExternalID, &sub.CustomerID, &sub.PriceID, &sub.Tier, &sub.Status,
		&sub.CancelAtPeriodEnd, &sub.PeriodStart, &sub.PeriodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// optional turns pgx.ErrNoRows into a nil result.
func optional[T any](v *T, err error) (*T, error) {
	if pg.IsNotFoundError(err) {
		return nil, nil
	}
	return v, err
}

// GetCurrentSubscription returns the user's trialing, active or past_due subscription.
func (s *Store) GetCurrentSubscription(ctx context.Context, userID uuid.UUID) (*billing.Subscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = $1 AND status <> 'canceled'
	`, userID))
	if pg.IsNotFoundError(err) {
		return nil, billing.ErrSubscriptionNotFound
	}
	return sub, err
}

// Apply locks the referenced subscription, its user and the user's current
// subscription, then writes fn's mutation in the same transaction.
func (s *Store) Apply(ctx context.Context, ref billing.StateRef, fn func(billing.State) (billing.Mutation, error)) error {
	err := pg.WithTx(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		st, err := loadState(ctx, tx, ref)
		if err != nil {
			return err
		}

		mut, err := fn(st)
		if err != nil {
			return err
		}

		// Superseded rows come first so the one-current index holds after
		// every statement.
		for i := range mut.Subscriptions {
			if err := upsertSubscription(ctx, tx, &mut.Subscriptions[i]); err != nil {
				return err
			}
		}
		if mut.User != nil {
			if err := updateUser(ctx, tx, mut.User); err != nil {
				return err
			}
		}
		return nil
	})
	return classify(err)
}

func loadState(ctx context.Context, tx pgx.Tx, ref billing.StateRef) (billing.State, error) {
	var (
		st  billing.State
		err error
	)

	userID := ref.UserID
	if ref.SubscriptionID != "" {
		st.Subscription, err = optional(scanSubscription(tx.QueryRow(ctx, `
			SELECT `+subscriptionColumns+` FROM subscriptions WHERE external_id = $1 FOR UPDATE
		`, ref.SubscriptionID)))
		if err != nil {
			return st, err
		}
		if st.Subscription != nil {
			userID = st.Subscription.UserID
		}
	}

	if userID != uuid.Nil {
		st.User, err = lockUser(ctx, tx, `id = $1`, userID)
		if err != nil {
			return st, err
		}
	}
	if st.User == nil && ref.CustomerID != "" {
		st.User, err = lockUser(ctx, tx, `customer_id = $1`, ref.CustomerID)
		if err != nil {
			return st, err
		}
	}

	if st.User != nil {
		st.Current, err = optional(scanSubscription(tx.QueryRow(ctx, `
			SELECT `+subscriptionColumns+` FROM subscriptions
			WHERE user_id = $1 AND status <> 'canceled'
			FOR UPDATE
		`, st.User.ID)))
		if err != nil {
			return st, err
		}
	}
	return st, nil
}

func upsertSubscription(ctx context.Context, q querier, sub *billing.Subscription) error {
	_, err := q.Exec(ctx, `
		INSERT INTO subscriptions (
			id, user_id, external_id, customer_id, price_id, tier, status,
			cancel_at_period_end, period_start, period_end, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (external_id) DO UPDATE SET
			customer_id          = EXCLUDED.customer_id,
			price_id             = EXCLUDED.price_id,
			tier                 = EXCLUDED.tier,
			status               = EXCLUDED.status,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			period_start         = EXCLUDED.period_start,
			period_end           = EXCLUDED.period_end,
			updated_at           = EXCLUDED.updated_at
	`,
		sub.ID, sub.UserID, sub.ExternalID, sub.CustomerID, sub.PriceID, sub.Tier, sub.Status,
		sub.CancelAtPeriodEnd, sub.PeriodStart, sub.PeriodEnd, sub.CreatedAt, sub.UpdatedAt,
	)
	return err
}

func lockUser(ctx context.Context, tx pgx.Tx, where string, arg any) (*billing.User, error) {
	u, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where+` FOR UPDATE`, arg))
	if errors.Is(err, billing.ErrUserNotFound) {
		return nil, nil
	}
	return u, err
}
