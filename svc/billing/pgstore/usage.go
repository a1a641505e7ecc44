package pgstore

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/viewportly/pkg/pg"
	"github.com/dmitrymomot/viewportly/svc/billing"
)

const usageColumns = `user_id, period, count, usage_limit, notified_percent, updated_at`

func scanUsage(row pgx.Row) (billing.UsageRecord, error) {
	var rec billing.UsageRecord
	err := row.Scan(&rec.UserID, &rec.Period, &rec.Count, &rec.Limit, &rec.NotifiedPercent, &rec.UpdatedAt)
	return rec, err
}

// GetUsage returns the usage row for period or a zero record.
func (s *Store) GetUsage(ctx context.Context, userID uuid.UUID, period string) (billing.UsageRecord, error) {
	rec, err := scanUsage(s.pool.QueryRow(ctx,
		`SELECT `+usageColumns+` FROM usage_records WHERE user_id = $1 AND period = $2`,
		userID, period,
	))
	if pg.IsNotFoundError(err) {
		return billing.UsageRecord{UserID: userID, Period: period}, nil
	}
	return rec, err
}

// UpdateUsage serializes writers on the period row. The row is created
// first so concurrent first uses of a period contend on the same lock.
func (s *Store) UpdateUsage(ctx context.Context, userID uuid.UUID, period string, fn func(billing.UsageRecord) (billing.UsageRecord, error)) (billing.UsageRecord, error) {
	var next billing.UsageRecord
	err := pg.WithTx(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO usage_records (user_id, period) VALUES ($1, $2)
			ON CONFLICT (user_id, period) DO NOTHING
		`, userID, period); err != nil {
			return err
		}

		prev, err := scanUsage(tx.QueryRow(ctx,
			`SELECT `+usageColumns+` FROM usage_records WHERE user_id = $1 AND period = $2 FOR UPDATE`,
			userID, period,
		))
		if err != nil {
			return err
		}

		next, err = fn(prev)
		if err != nil {
			return err
		}
		if next.Count < prev.Count {
			return billing.ErrUsageDecrease
		}
		next.UserID, next.Period = userID, period

		return tx.QueryRow(ctx, `
			UPDATE usage_records
			SET count = $3, usage_limit = $4, notified_percent = $5, updated_at = now()
			WHERE user_id = $1 AND period = $2
			RETURNING updated_at
		`, userID, period, next.Count, next.Limit, next.NotifiedPercent).Scan(&next.UpdatedAt)
	})
	if err != nil {
		return billing.UsageRecord{}, classify(err)
	}
	return next, nil
}
