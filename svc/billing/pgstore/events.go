package pgstore

import (
	"context"
	"time"

	"github.com/dmitrymomot/viewportly/pkg/pg"
	"github.com/dmitrymomot/viewportly/svc/billing"
)

// Claim inserts a pending row, or takes over a pending row whose lease has
// expired. Completed rows are never touched.
func (s *Store) Claim(ctx context.Context, id string, lease time.Duration) (billing.ClaimResult, error) {
	var claimed string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO processed_events (id, claimed_at) VALUES ($1, now())
		ON CONFLICT (id) DO UPDATE SET claimed_at = now()
		WHERE processed_events.processed_at IS NULL
		  AND processed_events.claimed_at < now() - make_interval(secs => $2)
		RETURNING id
	`, id, lease.Seconds()).Scan(&claimed)
	if err == nil {
		return billing.ClaimAcquired, nil
	}
	if !pg.IsNotFoundError(err) {
		return 0, err
	}

	var processed bool
	err = s.pool.QueryRow(ctx,
		`SELECT processed_at IS NOT NULL FROM processed_events WHERE id = $1`, id,
	).Scan(&processed)
	switch {
	case pg.IsNotFoundError(err):
		// Released between the two statements.
		return billing.ClaimBusy, nil
	case err != nil:
		return 0, err
	case processed:
		return billing.ClaimAlreadyProcessed, nil
	default:
		return billing.ClaimBusy, nil
	}
}

// Complete stamps the outcome and processed_at on an unfinished row.
func (s *Store) Complete(ctx context.Context, id string, outcome billing.Outcome) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO processed_events (id, outcome, claimed_at, processed_at)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (id) DO UPDATE SET outcome = EXCLUDED.outcome, processed_at = EXCLUDED.processed_at
		WHERE processed_events.processed_at IS NULL
	`, id, string(outcome))
	return err
}

// Release deletes an unfinished claim.
func (s *Store) Release(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM processed_events WHERE id = $1 AND processed_at IS NULL`, id)
	return err
}

// Prune deletes processed events older than the cutoff. Pending claims are
// kept regardless of age.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM processed_events WHERE processed_at IS NOT NULL AND processed_at < $1`, olderThan,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ProcessedEvent returns the stored record for id.
func (s *Store) ProcessedEvent(ctx context.Context, id string) (*billing.ProcessedEvent, error) {
	var (
		ev      billing.ProcessedEvent
		outcome *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, outcome, claimed_at, processed_at FROM processed_events WHERE id = $1`, id,
	).Scan(&ev.ID, &outcome, &ev.ClaimedAt, &ev.ProcessedAt)
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		ev.Outcome = billing.Outcome(*outcome)
	}
	return &ev, nil
}
