package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/viewportly/pkg/pg"
	"github.com/dmitrymomot/viewportly/svc/billing"
)

var (
	_ billing.UserRepository         = (*Store)(nil)
	_ billing.SubscriptionRepository = (*Store)(nil)
	_ billing.UsageLedger            = (*Store)(nil)
	_ billing.EventStore             = (*Store)(nil)
)

// Store keeps users, subscriptions, usage records and processed events in
// the tables created by the migrations package.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// classify marks constraint violations as unrecoverable. Connection and
// serialization failures are returned as is so callers retry them.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case pg.IsSerializationError(err), pg.IsConnectionError(err):
		return err
	case pg.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %w", billing.ErrUnrecoverableStore, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		return fmt.Errorf("%w: %w", billing.ErrUnrecoverableStore, err)
	}
	return err
}
