package pgstore

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dmitrymomot/viewportly/pkg/pg"
	"github.com/dmitrymomot/viewportly/svc/billing"
)

const userColumns = `id, email, name, tier, COALESCE(customer_id, ''), created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*billing.User, error) {
	var u billing.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Tier, &u.CustomerID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if pg.IsNotFoundError(err) {
			return nil, billing.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetUser returns the user with id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*billing.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetUserByCustomerID returns the user linked to customerID.
func (s *Store) GetUserByCustomerID(ctx context.Context, customerID string) (*billing.User, error) {
	if customerID == "" {
		return nil, billing.ErrUserNotFound
	}
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE customer_id = $1`, customerID))
}

// CreateUser inserts u.
func (s *Store) CreateUser(ctx context.Context, u *billing.User) error {
	if u.Tier == "" {
		u.Tier = billing.TierFree
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, tier, customer_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), now(), now())
	`, u.ID, u.Email, u.Name, u.Tier, u.CustomerID)
	if pg.IsDuplicateKeyError(err) {
		return errors.Join(billing.ErrUserExists, err)
	}
	return err
}

func updateUser(ctx context.Context, q querier, u *billing.User) error {
	_, err := q.Exec(ctx, `
		UPDATE users
		SET name = $2, tier = $3, customer_id = NULLIF($4, ''), updated_at = $5
		WHERE id = $1
	`, u.ID, u.Name, u.Tier, u.CustomerID, u.UpdatedAt)
	return err
}
