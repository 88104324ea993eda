package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/google/uuid"

	"github.com/keyward/keyward-server/internal/model"
)

// UserRepository implements model.UserStore.
type UserRepository struct {
	pool *pgxpool.Pool
}

// FindAuthenticatable returns the active, non-deleted user with the given
// id, including their OpenPGP key material.
func (r *UserRepository) FindAuthenticatable(ctx context.Context, id uuid.UUID) (model.User, error) {
	const query = `
		SELECT id, username, role, active,
		       COALESCE(key_fingerprint, ''), COALESCE(armored_key, ''),
		       created_at, updated_at, deleted_at
		FROM users
		WHERE id = $1
		  AND active
		  AND deleted_at IS NULL
		  AND role IN ('guest', 'user', 'admin')`

	var user model.User
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.Role,
		&user.Active,
		&user.Key.Fingerprint,
		&user.Key.ArmoredKey,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to find user: %w", err)
	}

	return user, nil
}

// Create persists a user. Used by provisioning and tests.
func (r *UserRepository) Create(ctx context.Context, user model.User) error {
	const query = `
		INSERT INTO users (id, username, role, active, key_fingerprint, armored_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Username,
		user.Role,
		user.Active,
		user.Key.Fingerprint,
		user.Key.ArmoredKey,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}
