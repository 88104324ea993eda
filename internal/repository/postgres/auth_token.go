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

// AuthenticationTokenRepository implements model.AuthenticationTokenStore.
type AuthenticationTokenRepository struct {
	pool *pgxpool.Pool
}

// Create persists a token.
func (r *AuthenticationTokenRepository) Create(ctx context.Context, token model.AuthenticationToken) error {
	const query = `
		INSERT INTO authentication_tokens (id, user_id, token, type, active, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		token.ID,
		token.UserID,
		token.Token,
		token.Type,
		token.Active,
		token.CreatedAt,
		token.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create authentication token: %w", err)
	}

	return nil
}

// FindActive returns the active token matching (userID, token, typ).
func (r *AuthenticationTokenRepository) FindActive(ctx context.Context, userID uuid.UUID, token string, typ model.AuthenticationTokenType) (model.AuthenticationToken, error) {
	const query = `
		SELECT id, user_id, token, type, active, created_at, expires_at
		FROM authentication_tokens
		WHERE user_id = $1 AND token = $2 AND type = $3 AND active`

	var found model.AuthenticationToken
	err := r.pool.QueryRow(ctx, query, userID, token, typ).Scan(
		&found.ID,
		&found.UserID,
		&found.Token,
		&found.Type,
		&found.Active,
		&found.CreatedAt,
		&found.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AuthenticationToken{}, model.ErrNotFound
		}
		return model.AuthenticationToken{}, fmt.Errorf("failed to find authentication token: %w", err)
	}

	return found, nil
}

// Rotate deactivates old and inserts replacement in one transaction. The
// update is conditional on old still being active, so of two concurrent
// rotations of the same token exactly one commits; the other gets
// model.ErrNotFound and nothing is written.
func (r *AuthenticationTokenRepository) Rotate(ctx context.Context, old model.AuthenticationToken, replacement model.AuthenticationToken) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	const deactivate = `
		UPDATE authentication_tokens
		SET active = FALSE
		WHERE user_id = $1 AND token = $2 AND type = $3 AND active`

	tag, err := tx.Exec(ctx, deactivate, old.UserID, old.Token, old.Type)
	if err != nil {
		return fmt.Errorf("failed to deactivate authentication token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}

	const insert = `
		INSERT INTO authentication_tokens (id, user_id, token, type, active, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = tx.Exec(ctx, insert,
		replacement.ID,
		replacement.UserID,
		replacement.Token,
		replacement.Type,
		replacement.Active,
		replacement.CreatedAt,
		replacement.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create replacement token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit rotation: %w", err)
	}

	return nil
}

// Deactivate marks the matching active token inactive.
func (r *AuthenticationTokenRepository) Deactivate(ctx context.Context, userID uuid.UUID, token string, typ model.AuthenticationTokenType) (int64, error) {
	const query = `
		UPDATE authentication_tokens
		SET active = FALSE
		WHERE user_id = $1 AND token = $2 AND type = $3 AND active`

	tag, err := r.pool.Exec(ctx, query, userID, token, typ)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate authentication token: %w", err)
	}

	return tag.RowsAffected(), nil
}

// DeactivateAllForUser marks every active token of the given type for the
// user inactive.
func (r *AuthenticationTokenRepository) DeactivateAllForUser(ctx context.Context, userID uuid.UUID, typ model.AuthenticationTokenType) (int64, error) {
	const query = `
		UPDATE authentication_tokens
		SET active = FALSE
		WHERE user_id = $1 AND type = $2 AND active`

	tag, err := r.pool.Exec(ctx, query, userID, typ)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate authentication tokens: %w", err)
	}

	return tag.RowsAffected(), nil
}
