// Package postgres implements the persistence interfaces over PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keyward/keyward-server/database"
)

// Storage owns the connection pool shared by the repositories.
type Storage struct {
	pool *pgxpool.Pool
}

// NewStorage applies pending migrations and opens a connection pool.
func NewStorage(ctx context.Context, dsn string) (*Storage, error) {
	if err := database.Migrate(dsn); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Storage{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Storage) Close() {
	s.pool.Close()
}

// Users returns the user repository.
func (s *Storage) Users() *UserRepository {
	return &UserRepository{pool: s.pool}
}

// AuthenticationTokens returns the authentication token repository.
func (s *Storage) AuthenticationTokens() *AuthenticationTokenRepository {
	return &AuthenticationTokenRepository{pool: s.pool}
}
