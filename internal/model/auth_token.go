package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuthenticationTokenType discriminates stored authentication tokens.
type AuthenticationTokenType string

const (
	// TypeRefreshToken marks long-lived, single-use rotating refresh tokens.
	TypeRefreshToken AuthenticationTokenType = "refresh_token"
)

// AuthenticationTokenStore defines persistence operations for
// authentication tokens. The rotation invariant (at most one successful
// rotation per token value) relies on Rotate and Deactivate being
// conditional on the token still being active.
type AuthenticationTokenStore interface {
	Create(ctx context.Context, token AuthenticationToken) error

	// FindActive returns the single token matching (userID, token, typ)
	// that is still active. Returns ErrNotFound when no such token exists.
	FindActive(ctx context.Context, userID uuid.UUID, token string, typ AuthenticationTokenType) (AuthenticationToken, error)

	// Rotate atomically deactivates old and persists replacement. It
	// returns ErrNotFound when old is no longer active, in which case
	// replacement is not persisted.
	Rotate(ctx context.Context, old AuthenticationToken, replacement AuthenticationToken) error

	// Deactivate marks the matching active token inactive. It reports
	// the number of tokens affected: 0 when no active token matched.
	Deactivate(ctx context.Context, userID uuid.UUID, token string, typ AuthenticationTokenType) (int64, error)

	// DeactivateAllForUser marks every active token of the given type for
	// the user inactive and reports the number affected.
	DeactivateAllForUser(ctx context.Context, userID uuid.UUID, typ AuthenticationTokenType) (int64, error)
}

// AuthenticationToken is a persisted opaque credential. Refresh tokens are
// single-use: a successful rotation deactivates the presented token in the
// same step that creates its successor.
type AuthenticationToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string
	Type      AuthenticationTokenType
	Active    bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the token expiry has passed at the given time.
func (t AuthenticationToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
