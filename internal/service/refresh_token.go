package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/keyward/keyward-server/internal/auth"
	"github.com/keyward/keyward-server/internal/logger"
	"github.com/keyward/keyward-server/internal/model"
)

// RefreshTokenCookieName is the cookie carrying the refresh token on
// browser-based exchanges.
const RefreshTokenCookieName = "refresh_token"

// RefreshToken manages the persisted single-use refresh tokens.
type RefreshToken struct {
	tokens model.AuthenticationTokenStore
	ttl    time.Duration
	logger *logger.Logger
}

// NewRefreshToken creates the refresh token service. ttl is the lifetime
// of each issued token.
func NewRefreshToken(tokens model.AuthenticationTokenStore, ttl time.Duration, l *logger.Logger) *RefreshToken {
	return &RefreshToken{
		tokens: tokens,
		ttl:    ttl,
		logger: l,
	}
}

// Issue mints and persists a fresh active refresh token for the user.
func (s *RefreshToken) Issue(ctx context.Context, userID uuid.UUID) (model.AuthenticationToken, error) {
	token, err := s.newToken(userID)
	if err != nil {
		return model.AuthenticationToken{}, err
	}

	if err := s.tokens.Create(ctx, token); err != nil {
		return model.AuthenticationToken{}, fmt.Errorf("failed to create refresh token: %w", err)
	}

	return token, nil
}

// Rotate consumes the presented refresh token and returns its replacement.
// The presented token must be active and unexpired; consumption and
// replacement happen in one atomic step, so a concurrent presenter of the
// same token loses and sees an invalid-refresh-key failure.
func (s *RefreshToken) Rotate(ctx context.Context, userID uuid.UUID, presented string) (model.AuthenticationToken, error) {
	old, err := s.tokens.FindActive(ctx, userID, presented, model.TypeRefreshToken)
	if err != nil {
		if err == model.ErrNotFound {
			return model.AuthenticationToken{}, auth.NewError(auth.KindInvalidRefreshKey,
				"No active refresh token matching the request could be found.", err)
		}
		return model.AuthenticationToken{}, auth.NewError(auth.KindInternal, "An internal error occurred.", err)
	}

	if old.IsExpired(time.Now()) {
		return model.AuthenticationToken{}, auth.NewError(auth.KindInvalidRefreshKey,
			"The refresh token provided is expired.", nil)
	}

	replacement, err := s.newToken(userID)
	if err != nil {
		return model.AuthenticationToken{}, err
	}

	if err := s.tokens.Rotate(ctx, old, replacement); err != nil {
		if err == model.ErrNotFound {
			// Lost the race to a concurrent rotation of the same token.
			return model.AuthenticationToken{}, auth.NewError(auth.KindInvalidRefreshKey,
				"No active refresh token matching the request could be found.", err)
		}
		return model.AuthenticationToken{}, auth.NewError(auth.KindInternal,
			"The refresh token could not be deactivated, and was not renewed.", err)
	}

	return replacement, nil
}

// Logout deactivates the presented refresh token. It reports how many
// tokens were deactivated: 0 when the token was already inactive or never
// existed.
func (s *RefreshToken) Logout(ctx context.Context, userID uuid.UUID, presented string) (int64, error) {
	count, err := s.tokens.Deactivate(ctx, userID, presented, model.TypeRefreshToken)
	if err != nil {
		return 0, auth.NewError(auth.KindInternal, "An internal error occurred.", err)
	}

	s.logger.Info("RefreshToken: logout", "user_id", userID, "deactivated", count)
	return count, nil
}

// LogoutAll deactivates every active refresh token of the user.
func (s *RefreshToken) LogoutAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := s.tokens.DeactivateAllForUser(ctx, userID, model.TypeRefreshToken)
	if err != nil {
		return 0, auth.NewError(auth.KindInternal, "An internal error occurred.", err)
	}

	s.logger.Info("RefreshToken: logout all", "user_id", userID, "deactivated", count)
	return count, nil
}

// Cookie returns the Secure, HttpOnly cookie carrying the token, expiring
// together with it.
func (s *RefreshToken) Cookie(token model.AuthenticationToken) *http.Cookie {
	return &http.Cookie{
		Name:     RefreshTokenCookieName,
		Value:    token.Token,
		Path:     "/",
		Expires:  token.ExpiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *RefreshToken) newToken(userID uuid.UUID) (model.AuthenticationToken, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return model.AuthenticationToken{}, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	now := time.Now()
	return model.AuthenticationToken{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     hex.EncodeToString(raw),
		Type:      model.TypeRefreshToken,
		Active:    true,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}, nil
}
