// Package service implements the authentication workflows: challenge
// verification, token minting, refresh token rotation and logout.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/keyward/keyward-server/internal/auth"
	"github.com/keyward/keyward-server/internal/logger"
	"github.com/keyward/keyward-server/internal/model"
)

// AccessTokenIssuer mints signed access tokens.
type AccessTokenIssuer interface {
	Issue(userID uuid.UUID) (string, error)
}

// LoginResult is the outcome of a successful challenge exchange.
type LoginResult struct {
	// EncryptedChallenge is the armored, encrypted-and-signed
	// ChallengeResponse for the requesting user.
	EncryptedChallenge string

	// RefreshToken is the freshly persisted refresh token, exposed so the
	// transport can also set it as a cookie.
	RefreshToken model.AuthenticationToken
}

// Auth orchestrates the challenge protocol and the two token services.
type Auth struct {
	protocol *ChallengeProtocol
	access   AccessTokenIssuer
	refresh  *RefreshToken
	baseURL  string
	logger   *logger.Logger
}

// NewAuth creates the authentication orchestrator.
func NewAuth(protocol *ChallengeProtocol, access AccessTokenIssuer, refresh *RefreshToken, baseURL string, l *logger.Logger) *Auth {
	return &Auth{
		protocol: protocol,
		access:   access,
		refresh:  refresh,
		baseURL:  baseURL,
		logger:   l,
	}
}

// Login verifies an armored challenge for the user and, on success, mints
// an access token and a refresh token and returns the encrypted
// ChallengeResponse. No tokens are minted and nothing is persisted unless
// verification fully succeeds.
func (s *Auth) Login(ctx context.Context, userID string, armoredChallenge string) (*LoginResult, error) {
	vc, err := s.protocol.Verify(ctx, userID, armoredChallenge)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.access.Issue(vc.User.ID)
	if err != nil {
		return nil, auth.NewError(auth.KindInternal, "An internal error occurred.", err)
	}

	refreshToken, err := s.refresh.Issue(ctx, vc.User.ID)
	if err != nil {
		return nil, auth.NewError(auth.KindInternal, "An internal error occurred.", err)
	}

	response := ChallengeResponse{
		Version:      ProtocolVersion,
		Domain:       s.baseURL,
		VerifyToken:  vc.VerifyToken,
		AccessToken:  accessToken,
		RefreshToken: refreshToken.Token,
	}

	cleartext, err := json.Marshal(response)
	if err != nil {
		return nil, auth.NewError(auth.KindInternal, "An internal error occurred.",
			fmt.Errorf("failed to marshal challenge response: %w", err))
	}

	encrypted, err := vc.Session.EncryptSign(string(cleartext))
	if err != nil {
		return nil, auth.NewError(auth.KindInternal, "An internal error occurred.",
			fmt.Errorf("failed to encrypt challenge response: %w", err))
	}

	s.logger.Info("Auth: login", "user_id", vc.User.ID)

	return &LoginResult{
		EncryptedChallenge: encrypted,
		RefreshToken:       refreshToken,
	}, nil
}

// RefreshResult is the outcome of a successful refresh token exchange.
type RefreshResult struct {
	AccessToken  string
	RefreshToken model.AuthenticationToken
}

// Refresh consumes the presented refresh token and returns a fresh access
// token together with the replacement refresh token.
func (s *Auth) Refresh(ctx context.Context, userID uuid.UUID, presented string) (*RefreshResult, error) {
	replacement, err := s.refresh.Rotate(ctx, userID, presented)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.access.Issue(userID)
	if err != nil {
		return nil, auth.NewError(auth.KindInternal, "An internal error occurred.", err)
	}

	s.logger.Info("Auth: refresh", "user_id", userID)

	return &RefreshResult{
		AccessToken:  accessToken,
		RefreshToken: replacement,
	}, nil
}

// Logout deactivates the presented refresh token, or every refresh token
// of the user when none is presented. It reports how many tokens were
// deactivated.
func (s *Auth) Logout(ctx context.Context, userID uuid.UUID, presented string) (int64, error) {
	if presented == "" {
		return s.refresh.LogoutAll(ctx, userID)
	}

	return s.refresh.Logout(ctx, userID, presented)
}

// RefreshCookie returns the cookie form of a refresh token.
func (s *Auth) RefreshCookie(token model.AuthenticationToken) *http.Cookie {
	return s.refresh.Cookie(token)
}
