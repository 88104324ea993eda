// Package token issues and verifies the short-lived access tokens returned
// by a successful challenge exchange.
package token

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/keyward/keyward-server/internal/auth"
)

// Claims carried by an access token.
type Claims struct {
	jwt.RegisteredClaims
}

// JWT signs and verifies RS256 access tokens.
type JWT struct {
	signingKey *rsa.PrivateKey
	verifyKey  *rsa.PublicKey
	issuer     string
	ttl        time.Duration
}

// NewJWT returns a service issuing tokens for issuer with the given
// lifetime.
func NewJWT(signingKey *rsa.PrivateKey, verifyKey *rsa.PublicKey, issuer string, ttl time.Duration) *JWT {
	return &JWT{
		signingKey: signingKey,
		verifyKey:  verifyKey,
		issuer:     issuer,
		ttl:        ttl,
	}
}

// Issue returns a signed access token for the user.
func (j *JWT) Issue(userID uuid.UUID) (string, error) {
	if userID == uuid.Nil {
		return "", auth.NewError(auth.KindInvalidArgument, "The user id is missing or invalid.", nil)
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)

	signed, err := token.SignedString(j.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Verify parses and validates an access token and returns the subject
// user id.
func (j *JWT) Verify(tokenString string) (uuid.UUID, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.verifyKey, nil
	}, jwt.WithIssuer(j.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return uuid.Nil, fmt.Errorf("token is not valid")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse subject: %w", err)
	}

	return userID, nil
}
