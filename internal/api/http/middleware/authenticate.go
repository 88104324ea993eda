// Package middleware contains the HTTP middleware chain: bearer
// authentication, request logging, and metrics.
package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/keyward/keyward-server/internal/logger"
	"github.com/keyward/keyward-server/internal/model"
)

// TokenVerifier resolves a user id from a bearer access token.
type TokenVerifier interface {
	Verify(tokenString string) (uuid.UUID, error)
}

// Authenticate validates bearer tokens and injects the user id into the
// request context.
type Authenticate struct {
	verifier       TokenVerifier
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewAuthenticate creates a new Authenticate middleware instance.
func NewAuthenticate(verifier TokenVerifier, contextManager model.ContextManager, l *logger.Logger) *Authenticate {
	return &Authenticate{verifier: verifier, contextManager: contextManager, logger: l}
}

// Handle wraps next, rejecting requests without a valid bearer token.
func (m *Authenticate) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			m.unauthorized(w, "The access token is missing.")
			return
		}

		userID, err := m.verifier.Verify(tokenString)
		if err != nil || userID == uuid.Nil {
			m.logger.Info("Authenticate: rejected token", "error", err)
			m.unauthorized(w, "The access token is invalid.")
			return
		}

		ctx := m.contextManager.SetUserIDToContext(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Authenticate) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return ""
	}
	return token
}
