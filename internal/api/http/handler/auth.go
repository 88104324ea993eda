// Package handler implements the HTTP handlers for the authentication
// endpoints.
package handler

import (
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/keyward/keyward-server/internal/auth"
	"github.com/keyward/keyward-server/internal/keys"
	"github.com/keyward/keyward-server/internal/logger"
	"github.com/keyward/keyward-server/internal/model"
	"github.com/keyward/keyward-server/internal/service"
)

// Auth handles the authentication endpoints.
type Auth struct {
	service        *service.Auth
	keys           *keys.Material
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewAuth creates a new Auth handler instance.
func NewAuth(svc *service.Auth, material *keys.Material, contextManager model.ContextManager, l *logger.Logger) *Auth {
	return &Auth{
		service:        svc,
		keys:           material,
		contextManager: contextManager,
		logger:         l,
	}
}

type loginRequest struct {
	UserID    string `json:"user_id"`
	Challenge string `json:"challenge"`
}

type loginResponse struct {
	Challenge string `json:"challenge"`
}

// Login handles POST /auth/jwt/login.json.
func (h *Auth) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, h.logger, auth.NewError(auth.KindInvalidArgument, "The credentials are missing.", err))
		return
	}
	if req.Challenge == "" {
		handleError(w, h.logger, auth.NewError(auth.KindInvalidArgument, "The user challenge is missing or invalid.", nil))
		return
	}

	result, err := h.service.Login(r.Context(), req.UserID, req.Challenge)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	http.SetCookie(w, h.service.RefreshCookie(result.RefreshToken))
	writeJSON(w, http.StatusOK, loginResponse{Challenge: result.EncryptedChallenge})
}

type refreshRequest struct {
	UserID       string `json:"user_id"`
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
}

// Refresh handles POST /auth/jwt/refresh.json. The refresh token is read
// from the cookie when present, from the body otherwise; a cookie-based
// exchange gets the renewed token back as a cookie, a body-based one gets
// it in the payload.
func (h *Auth) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			handleError(w, h.logger, auth.NewError(auth.KindInvalidArgument, "The credentials are missing.", err))
			return
		}
	}

	presented := req.RefreshToken
	fromCookie := false
	if cookie, err := r.Cookie(service.RefreshTokenCookieName); err == nil && cookie.Value != "" {
		presented = cookie.Value
		fromCookie = true
	}
	if presented == "" {
		handleError(w, h.logger, auth.NewError(auth.KindInvalidArgument, "The refresh token is missing.", nil))
		return
	}

	userID, err := h.resolveUserID(r, req.UserID)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	result, err := h.service.Refresh(r.Context(), userID, presented)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	response := refreshResponse{AccessToken: result.AccessToken}
	if fromCookie {
		http.SetCookie(w, h.service.RefreshCookie(result.RefreshToken))
		writeJSON(w, http.StatusOK, response)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		refreshResponse
		RefreshToken string `json:"refresh_token"`
	}{refreshResponse: response, RefreshToken: result.RefreshToken.Token})
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Logout handles POST /auth/jwt/logout.json. Requires an authenticated
// user; deactivates the presented refresh token, or all of the user's
// refresh tokens when none is presented, and clears the cookie.
func (h *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.contextManager.GetUserIDFromContext(r.Context())
	if !ok {
		handleError(w, h.logger, auth.NewError(auth.KindInvalidArgument, "The credentials are missing.", nil))
		return
	}

	var req logoutRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			handleError(w, h.logger, auth.NewError(auth.KindInvalidArgument, "The credentials are missing.", err))
			return
		}
	}

	presented := req.RefreshToken
	if cookie, err := r.Cookie(service.RefreshTokenCookieName); err == nil && cookie.Value != "" {
		presented = cookie.Value
	}

	count, err := h.service.Logout(r.Context(), userID, presented)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     service.RefreshTokenCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]int64{"deactivated": count})
}

// JWKS handles GET /auth/jwt/jwks.json, publishing the access token
// verification key in key-set form.
func (h *Auth) JWKS(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.keys.PublicJWKS())
}

type rsaPublicResponse struct {
	Keydata string `json:"keydata"`
}

// VerificationKey handles GET /auth/jwt/rsa_public.json, publishing the
// verification key as PEM.
func (h *Auth) VerificationKey(w http.ResponseWriter, _ *http.Request) {
	der, err := x509.MarshalPKIXPublicKey(h.keys.VerifyKey())
	if err != nil {
		handleError(w, h.logger, auth.NewError(auth.KindInternal, "An internal error occurred.", err))
		return
	}

	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	writeJSON(w, http.StatusOK, rsaPublicResponse{Keydata: string(pemKey)})
}

// Healthz handles GET /healthz. Unhealthy key material makes the whole
// authentication surface unusable, so it fails the check.
func (h *Auth) Healthz(w http.ResponseWriter, _ *http.Request) {
	if err := h.keys.Ready(); err != nil {
		h.logger.Error("Handler: health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Auth) resolveUserID(r *http.Request, bodyUserID string) (uuid.UUID, error) {
	if userID, ok := h.contextManager.GetUserIDFromContext(r.Context()); ok {
		return userID, nil
	}

	userID, err := uuid.Parse(bodyUserID)
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, auth.NewError(auth.KindBadRequest, "The user id is missing or invalid.", err)
	}
	return userID, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
