// Package router assembles the HTTP routes and middleware chain.
package router

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keyward/keyward-server/internal/api/http/handler"
	"github.com/keyward/keyward-server/internal/api/http/middleware"
	"github.com/keyward/keyward-server/internal/logger"
	"github.com/keyward/keyward-server/internal/model"
)

// Router wires handlers and middleware into the HTTP route table.
type Router struct {
	authHandler    *handler.Auth
	tokenVerifier  middleware.TokenVerifier
	contextManager model.ContextManager
	registry       *prometheus.Registry
	logger         *logger.Logger
}

// New creates a new Router instance.
func New(
	authHandler *handler.Auth,
	tokenVerifier middleware.TokenVerifier,
	contextManager model.ContextManager,
	registry *prometheus.Registry,
	l *logger.Logger,
) *Router {
	return &Router{
		authHandler:    authHandler,
		tokenVerifier:  tokenVerifier,
		contextManager: contextManager,
		registry:       registry,
		logger:         l,
	}
}

// Register builds the route table. The challenge, refresh and key
// discovery endpoints are public; logout requires a bearer token.
func (r *Router) Register() http.Handler {
	logging := middleware.NewLogging(r.logger)
	metrics := middleware.NewMetrics(r.registry)
	authenticate := middleware.NewAuthenticate(r.tokenVerifier, r.contextManager, r.logger)

	m := mux.NewRouter()
	m.Use(logging.Handle, metrics.Handle)

	m.HandleFunc("/auth/jwt/login.json", r.authHandler.Login).Methods(http.MethodPost)
	m.HandleFunc("/auth/jwt/refresh.json", r.authHandler.Refresh).Methods(http.MethodPost)
	m.HandleFunc("/auth/jwt/jwks.json", r.authHandler.JWKS).Methods(http.MethodGet)
	m.HandleFunc("/auth/jwt/rsa_public.json", r.authHandler.VerificationKey).Methods(http.MethodGet)
	m.HandleFunc("/healthz", r.authHandler.Healthz).Methods(http.MethodGet)

	m.Handle("/auth/jwt/logout.json",
		authenticate.Handle(http.HandlerFunc(r.authHandler.Logout))).Methods(http.MethodPost)

	m.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return m
}
