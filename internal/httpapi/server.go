// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CampusAuth Contributors

// Package httpapi exposes the auth workflows over HTTP.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/campusauth/campusauth/internal/auth"
	"github.com/campusauth/campusauth/internal/observability"
)

// API serves the /auth routes.
type API struct {
	svc     *auth.Service
	tokens  *auth.TokenService
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the access and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics records per-operation request metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(a *API) { a.metrics = m }
}

// New creates an API over the auth service. tokens verifies bearer tokens on
// protected routes.
func New(svc *auth.Service, tokens *auth.TokenService, opts ...Option) (*API, error) {
	if svc == nil {
		return nil, oops.In(auth.KindConfiguration).Code("HTTPAPI_INVALID").Errorf("auth service is required")
	}
	if tokens == nil {
		return nil, oops.In(auth.KindConfiguration).Code("HTTPAPI_INVALID").Errorf("token service is required")
	}

	a := &API{svc: svc, tokens: tokens, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Routes returns the router with middleware installed.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.accessLog)
	r.Use(middleware.Recoverer)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", a.handleRegister)
		r.Post("/login", a.handleLogin)
		r.Post("/forgot-password", a.handleForgotPassword)
		r.Post("/reset-password", a.handleResetPassword)

		r.With(a.requireSession(opMe)).Get("/me", a.handleMe)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
