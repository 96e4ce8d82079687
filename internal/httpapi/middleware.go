// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CampusAuth Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"

	"github.com/campusauth/campusauth/internal/auth"
)

type identityKey struct{}

func identityFrom(ctx context.Context) ulid.ULID {
	id, _ := ctx.Value(identityKey{}).(ulid.ULID)
	return id
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// requireSession rejects requests without a valid session token and stores
// the token's identity in the request context. Rejections are counted under
// operation.
func (a *API) requireSession(operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				a.metrics.ObserveRequest(operation, auth.KindAuthentication, 0)
				writeMessage(w, http.StatusUnauthorized, "not authorized, no token")
				return
			}

			id, err := a.tokens.Verify(token, auth.PurposeSession)
			if err != nil {
				a.logger.DebugContext(r.Context(), "session token rejected", "error", err)
				a.metrics.ObserveRequest(operation, auth.KindToken, 0)
				writeMessage(w, http.StatusUnauthorized, "not authorized, token failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
		})
	}
}

// accessLog writes one record per request.
func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			level := slog.LevelInfo
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			a.logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote_addr", r.RemoteAddr)
		}()
		next.ServeHTTP(ww, r)
	})
}
