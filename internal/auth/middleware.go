// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

// claimsKey stores validated claims in the request context.
const claimsKey contextKey = "auth_claims"

// ClaimsFromContext retrieves the authenticated claims, nil when the
// request was not authenticated.
func ClaimsFromContext(ctx context.Context) *Claims {
	if claims, ok := ctx.Value(claimsKey).(*Claims); ok {
		return claims
	}
	return nil
}

// Middleware returns an http middleware that requires a valid bearer token
// on every request it wraps. Failures are answered by the supplied
// rejecter so the response envelope stays consistent with the API package.
func (m *JWTManager) Middleware(reject func(w http.ResponseWriter, r *http.Request, message string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				reject(w, r, "missing bearer token")
				return
			}

			claims, err := m.ValidateToken(token)
			if err != nil {
				reject(w, r, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearerToken pulls the token from the Authorization header, with a
// query-parameter fallback for websocket clients that cannot set headers.
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
