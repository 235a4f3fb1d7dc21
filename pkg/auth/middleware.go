// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/worklogd/worklogd/pkg/logger"
	"github.com/worklogd/worklogd/pkg/users"
)

// TokenVerifier resolves a bearer token to its user. The authorization
// server implements this.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*users.User, error)
}

// Middleware returns HTTP middleware that authenticates requests with the
// verifier and binds the resulting Identity to the request context.
// Requests without an Authorization header pass through anonymously;
// requests presenting an invalid or expired token are rejected with 401.
func Middleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractBearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			user, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.Debugw("bearer token rejected", "error", err)
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			ctx := WithIdentity(r.Context(), IdentityFromUser(user))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ErrNoIdentity is returned when a handler expects an authenticated
// identity but the context carries none.
var ErrNoIdentity = errors.New("no authenticated identity in context")

// RequireIdentity returns the identity bound to the context or ErrNoIdentity.
func RequireIdentity(ctx context.Context) (*Identity, error) {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, ErrNoIdentity
	}
	return identity, nil
}

func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+description+`"`)
	http.Error(w, description, http.StatusUnauthorized)
}
