// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worklogd/worklogd/pkg/users"
)

type stubVerifier struct {
	tokens map[string]*users.User
}

func (s *stubVerifier) Verify(_ context.Context, token string) (*users.User, error) {
	user, ok := s.tokens[token]
	if !ok {
		return nil, errors.New("invalid access token")
	}
	return user, nil
}

func TestIdentityContextRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	_, ok := IdentityFromContext(ctx)
	assert.False(t, ok)

	identity := &Identity{Subject: "ana", Role: users.RoleAdmin}
	ctx = WithIdentity(ctx, identity)

	got, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "ana", got.Subject)
	assert.True(t, got.IsAdmin())

	// Nil identities leave the context untouched.
	ctx2 := WithIdentity(context.Background(), nil)
	_, ok = IdentityFromContext(ctx2)
	assert.False(t, ok)
}

func TestMiddlewareBindsIdentity(t *testing.T) {
	t.Parallel()

	verifier := &stubVerifier{tokens: map[string]*users.User{
		"wla_good": {ID: "ana", Username: "ana", Role: users.RoleAdmin},
	}}

	var seen *Identity
	handler := Middleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := RequireIdentity(r.Context())
		require.NoError(t, err)
		seen = identity
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer wla_good")
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "ana", seen.Subject)
}

func TestMiddlewareAnonymousAndBadTokens(t *testing.T) {
	t.Parallel()

	verifier := &stubVerifier{tokens: map[string]*users.User{}}
	handler := Middleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); ok {
			http.Error(w, "unexpected identity", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	// No Authorization header passes through anonymously.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Non-bearer schemes are not ours to reject.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// A presented but unknown token is rejected.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer wla_unknown")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
}

func TestConcurrentRequestsKeepIdentitiesApart(t *testing.T) {
	t.Parallel()

	verifier := &stubVerifier{tokens: map[string]*users.User{
		"wla_ana": {ID: "ana", Username: "ana", Role: users.RoleAdmin},
		"wla_bo":  {ID: "bo", Username: "bo", Role: users.RoleMember},
	}}

	handler := Middleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := RequireIdentity(r.Context())
		require.NoError(t, err)
		_, _ = w.Write([]byte(identity.Subject))
	}))

	results := make(chan struct{ token, body string }, 40)
	for range 20 {
		for _, token := range []string{"wla_ana", "wla_bo"} {
			go func() {
				rec := httptest.NewRecorder()
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.Header.Set("Authorization", "Bearer "+token)
				handler.ServeHTTP(rec, req)
				results <- struct{ token, body string }{token, rec.Body.String()}
			}()
		}
	}

	for range 40 {
		got := <-results
		want := "ana"
		if got.token == "wla_bo" {
			want = "bo"
		}
		assert.Equal(t, want, got.body)
	}
}
