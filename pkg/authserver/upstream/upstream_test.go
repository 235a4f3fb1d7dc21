// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIDP is a minimal OAuth 2.0 identity provider for tests.
type fakeIDP struct {
	server *httptest.Server

	tokenHandler    http.HandlerFunc
	userinfoHandler http.HandlerFunc

	lastTokenForm url.Values
}

func newFakeIDP(t *testing.T) *fakeIDP {
	t.Helper()

	idp := &fakeIDP{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		idp.lastTokenForm = r.PostForm
		if idp.tokenHandler != nil {
			idp.tokenHandler(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "upstream-access",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "upstream-refresh",
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if idp.userinfoHandler != nil {
			idp.userinfoHandler(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sub":                "42",
			"preferred_username": "ana",
			"email":              "ana@example.com",
		})
	})
	idp.server = httptest.NewServer(mux)
	t.Cleanup(idp.server.Close)
	return idp
}

func (f *fakeIDP) config() *Config {
	return &Config{
		Type:                  ProviderTypeOAuth2,
		ClientID:              "worklogd",
		ClientSecret:          "hunter2",
		RedirectURI:           "http://127.0.0.1:9000/callback",
		Scopes:                []string{"profile", "email"},
		AuthorizationEndpoint: f.server.URL + "/authorize",
		TokenEndpoint:         f.server.URL + "/token",
		UserInfoEndpoint:      f.server.URL + "/userinfo",
	}
}

func TestAuthorizationURL(t *testing.T) {
	t.Parallel()

	idp := newFakeIDP(t)
	p, err := NewOAuth2Provider(idp.config())
	require.NoError(t, err)

	raw, err := p.AuthorizationURL("state-123", "challenge-abc")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "worklogd", q.Get("client_id"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "challenge-abc", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "profile email", q.Get("scope"))

	_, err = p.AuthorizationURL("", "")
	assert.Error(t, err, "state is mandatory")
}

func TestExchangeCode(t *testing.T) {
	t.Parallel()

	idp := newFakeIDP(t)
	p, err := NewOAuth2Provider(idp.config())
	require.NoError(t, err)

	tokens, err := p.ExchangeCode(context.Background(), "upstream-code", "verifier-xyz")
	require.NoError(t, err)
	assert.Equal(t, "upstream-access", tokens.AccessToken)
	assert.Equal(t, "upstream-refresh", tokens.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tokens.ExpiresAt, 10*time.Second)

	assert.Equal(t, "authorization_code", idp.lastTokenForm.Get("grant_type"))
	assert.Equal(t, "upstream-code", idp.lastTokenForm.Get("code"))
	assert.Equal(t, "verifier-xyz", idp.lastTokenForm.Get("code_verifier"))
	assert.Equal(t, "hunter2", idp.lastTokenForm.Get("client_secret"))
}

func TestExchangeCodeUpstreamError(t *testing.T) {
	t.Parallel()

	idp := newFakeIDP(t)
	idp.tokenHandler = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(tokenErrorResponse{
			Error:            "invalid_grant",
			ErrorDescription: "The authorization code has expired",
		})
	}

	p, err := NewOAuth2Provider(idp.config())
	require.NoError(t, err)

	_, err = p.ExchangeCode(context.Background(), "stale-code", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_grant")
	assert.Contains(t, err.Error(), "expired")
}

func TestResolveIdentity(t *testing.T) {
	t.Parallel()

	idp := newFakeIDP(t)
	p, err := NewOAuth2Provider(idp.config())
	require.NoError(t, err)

	info, err := p.ResolveIdentity(context.Background(), &Tokens{AccessToken: "upstream-access"})
	require.NoError(t, err)
	assert.Equal(t, "42", info.Subject)
	assert.Equal(t, "ana", info.Login)
	assert.Equal(t, "ana@example.com", info.Email)

	_, err = p.ResolveIdentity(context.Background(), nil)
	assert.Error(t, err)
}

func TestResolveIdentityMissingSubject(t *testing.T) {
	t.Parallel()

	idp := newFakeIDP(t)
	idp.userinfoHandler = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"email": "ghost@example.com"})
	}

	p, err := NewOAuth2Provider(idp.config())
	require.NoError(t, err)

	_, err = p.ResolveIdentity(context.Background(), &Tokens{AccessToken: "upstream-access"})
	assert.Error(t, err)
}

func TestParseTokenResponseDefaultsExpiry(t *testing.T) {
	t.Parallel()

	tokens, err := parseTokenResponse([]byte(`{"access_token":"abc","token_type":"Bearer"}`), http.StatusOK)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tokens.ExpiresAt, 10*time.Second)

	_, err = parseTokenResponse([]byte(`{"token_type":"Bearer"}`), http.StatusOK)
	assert.Error(t, err, "access_token is mandatory")

	_, err = parseTokenResponse([]byte(`not json`), http.StatusInternalServerError)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	base := Config{
		Type:                  ProviderTypeOAuth2,
		ClientID:              "id",
		RedirectURI:           "http://127.0.0.1/cb",
		AuthorizationEndpoint: "https://idp/authorize",
		TokenEndpoint:         "https://idp/token",
		UserInfoEndpoint:      "https://idp/userinfo",
	}
	require.NoError(t, base.Validate())

	noClient := base
	noClient.ClientID = ""
	assert.Error(t, noClient.Validate())

	noToken := base
	noToken.TokenEndpoint = ""
	assert.Error(t, noToken.Validate())

	oidcMissingIssuer := Config{
		Type:        ProviderTypeOIDC,
		ClientID:    "id",
		RedirectURI: "http://127.0.0.1/cb",
	}
	assert.Error(t, oidcMissingIssuer.Validate())

	unknown := base
	unknown.Type = "saml"
	assert.Error(t, unknown.Validate())
}
