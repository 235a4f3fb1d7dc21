// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRegistration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		req       RegistrationRequest
		wantError string
	}{
		{
			name: "valid loopback client",
			req: RegistrationRequest{
				RedirectURIs: []string{"http://127.0.0.1:8123/callback"},
				ClientName:   "cli",
			},
		},
		{
			name: "valid https client",
			req: RegistrationRequest{
				RedirectURIs: []string{"https://app.example.com/oauth/callback"},
			},
		},
		{
			name:      "missing redirect URIs",
			req:       RegistrationRequest{},
			wantError: RegistrationErrorInvalidRedirectURI,
		},
		{
			name: "http on non-loopback host",
			req: RegistrationRequest{
				RedirectURIs: []string{"http://app.example.com/callback"},
			},
			wantError: RegistrationErrorInvalidRedirectURI,
		},
		{
			name: "fragment in redirect URI",
			req: RegistrationRequest{
				RedirectURIs: []string{"https://app.example.com/cb#frag"},
			},
			wantError: RegistrationErrorInvalidRedirectURI,
		},
		{
			name: "custom scheme rejected",
			req: RegistrationRequest{
				RedirectURIs: []string{"myapp://callback"},
			},
			wantError: RegistrationErrorInvalidRedirectURI,
		},
		{
			name: "unsupported grant type",
			req: RegistrationRequest{
				RedirectURIs: []string{"https://app.example.com/cb"},
				GrantTypes:   []string{"authorization_code", "client_credentials"},
			},
			wantError: RegistrationErrorInvalidClientMetadata,
		},
		{
			name: "refresh token only",
			req: RegistrationRequest{
				RedirectURIs: []string{"https://app.example.com/cb"},
				GrantTypes:   []string{"refresh_token"},
			},
			wantError: RegistrationErrorInvalidClientMetadata,
		},
		{
			name: "unsupported response type",
			req: RegistrationRequest{
				RedirectURIs:  []string{"https://app.example.com/cb"},
				ResponseTypes: []string{"token"},
			},
			wantError: RegistrationErrorInvalidClientMetadata,
		},
		{
			name: "unsupported auth method",
			req: RegistrationRequest{
				RedirectURIs:            []string{"https://app.example.com/cb"},
				TokenEndpointAuthMethod: "client_secret_basic",
			},
			wantError: RegistrationErrorInvalidClientMetadata,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			validated, regErr := ValidateRegistration(&tt.req)
			if tt.wantError != "" {
				require.NotNil(t, regErr)
				assert.Equal(t, tt.wantError, regErr.Error)
				return
			}
			require.Nil(t, regErr)
			assert.Equal(t, []string{"authorization_code", "refresh_token"}, validated.GrantTypes)
			assert.Equal(t, []string{"code"}, validated.ResponseTypes)
			assert.Equal(t, "none", validated.TokenEndpointAuthMethod)
		})
	}
}

func TestMatchesRedirectURI(t *testing.T) {
	t.Parallel()

	// Exact matches.
	assert.True(t, matchesRedirectURI("https://app.example.com/cb", "https://app.example.com/cb"))
	assert.False(t, matchesRedirectURI("https://app.example.com/cb", "https://app.example.com/other"))

	// Loopback clients may vary the port per RFC 8252 Section 7.3.
	assert.True(t, matchesRedirectURI("http://127.0.0.1:53182/cb", "http://127.0.0.1:8080/cb"))
	assert.True(t, matchesRedirectURI("http://localhost:53182/cb", "http://LOCALHOST:1/cb"))
	assert.True(t, matchesRedirectURI("http://[::1]:9999/cb", "http://[::1]:1234/cb"))

	// localhost and 127.0.0.1 are distinct hosts.
	assert.False(t, matchesRedirectURI("http://localhost:53182/cb", "http://127.0.0.1:8080/cb"))

	// Path and query must match exactly.
	assert.False(t, matchesRedirectURI("http://127.0.0.1:53182/other", "http://127.0.0.1:8080/cb"))
	assert.False(t, matchesRedirectURI("http://127.0.0.1:53182/cb?x=1", "http://127.0.0.1:8080/cb"))

	// Port flexibility never applies to https or non-loopback hosts.
	assert.False(t, matchesRedirectURI("https://app.example.com:444/cb", "https://app.example.com:443/cb"))
	assert.False(t, matchesRedirectURI("http://app.example.com:81/cb", "http://app.example.com:80/cb"))
}

func TestIsLoopbackHost(t *testing.T) {
	t.Parallel()

	assert.True(t, IsLoopbackHost("127.0.0.1"))
	assert.True(t, IsLoopbackHost("::1"))
	assert.True(t, IsLoopbackHost("localhost"))
	assert.True(t, IsLoopbackHost("LocalHost"))
	assert.False(t, IsLoopbackHost("192.168.1.1"))
	assert.False(t, IsLoopbackHost("example.com"))
}
