// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/worklogd/worklogd/pkg/logger"
)

// Compile-time interface compliance check.
var _ Provider = (*OIDCProvider)(nil)

// OIDCProvider implements the upstream hop for OIDC-compliant identity
// providers. It embeds OAuth2Provider for the token plumbing and adds
// discovery plus ID token validation on top.
type OIDCProvider struct {
	*OAuth2Provider

	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

// OIDCProviderOption configures an OIDCProvider.
type OIDCProviderOption func(*OIDCProvider)

// WithOIDCHTTPClient sets a custom HTTP client, used for discovery as well
// as token and userinfo requests.
func WithOIDCHTTPClient(client *http.Client) OIDCProviderOption {
	return func(p *OIDCProvider) {
		p.httpClient = client
	}
}

// NewOIDCProvider creates an OIDC provider. Discovery runs against the
// configured issuer and fills in the endpoints the embedded OAuth2Provider
// uses for token requests.
func NewOIDCProvider(ctx context.Context, config *Config, opts ...OIDCProviderOption) (*OIDCProvider, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Type != ProviderTypeOIDC {
		return nil, fmt.Errorf("config.Type must be %q, got %q", ProviderTypeOIDC, config.Type)
	}
	if config.Issuer == "" {
		return nil, errors.New("issuer is required for OIDC providers")
	}

	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}
	// Per OIDC Core, the openid scope is mandatory for ID tokens, and the
	// ID token is how this provider resolves identity.
	if !slices.Contains(scopes, "openid") {
		return nil, errors.New("openid scope is required for OIDC providers")
	}

	p := &OIDCProvider{
		OAuth2Provider: &OAuth2Provider{
			httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		},
	}
	for _, opt := range opts {
		opt(p)
	}

	ctx = oidc.ClientContext(ctx, p.httpClient)
	oidcProvider, err := oidc.NewProvider(ctx, config.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC endpoints: %w", err)
	}

	endpoint := oidcProvider.Endpoint()

	discovered := *config
	discovered.Scopes = scopes
	discovered.AuthorizationEndpoint = endpoint.AuthURL
	discovered.TokenEndpoint = endpoint.TokenURL
	if discovered.UserInfoEndpoint == "" {
		var claims struct {
			UserinfoEndpoint string `json:"userinfo_endpoint"`
		}
		if err := oidcProvider.Claims(&claims); err == nil {
			discovered.UserInfoEndpoint = claims.UserinfoEndpoint
		}
	}
	p.config = &discovered

	p.provider = oidcProvider
	p.verifier = oidcProvider.Verifier(&oidc.Config{ClientID: config.ClientID})

	logger.Infow("upstream OIDC provider created",
		"issuer", config.Issuer,
		"client_id", config.ClientID,
	)
	return p, nil
}

// Type returns the provider type.
func (*OIDCProvider) Type() ProviderType {
	return ProviderTypeOIDC
}

// ResolveIdentity validates the ID token and extracts the user's identity
// from its claims. Per OIDC Core Section 3.1.3.3 the ID token must be
// present in the code exchange response.
func (p *OIDCProvider) ResolveIdentity(ctx context.Context, tokens *Tokens) (*UserInfo, error) {
	if tokens == nil || tokens.IDToken == "" {
		return nil, errors.New("ID token is required for OIDC identity resolution")
	}

	idToken, err := p.verifier.Verify(ctx, tokens.IDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var info UserInfo
	if err := idToken.Claims(&info); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}
	info.Subject = idToken.Subject

	logger.Debugw("resolved upstream identity",
		"subject", info.Subject,
		"has_login", info.Login != "",
		"expires_at", idToken.Expiry.Format(time.RFC3339),
	)
	return &info, nil
}
