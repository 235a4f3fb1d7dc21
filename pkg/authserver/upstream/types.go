// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

// Package upstream handles communication with the upstream Identity
// Provider that worklogd delegates authentication to. The embedded
// authorization server never verifies credentials itself; it redirects
// the user here and consumes the identity the provider vouches for.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// ProviderType identifies the kind of upstream Identity Provider.
type ProviderType string

const (
	// ProviderTypeOIDC is for OpenID Connect providers that support discovery.
	ProviderTypeOIDC ProviderType = "oidc"
	// ProviderTypeOAuth2 is for pure OAuth 2.0 providers with explicit endpoints.
	ProviderTypeOAuth2 ProviderType = "oauth2"
)

// Tokens represents the tokens obtained from the upstream Identity Provider.
// They are consumed transiently to resolve the user's identity and are never
// returned to worklogd clients.
type Tokens struct {
	// AccessToken is the access token from the upstream IDP.
	AccessToken string

	// RefreshToken is the refresh token from the upstream IDP (if provided).
	RefreshToken string

	// IDToken is the ID token from the upstream IDP (for OIDC).
	IDToken string

	// ExpiresAt is when the access token expires.
	ExpiresAt time.Time
}

// UserInfo contains the identity attributes resolved from the upstream IDP.
type UserInfo struct {
	// Subject is the provider's stable identifier for the user.
	Subject string `json:"sub"`

	// Login is the provider-side username, if the provider exposes one.
	Login string `json:"preferred_username,omitempty"`

	// Email is the user's email address.
	Email string `json:"email,omitempty"`

	// Name is the user's full name.
	Name string `json:"name,omitempty"`
}

// Provider handles the upstream hop of the authorization flow: building
// the redirect to the IDP, exchanging the callback code, and resolving
// the authenticated user's identity.
type Provider interface {
	// Type returns the provider type.
	Type() ProviderType

	// AuthorizationURL builds the URL to redirect the user to the upstream IDP.
	// state correlates the eventual callback with the pending authorization;
	// codeChallenge is the PKCE challenge sent upstream (empty to omit).
	AuthorizationURL(state, codeChallenge string) (string, error)

	// ExchangeCode exchanges an authorization code for tokens with the upstream IDP.
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*Tokens, error)

	// ResolveIdentity resolves the authenticated user's identity from the
	// exchanged tokens.
	ResolveIdentity(ctx context.Context, tokens *Tokens) (*UserInfo, error)
}

// Config holds the settings for the upstream Identity Provider.
type Config struct {
	// Type selects between OIDC discovery and explicit OAuth 2.0 endpoints.
	Type ProviderType

	// ClientID is worklogd's client ID at the upstream IDP.
	ClientID string

	// ClientSecret is worklogd's client secret at the upstream IDP.
	ClientSecret string

	// RedirectURI is worklogd's callback endpoint registered at the IDP.
	RedirectURI string

	// Scopes are the scopes requested from the IDP.
	Scopes []string

	// Issuer is the OIDC issuer URL. Required for ProviderTypeOIDC.
	Issuer string

	// AuthorizationEndpoint is the IDP's authorization endpoint.
	// Required for ProviderTypeOAuth2.
	AuthorizationEndpoint string

	// TokenEndpoint is the IDP's token endpoint. Required for ProviderTypeOAuth2.
	TokenEndpoint string

	// UserInfoEndpoint is the IDP's userinfo endpoint. Required for
	// ProviderTypeOAuth2, optional for OIDC (discovery provides it).
	UserInfoEndpoint string
}

// Validate checks that the config has all fields its provider type requires.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return errors.New("client ID is required")
	}
	if c.RedirectURI == "" {
		return errors.New("redirect URI is required")
	}
	if _, err := url.Parse(c.RedirectURI); err != nil {
		return fmt.Errorf("invalid redirect URI: %w", err)
	}

	switch c.Type {
	case ProviderTypeOIDC:
		if c.Issuer == "" {
			return errors.New("issuer is required for OIDC providers")
		}
	case ProviderTypeOAuth2:
		if c.AuthorizationEndpoint == "" {
			return errors.New("authorization endpoint is required for OAuth2 providers")
		}
		if c.TokenEndpoint == "" {
			return errors.New("token endpoint is required for OAuth2 providers")
		}
		if c.UserInfoEndpoint == "" {
			return errors.New("userinfo endpoint is required for OAuth2 providers")
		}
	default:
		return fmt.Errorf("unknown provider type: %q (must be %q or %q)",
			c.Type, ProviderTypeOIDC, ProviderTypeOAuth2)
	}
	return nil
}

// NewProvider creates a provider for the config type. OIDC providers
// perform discovery against the issuer at construction time.
func NewProvider(ctx context.Context, config *Config) (Provider, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider config: %w", err)
	}

	switch config.Type {
	case ProviderTypeOIDC:
		return NewOIDCProvider(ctx, config)
	case ProviderTypeOAuth2:
		return NewOAuth2Provider(config)
	default:
		return nil, fmt.Errorf("unknown provider type: %q", config.Type)
	}
}
