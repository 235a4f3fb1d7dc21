// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/worklogd/worklogd/pkg/logger"
)

// maxResponseSize is the maximum allowed response size for HTTP requests to prevent DoS.
const maxResponseSize = 1024 * 1024 // 1MB

// defaultHTTPTimeout bounds every request to the upstream IDP.
const defaultHTTPTimeout = 30 * time.Second

const pkceChallengeMethodS256 = "S256"

// Compile-time interface compliance check.
var _ Provider = (*OAuth2Provider)(nil)

// OAuth2Provider implements the upstream hop for pure OAuth 2.0 providers
// with explicitly configured endpoints. It is also embedded by OIDCProvider
// to share the token-request plumbing.
type OAuth2Provider struct {
	config     *Config
	httpClient *http.Client
}

// OAuth2ProviderOption configures an OAuth2Provider.
type OAuth2ProviderOption func(*OAuth2Provider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) OAuth2ProviderOption {
	return func(p *OAuth2Provider) {
		p.httpClient = client
	}
}

// NewOAuth2Provider creates a provider for an IDP without OIDC discovery.
// The config must carry explicit authorization, token, and userinfo endpoints.
func NewOAuth2Provider(config *Config, opts ...OAuth2ProviderOption) (*OAuth2Provider, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Type != ProviderTypeOAuth2 {
		return nil, fmt.Errorf("config.Type must be %q, got %q", ProviderTypeOAuth2, config.Type)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	p := &OAuth2Provider{
		config:     config,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}

	logger.Infow("upstream OAuth2 provider created",
		"authorization_endpoint", config.AuthorizationEndpoint,
		"token_endpoint", config.TokenEndpoint,
		"client_id", config.ClientID,
	)
	return p, nil
}

// Type returns the provider type.
func (*OAuth2Provider) Type() ProviderType {
	return ProviderTypeOAuth2
}

// AuthorizationURL builds the URL to redirect the user to the upstream IDP.
func (p *OAuth2Provider) AuthorizationURL(state, codeChallenge string) (string, error) {
	if state == "" {
		return "", errors.New("state parameter is required")
	}

	params := url.Values{
		"response_type": {"code"},
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {p.config.RedirectURI},
		"state":         {state},
	}
	if len(p.config.Scopes) > 0 {
		params.Set("scope", strings.Join(p.config.Scopes, " "))
	}
	// Per RFC 7636 Section 5, PKCE parameters are sent regardless of
	// advertised support; providers that ignore PKCE drop them.
	if codeChallenge != "" {
		params.Set("code_challenge", codeChallenge)
		params.Set("code_challenge_method", pkceChallengeMethodS256)
	}

	return p.config.AuthorizationEndpoint + "?" + params.Encode(), nil
}

// ExchangeCode exchanges an authorization code for tokens with the upstream IDP.
func (p *OAuth2Provider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*Tokens, error) {
	if code == "" {
		return nil, errors.New("authorization code is required")
	}

	params := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {p.config.RedirectURI},
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
	}
	if codeVerifier != "" {
		params.Set("code_verifier", codeVerifier)
	}

	tokens, err := p.tokenRequest(ctx, params)
	if err != nil {
		return nil, err
	}

	logger.Debugw("upstream code exchange successful",
		"has_refresh_token", tokens.RefreshToken != "",
		"expires_at", tokens.ExpiresAt.Format(time.RFC3339),
	)
	return tokens, nil
}

// ResolveIdentity fetches the authenticated user from the userinfo endpoint.
func (p *OAuth2Provider) ResolveIdentity(ctx context.Context, tokens *Tokens) (*UserInfo, error) {
	if tokens == nil || tokens.AccessToken == "" {
		return nil, errors.New("access token is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserInfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read userinfo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	var info UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse userinfo response: %w", err)
	}
	if info.Subject == "" {
		return nil, errors.New("userinfo response missing subject")
	}
	return &info, nil
}

// tokenRequest performs a form-encoded token request against the IDP.
func (p *OAuth2Provider) tokenRequest(ctx context.Context, params url.Values) (*Tokens, error) {
	logger.Debugw("sending upstream token request",
		"token_endpoint", p.config.TokenEndpoint,
		"grant_type", params.Get("grant_type"),
	)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		p.config.TokenEndpoint,
		strings.NewReader(params.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	return parseTokenResponse(body, resp.StatusCode)
}

// tokenResponse represents a successful response from the token endpoint.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// tokenErrorResponse represents an error response from the token endpoint.
type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`
}

func parseTokenResponse(body []byte, statusCode int) (*Tokens, error) {
	if statusCode != http.StatusOK {
		var tokenError tokenErrorResponse
		if err := json.Unmarshal(body, &tokenError); err == nil && tokenError.Error != "" {
			// OAuth error responses with error/error_description are standardized
			// and safe to surface.
			return nil, fmt.Errorf("token request failed: %s - %s", tokenError.Error, tokenError.ErrorDescription)
		}
		return nil, fmt.Errorf("token request failed with status %d", statusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, errors.New("token response missing access_token")
	}

	// Default to 1 hour when the IDP omits expires_in.
	expiresIn := tr.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	return &Tokens{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		IDToken:      tr.IDToken,
		ExpiresAt:    time.Now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}
