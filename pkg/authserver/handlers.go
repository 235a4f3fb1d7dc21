// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/worklogd/worklogd/pkg/logger"
)

// Handler exposes the authorization server over HTTP.
type Handler struct {
	server *Server
}

// NewHandler creates a Handler over the given server.
func NewHandler(server *Server) *Handler {
	return &Handler{server: server}
}

// Routes returns a router with all OAuth endpoints registered.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	h.OAuthRoutes(r)
	h.WellKnownRoutes(r)
	return r
}

// OAuthRoutes registers the OAuth endpoints on the provided router.
func (h *Handler) OAuthRoutes(r chi.Router) {
	r.Post("/oauth/register", h.RegisterHandler)
	r.Get("/oauth/authorize", h.AuthorizeHandler)
	r.Get("/oauth/callback", h.CallbackHandler)
	r.Post("/oauth/token", h.TokenHandler)
	r.Post("/oauth/revoke", h.RevokeHandler)
}

// WellKnownRoutes registers the RFC 8414 discovery endpoint.
func (h *Handler) WellKnownRoutes(r chi.Router) {
	r.Get("/.well-known/oauth-authorization-server", h.DiscoveryHandler)
}

// RegisterHandler handles POST /oauth/register (RFC 7591).
func (h *Handler) RegisterHandler(w http.ResponseWriter, req *http.Request) {
	var regReq RegistrationRequest
	if err := json.NewDecoder(req.Body).Decode(&regReq); err != nil {
		writeJSON(w, http.StatusBadRequest, &RegistrationError{
			Error:            RegistrationErrorInvalidClientMetadata,
			ErrorDescription: "invalid JSON request body",
		})
		return
	}

	resp, regErr, err := h.server.RegisterClient(req.Context(), &regReq)
	if err != nil {
		logger.Errorw("client registration failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if regErr != nil {
		writeJSON(w, http.StatusBadRequest, regErr)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// AuthorizeHandler handles GET /oauth/authorize. On success the user is
// redirected to the upstream IDP.
func (h *Handler) AuthorizeHandler(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	upstreamURL, err := h.server.Authorize(req.Context(), &AuthorizeRequest{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		ResponseType:        q.Get("response_type"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		Scope:               q.Get("scope"),
		Resource:            q.Get("resource"),
	})
	if err != nil {
		h.writeAuthorizeFailure(w, err)
		return
	}
	http.Redirect(w, req, upstreamURL, http.StatusFound)
}

// CallbackHandler handles GET /oauth/callback from the upstream IDP. On
// success the user is redirected back to the client with our code.
func (h *Handler) CallbackHandler(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	clientURL, err := h.server.HandleCallback(req.Context(), &CallbackRequest{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		ErrorCode:        q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	})
	if err != nil {
		h.writeAuthorizeFailure(w, err)
		return
	}
	http.Redirect(w, req, clientURL, http.StatusFound)
}

// TokenHandler handles POST /oauth/token for both grant types.
func (h *Handler) TokenHandler(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		writeTokenError(w, invalidRequest("malformed form body"))
		return
	}

	resp, err := h.server.Exchange(req.Context(), &TokenRequest{
		GrantType:    req.PostForm.Get("grant_type"),
		Code:         req.PostForm.Get("code"),
		RedirectURI:  req.PostForm.Get("redirect_uri"),
		ClientID:     req.PostForm.Get("client_id"),
		ClientSecret: req.PostForm.Get("client_secret"),
		CodeVerifier: req.PostForm.Get("code_verifier"),
		RefreshToken: req.PostForm.Get("refresh_token"),
		Scope:        req.PostForm.Get("scope"),
	})
	if err != nil {
		var tokenErr *TokenError
		if errors.As(err, &tokenErr) {
			writeTokenError(w, tokenErr)
			return
		}
		logger.Errorw("token exchange failed", "error", err)
		writeTokenError(w, serverError("internal error"))
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, resp)
}

// RevokeHandler handles POST /oauth/revoke (RFC 7009). The requesting client
// must authenticate; authenticated revocation always returns 200, known
// token or not.
func (h *Handler) RevokeHandler(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		writeTokenError(w, invalidRequest("malformed form body"))
		return
	}
	token := req.PostForm.Get("token")
	if token == "" {
		writeTokenError(w, invalidRequest("token is required"))
		return
	}

	err := h.server.Revoke(req.Context(), &RevokeRequest{
		Token:        token,
		ClientID:     req.PostForm.Get("client_id"),
		ClientSecret: req.PostForm.Get("client_secret"),
	})
	if err != nil {
		var tokenErr *TokenError
		if errors.As(err, &tokenErr) {
			writeTokenError(w, tokenErr)
			return
		}
		logger.Errorw("token revocation failed", "error", err)
		writeTokenError(w, serverError("failed to revoke token"))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// DiscoveryMetadata is the RFC 8414 authorization server metadata document.
type DiscoveryMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}

// DiscoveryHandler handles GET /.well-known/oauth-authorization-server.
func (h *Handler) DiscoveryHandler(w http.ResponseWriter, _ *http.Request) {
	issuer := h.server.config.Issuer

	w.Header().Set("Cache-Control", "public, max-age=3600")
	writeJSON(w, http.StatusOK, &DiscoveryMetadata{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + "/oauth/authorize",
		TokenEndpoint:                     issuer + "/oauth/token",
		RegistrationEndpoint:              issuer + "/oauth/register",
		RevocationEndpoint:                issuer + "/oauth/revoke",
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		CodeChallengeMethodsSupported:     []string{"S256"},
		TokenEndpointAuthMethodsSupported: []string{"none", "client_secret_post"},
	})
}

// writeAuthorizeFailure renders an authorization failure either as a
// redirect to the client or as an error page when no redirect URI is proven.
func (h *Handler) writeAuthorizeFailure(w http.ResponseWriter, err error) {
	var redirectErr *RedirectError
	if errors.As(err, &redirectErr) {
		u, parseErr := url.Parse(redirectErr.RedirectURI)
		if parseErr != nil {
			http.Error(w, "invalid redirect URI", http.StatusBadRequest)
			return
		}
		q := u.Query()
		q.Set("error", redirectErr.Code)
		if redirectErr.Description != "" {
			q.Set("error_description", redirectErr.Description)
		}
		if redirectErr.State != "" {
			q.Set("state", redirectErr.State)
		}
		u.RawQuery = q.Encode()

		w.Header().Set("Location", u.String())
		w.WriteHeader(http.StatusFound)
		return
	}

	var authErr *AuthorizeError
	if errors.As(err, &authErr) {
		writeErrorPage(w, http.StatusBadRequest, authErr.Code, authErr.Description)
		return
	}

	logger.Errorw("authorization failed", "error", err)
	writeErrorPage(w, http.StatusInternalServerError, "server_error", "internal server error")
}

// writeErrorPage renders a failure page for the human at the browser when
// no client redirect URI is available.
func writeErrorPage(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Authorization failed</title></head>
<body>
<h1>Authorization failed</h1>
<p><strong>%s</strong>: %s</p>
<p>Close this window and retry the login from your client.</p>
</body>
</html>
`, html.EscapeString(code), html.EscapeString(description))
}

func writeTokenError(w http.ResponseWriter, tokenErr *TokenError) {
	writeJSON(w, tokenErr.Status(), tokenErr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorw("failed to encode response", "error", err)
	}
}
