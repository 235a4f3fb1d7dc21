// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidAccessToken is returned when a presented access token is unknown.
	ErrInvalidAccessToken = errors.New("invalid access token")

	// ErrAccessTokenExpired is returned when a presented access token has expired.
	ErrAccessTokenExpired = errors.New("access token expired")
)

// AuthorizeError is an authorization-endpoint error that cannot be delivered
// to the client's redirect URI, shown to the user instead.
type AuthorizeError struct {
	Code        string
	Description string
}

func (e *AuthorizeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// RedirectError is an authorization-endpoint error that is delivered to the
// client via its validated redirect URI per RFC 6749 Section 4.1.2.1.
type RedirectError struct {
	RedirectURI string
	State       string
	Code        string
	Description string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// TokenError is an RFC 6749 Section 5.2 token-endpoint error.
type TokenError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Status returns the HTTP status code for the error per RFC 6749.
func (e *TokenError) Status() int {
	if e.Code == "invalid_client" {
		return http.StatusUnauthorized
	}
	if e.Code == "server_error" {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

func invalidGrant(description string) *TokenError {
	return &TokenError{Code: "invalid_grant", Description: description}
}

func invalidRequest(description string) *TokenError {
	return &TokenError{Code: "invalid_request", Description: description}
}

func invalidClient(description string) *TokenError {
	return &TokenError{Code: "invalid_client", Description: description}
}

func invalidScope(description string) *TokenError {
	return &TokenError{Code: "invalid_scope", Description: description}
}

func serverError(description string) *TokenError {
	return &TokenError{Code: "server_error", Description: description}
}
