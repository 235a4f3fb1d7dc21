// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"net"
	"net/url"
	"slices"
	"strings"
)

// Limits on RFC 7591 registration metadata.
const (
	MaxRedirectURICount = 10
	MaxClientNameLength = 256
)

// RFC 7591 Section 3.2.2 error codes.
const (
	RegistrationErrorInvalidRedirectURI    = "invalid_redirect_uri"
	RegistrationErrorInvalidClientMetadata = "invalid_client_metadata"
)

var (
	allowedGrantTypes    = map[string]bool{"authorization_code": true, "refresh_token": true}
	allowedResponseTypes = map[string]bool{"code": true}

	defaultGrantTypes    = []string{"authorization_code", "refresh_token"}
	defaultResponseTypes = []string{"code"}
)

// RegistrationRequest is an RFC 7591 dynamic client registration request.
type RegistrationRequest struct {
	RedirectURIs            []string `json:"redirect_uris"`
	ClientName              string   `json:"client_name,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
}

// RegistrationResponse is an RFC 7591 registration response.
type RegistrationResponse struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at"`
	RedirectURIs            []string `json:"redirect_uris"`
	ClientName              string   `json:"client_name,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
}

// RegistrationError is an RFC 7591 Section 3.2.2 error response.
type RegistrationError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// ValidateRegistration validates a registration request and returns a copy
// with defaults applied.
func ValidateRegistration(req *RegistrationRequest) (*RegistrationRequest, *RegistrationError) {
	if len(req.RedirectURIs) == 0 {
		return nil, &RegistrationError{
			Error:            RegistrationErrorInvalidRedirectURI,
			ErrorDescription: "redirect_uris is required",
		}
	}
	if len(req.RedirectURIs) > MaxRedirectURICount {
		return nil, &RegistrationError{
			Error:            RegistrationErrorInvalidRedirectURI,
			ErrorDescription: "too many redirect_uris (maximum 10)",
		}
	}
	for _, uri := range req.RedirectURIs {
		if err := validateRedirectURI(uri); err != nil {
			return nil, err
		}
	}

	if len(req.ClientName) > MaxClientNameLength {
		return nil, &RegistrationError{
			Error:            RegistrationErrorInvalidClientMetadata,
			ErrorDescription: "client_name too long (maximum 256 characters)",
		}
	}

	authMethod := req.TokenEndpointAuthMethod
	if authMethod == "" {
		authMethod = "none"
	}
	if authMethod != "none" && authMethod != "client_secret_post" {
		return nil, &RegistrationError{
			Error:            RegistrationErrorInvalidClientMetadata,
			ErrorDescription: "token_endpoint_auth_method must be 'none' or 'client_secret_post'",
		}
	}

	grantTypes, regErr := validateGrantTypes(req.GrantTypes)
	if regErr != nil {
		return nil, regErr
	}
	responseTypes, regErr := validateResponseTypes(req.ResponseTypes)
	if regErr != nil {
		return nil, regErr
	}

	return &RegistrationRequest{
		RedirectURIs:            req.RedirectURIs,
		ClientName:              req.ClientName,
		TokenEndpointAuthMethod: authMethod,
		GrantTypes:              grantTypes,
		ResponseTypes:           responseTypes,
	}, nil
}

func validateGrantTypes(grantTypes []string) ([]string, *RegistrationError) {
	if len(grantTypes) == 0 {
		grantTypes = defaultGrantTypes
	}
	// Require authorization_code explicitly for a clearer error on the
	// "refresh_token only" case that would otherwise pass the allowlist.
	if !slices.Contains(grantTypes, "authorization_code") {
		return nil, &RegistrationError{
			Error:            RegistrationErrorInvalidClientMetadata,
			ErrorDescription: "grant_types must include 'authorization_code'",
		}
	}
	for _, gt := range grantTypes {
		if !allowedGrantTypes[gt] {
			return nil, &RegistrationError{
				Error:            RegistrationErrorInvalidClientMetadata,
				ErrorDescription: "unsupported grant_type: " + gt,
			}
		}
	}
	return grantTypes, nil
}

func validateResponseTypes(responseTypes []string) ([]string, *RegistrationError) {
	if len(responseTypes) == 0 {
		responseTypes = defaultResponseTypes
	}
	for _, rt := range responseTypes {
		if !allowedResponseTypes[rt] {
			return nil, &RegistrationError{
				Error:            RegistrationErrorInvalidClientMetadata,
				ErrorDescription: "unsupported response_type: " + rt,
			}
		}
	}
	return responseTypes, nil
}

// validateRedirectURI validates a redirect URI per RFC 8252:
// HTTPS is allowed for any host, HTTP only for loopback addresses.
func validateRedirectURI(uri string) *RegistrationError {
	parsed, err := url.Parse(uri)
	if err != nil {
		return &RegistrationError{
			Error:            RegistrationErrorInvalidRedirectURI,
			ErrorDescription: "invalid redirect_uri: " + uri,
		}
	}
	if parsed.Fragment != "" {
		return &RegistrationError{
			Error:            RegistrationErrorInvalidRedirectURI,
			ErrorDescription: "redirect_uri must not contain a fragment",
		}
	}

	switch parsed.Scheme {
	case "https":
		return nil
	case "http":
		if IsLoopbackHost(parsed.Hostname()) {
			return nil
		}
		return &RegistrationError{
			Error:            RegistrationErrorInvalidRedirectURI,
			ErrorDescription: "http redirect_uris are only allowed for loopback addresses",
		}
	default:
		return &RegistrationError{
			Error:            RegistrationErrorInvalidRedirectURI,
			ErrorDescription: "redirect_uri scheme must be https or http (loopback only)",
		}
	}
}

// IsLoopbackHost checks if the hostname is a loopback address per
// RFC 8252 Section 7.3: 127.0.0.1, ::1, or localhost.
func IsLoopbackHost(hostname string) bool {
	if strings.EqualFold(hostname, "localhost") {
		return true
	}
	ip := net.ParseIP(hostname)
	return ip != nil && ip.IsLoopback()
}

// matchesRedirectURI checks if a requested URI matches a registered URI.
// Loopback URIs match with any port per RFC 8252 Section 7.3; everything
// else requires an exact match.
func matchesRedirectURI(requestedURI, registeredURI string) bool {
	if requestedURI == registeredURI {
		return true
	}

	requested, err := url.Parse(requestedURI)
	if err != nil {
		return false
	}
	registered, err := url.Parse(registeredURI)
	if err != nil {
		return false
	}

	// Loopback matching only applies to plain http.
	if requested.Scheme != "http" || registered.Scheme != "http" {
		return false
	}
	if !IsLoopbackHost(requested.Hostname()) || !IsLoopbackHost(registered.Hostname()) {
		return false
	}
	if !hostnamesMatch(requested.Hostname(), registered.Hostname()) {
		return false
	}
	if requested.Path != registered.Path {
		return false
	}
	if requested.RawQuery != registered.RawQuery {
		return false
	}

	// Port may differ, the key RFC 8252 allowance for native clients.
	return true
}

// hostnamesMatch treats localhost case-insensitively but keeps 127.0.0.1
// and localhost as distinct hosts.
func hostnamesMatch(requested, registered string) bool {
	if strings.EqualFold(requested, "localhost") && strings.EqualFold(registered, "localhost") {
		return true
	}
	return requested == registered
}
