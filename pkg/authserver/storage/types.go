// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage provides the durable stores backing the OAuth
// authorization server: registered clients, in-flight authorization codes
// and issued access/refresh tokens.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when a record with the same key already exists.
	ErrAlreadyExists = errors.New("record already exists")
)

// Client is a dynamically registered OAuth client. Records are immutable
// after registration and are never deleted by the authorization server.
type Client struct {
	// ClientID is the server-generated unique identifier.
	ClientID string

	// ClientSecret is the server-generated secret returned once at registration.
	ClientSecret string

	// Name is the human-readable client name supplied at registration.
	Name string

	// RedirectURIs are the callback URIs the client may use.
	RedirectURIs []string

	// CreatedAt is when the client identifier was issued.
	CreatedAt time.Time
}

// AuthorizationCode is a short-lived, single-use credential binding a client,
// an authenticated user and the PKCE challenge of the originating request.
type AuthorizationCode struct {
	Code          string
	ClientID      string
	UserID        string
	CodeChallenge string
	RedirectURI   string
	Scopes        []string
	Resource      string
	ExpiresAt     time.Time
}

// AccessToken is an opaque bearer credential verified on every request.
type AccessToken struct {
	Token     string
	ClientID  string
	UserID    string
	Scopes    []string
	ExpiresAt time.Time
}

// RefreshToken mints new access tokens. It carries no expiry: the same
// refresh token stays valid until revoked and is never rotated.
type RefreshToken struct {
	Token    string
	ClientID string
	UserID   string
	Scopes   []string
}

// ClientRegistry is the durable store of registered OAuth clients.
type ClientRegistry interface {
	// CreateClient stores a newly registered client.
	// Returns ErrAlreadyExists if the client ID is already taken.
	CreateClient(ctx context.Context, client *Client) error

	// GetClient retrieves a client by its ID.
	// Returns ErrNotFound if the client does not exist.
	GetClient(ctx context.Context, clientID string) (*Client, error)
}

// GrantStore is the durable store of authorization codes and issued tokens.
type GrantStore interface {
	// CreateAuthorizationCode stores a freshly minted authorization code.
	CreateAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// ConsumeAuthorizationCode atomically deletes and returns the code.
	// Exactly one of two racing consumers succeeds; the other gets
	// ErrNotFound. Expiry is not checked here - callers re-check it so an
	// expired-but-unswept row still fails closed.
	ConsumeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// CreateAccessToken stores an issued access token.
	CreateAccessToken(ctx context.Context, token *AccessToken) error

	// GetAccessToken retrieves an access token. Returns ErrNotFound if absent.
	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)

	// DeleteAccessToken removes an access token. Deleting a token that does
	// not exist is not an error.
	DeleteAccessToken(ctx context.Context, token string) error

	// CreateRefreshToken stores an issued refresh token.
	CreateRefreshToken(ctx context.Context, token *RefreshToken) error

	// GetRefreshToken retrieves a refresh token. Returns ErrNotFound if absent.
	GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error)

	// DeleteRefreshToken removes a refresh token. Deleting a token that does
	// not exist is not an error.
	DeleteRefreshToken(ctx context.Context, token string) error

	// SweepExpired deletes all authorization codes and access tokens whose
	// expiry is at or before now, returning the number of rows removed.
	// Refresh tokens are not swept. Safe to call concurrently with traffic.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}
