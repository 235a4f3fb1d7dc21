// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/worklogd/worklogd/pkg/db"
	"github.com/worklogd/worklogd/pkg/logger"
)

// SQLiteStore implements ClientRegistry and GrantStore on the shared
// SQLite database. All operations are row-scoped; the only multi-row
// statements are the range deletes in SweepExpired.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store over the shared database handle.
func NewSQLiteStore(database *db.DB) *SQLiteStore {
	return &SQLiteStore{db: database.DB()}
}

// Compile-time interface compliance checks
var (
	_ ClientRegistry = (*SQLiteStore)(nil)
	_ GrantStore     = (*SQLiteStore)(nil)
)

// encodeScopes serializes a scope set as JSON text for storage.
func encodeScopes(scopes []string) (string, error) {
	if scopes == nil {
		scopes = []string{}
	}
	raw, err := json.Marshal(scopes)
	if err != nil {
		return "", fmt.Errorf("encoding scopes: %w", err)
	}
	return string(raw), nil
}

func decodeScopes(raw string) ([]string, error) {
	var scopes []string
	if err := json.Unmarshal([]byte(raw), &scopes); err != nil {
		return nil, fmt.Errorf("decoding scopes: %w", err)
	}
	return scopes, nil
}

// -----------------------
// ClientRegistry
// -----------------------

// CreateClient stores a newly registered client.
func (s *SQLiteStore) CreateClient(ctx context.Context, client *Client) error {
	uris, err := json.Marshal(client.RedirectURIs)
	if err != nil {
		return fmt.Errorf("encoding redirect URIs: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO oauth_clients (client_id, client_secret, client_name, redirect_uris, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		client.ClientID,
		client.ClientSecret,
		client.Name,
		string(uris),
		client.CreatedAt.Unix(),
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: client %s", ErrAlreadyExists, client.ClientID)
		}
		return fmt.Errorf("inserting client: %w", err)
	}
	return nil
}

// GetClient retrieves a client by its ID.
func (s *SQLiteStore) GetClient(ctx context.Context, clientID string) (*Client, error) {
	var (
		client    Client
		uris      string
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT client_id, client_secret, client_name, redirect_uris, created_at
		FROM oauth_clients WHERE client_id = ?`, clientID,
	).Scan(&client.ClientID, &client.ClientSecret, &client.Name, &uris, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		logger.Debugw("client not found", "client_id", clientID)
		return nil, fmt.Errorf("%w: client", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying client: %w", err)
	}

	if err := json.Unmarshal([]byte(uris), &client.RedirectURIs); err != nil {
		return nil, fmt.Errorf("decoding redirect URIs: %w", err)
	}
	client.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &client, nil
}

// -----------------------
// GrantStore: authorization codes
// -----------------------

// CreateAuthorizationCode stores a freshly minted authorization code.
func (s *SQLiteStore) CreateAuthorizationCode(ctx context.Context, code *AuthorizationCode) error {
	scopes, err := encodeScopes(code.Scopes)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO authorization_codes (code, client_id, user_id, code_challenge, redirect_uri, scopes, resource, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		code.Code,
		code.ClientID,
		code.UserID,
		code.CodeChallenge,
		code.RedirectURI,
		scopes,
		code.Resource,
		code.ExpiresAt.Unix(),
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: authorization code", ErrAlreadyExists)
		}
		return fmt.Errorf("inserting authorization code: %w", err)
	}
	return nil
}

// ConsumeAuthorizationCode atomically deletes and returns the code.
// DELETE ... RETURNING makes delete-and-read a single statement, so a racing
// double-submission yields exactly one success and one ErrNotFound.
func (s *SQLiteStore) ConsumeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	var (
		rec       AuthorizationCode
		scopes    string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM authorization_codes WHERE code = ?
		RETURNING code, client_id, user_id, code_challenge, redirect_uri, scopes, resource, expires_at`,
		code,
	).Scan(&rec.Code, &rec.ClientID, &rec.UserID, &rec.CodeChallenge, &rec.RedirectURI, &scopes, &rec.Resource, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		logger.Debugw("authorization code not found")
		return nil, fmt.Errorf("%w: authorization code", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("consuming authorization code: %w", err)
	}

	rec.Scopes, err = decodeScopes(scopes)
	if err != nil {
		return nil, err
	}
	rec.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return &rec, nil
}

// -----------------------
// GrantStore: access tokens
// -----------------------

// CreateAccessToken stores an issued access token.
func (s *SQLiteStore) CreateAccessToken(ctx context.Context, token *AccessToken) error {
	scopes, err := encodeScopes(token.Scopes)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO access_tokens (token, client_id, user_id, scopes, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		token.Token, token.ClientID, token.UserID, scopes, token.ExpiresAt.Unix(),
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: access token", ErrAlreadyExists)
		}
		return fmt.Errorf("inserting access token: %w", err)
	}
	return nil
}

// GetAccessToken retrieves an access token by its value.
func (s *SQLiteStore) GetAccessToken(ctx context.Context, token string) (*AccessToken, error) {
	var (
		rec       AccessToken
		scopes    string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT token, client_id, user_id, scopes, expires_at
		FROM access_tokens WHERE token = ?`, token,
	).Scan(&rec.Token, &rec.ClientID, &rec.UserID, &scopes, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		logger.Debugw("access token not found")
		return nil, fmt.Errorf("%w: access token", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying access token: %w", err)
	}

	rec.Scopes, err = decodeScopes(scopes)
	if err != nil {
		return nil, err
	}
	rec.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return &rec, nil
}

// DeleteAccessToken removes an access token. Idempotent.
func (s *SQLiteStore) DeleteAccessToken(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE token = ?`, token); err != nil {
		return fmt.Errorf("deleting access token: %w", err)
	}
	return nil
}

// -----------------------
// GrantStore: refresh tokens
// -----------------------

// CreateRefreshToken stores an issued refresh token.
func (s *SQLiteStore) CreateRefreshToken(ctx context.Context, token *RefreshToken) error {
	scopes, err := encodeScopes(token.Scopes)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token, client_id, user_id, scopes, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		token.Token, token.ClientID, token.UserID, scopes, time.Now().Unix(),
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: refresh token", ErrAlreadyExists)
		}
		return fmt.Errorf("inserting refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken retrieves a refresh token by its value.
func (s *SQLiteStore) GetRefreshToken(ctx context.Context, token string) (*RefreshToken, error) {
	var (
		rec    RefreshToken
		scopes string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT token, client_id, user_id, scopes
		FROM refresh_tokens WHERE token = ?`, token,
	).Scan(&rec.Token, &rec.ClientID, &rec.UserID, &scopes)
	if errors.Is(err, sql.ErrNoRows) {
		logger.Debugw("refresh token not found")
		return nil, fmt.Errorf("%w: refresh token", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying refresh token: %w", err)
	}

	rec.Scopes, err = decodeScopes(scopes)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteRefreshToken removes a refresh token. Idempotent.
func (s *SQLiteStore) DeleteRefreshToken(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token = ?`, token); err != nil {
		return fmt.Errorf("deleting refresh token: %w", err)
	}
	return nil
}

// -----------------------
// Expiry sweep
// -----------------------

// SweepExpired deletes expired authorization codes and access tokens.
// Refresh tokens have no expiry and are left alone. The deletes are
// range-scoped on the expires_at index, so the sweep never blocks
// unrelated per-key traffic.
func (s *SQLiteStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed int64

	res, err := s.db.ExecContext(ctx, `DELETE FROM authorization_codes WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return removed, fmt.Errorf("sweeping authorization codes: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}

	res, err = s.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return removed, fmt.Errorf("sweeping access tokens: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}

	return removed, nil
}
