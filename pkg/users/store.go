// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/worklogd/worklogd/pkg/db"
)

// SQLiteStore implements Store on the shared SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a user store over the shared database handle.
func NewSQLiteStore(database *db.DB) *SQLiteStore {
	return &SQLiteStore{db: database.DB()}
}

var _ Store = (*SQLiteStore)(nil)

const userColumns = `id, username, email, role, external_id, created_at, last_login`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var (
		u         User
		createdAt int64
		lastLogin int64
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.ExternalID, &createdAt, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	u.LastLogin = time.Unix(lastLogin, 0).UTC()
	return &u, nil
}

// CreateUser stores a new user.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, role, external_id, created_at, last_login)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, string(user.Role), user.ExternalID,
		user.CreatedAt.Unix(), user.LastLogin.Unix(),
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, user.ID)
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by internal ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByExternalID retrieves a user by upstream identity subject.
func (s *SQLiteStore) GetUserByExternalID(ctx context.Context, externalID string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE external_id = ? AND external_id != ''`, externalID)
	return scanUser(row)
}

// GetUsers returns all users ordered by creation time.
func (s *SQLiteStore) GetUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return out, nil
}

// CountUsers returns the number of users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

// UpdateUser applies the patch to the user and returns the updated record.
func (s *SQLiteStore) UpdateUser(ctx context.Context, id string, patch Patch) (*User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer db.Rollback(tx)

	if patch.Email != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE users SET email = ? WHERE id = ?`, *patch.Email, id); err != nil {
			return nil, fmt.Errorf("updating email: %w", err)
		}
	}
	if patch.Role != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE users SET role = ? WHERE id = ?`, string(*patch.Role), id); err != nil {
			return nil, fmt.Errorf("updating role: %w", err)
		}
	}
	if patch.LastLogin != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, patch.LastLogin.Unix(), id); err != nil {
			return nil, fmt.Errorf("updating last login: %w", err)
		}
	}

	user, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing user update: %w", err)
	}
	return user, nil
}
