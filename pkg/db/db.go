// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

// Package db opens the worklogd SQLite database and applies schema
// migrations. The returned handle is shared by the OAuth grant stores, the
// user store and the worklog ledger.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/worklogd/worklogd/pkg/logger"
)

// DB wraps the underlying sql.DB so callers can share one connection pool
// across stores without re-running migrations.
type DB struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and applies
// all pending migrations. Use ":memory:" for an ephemeral database in tests.
func Open(ctx context.Context, path string) (*DB, error) {
	// busy_timeout avoids spurious SQLITE_BUSY under concurrent writers;
	// WAL lets readers proceed while a write is in flight.
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// modernc.org/sqlite serializes writes; a single connection sidesteps
	// table-lock errors between pooled connections.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := runMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	logger.Debugw("database opened", "path", path)
	return &DB{db: sqlDB}, nil
}

// DB returns the underlying sql.DB for store implementations.
func (d *DB) DB() *sql.DB {
	return d.db
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Rollback rolls a transaction back, ignoring the error returned when the
// transaction was already committed.
func Rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		logger.Warnw("transaction rollback failed", "error", err)
	}
}

// IsUniqueViolation reports whether err is a SQLite unique-constraint error.
func IsUniqueViolation(err error) bool {
	var se *sqlite3.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
