// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

package worklog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/worklogd/worklogd/pkg/db"
)

// Store is the durable worklog store consumed by the session tools.
type Store interface {
	// CreateProject stores a new project. Returns ErrAlreadyExists when the
	// name is taken.
	CreateProject(ctx context.Context, project *Project) error

	// GetProject retrieves a project by ID. Returns ErrNotFound if absent.
	GetProject(ctx context.Context, id string) (*Project, error)

	// GetProjectByName retrieves a project by name. Returns ErrNotFound if absent.
	GetProjectByName(ctx context.Context, name string) (*Project, error)

	// ListProjects returns all projects ordered by name.
	ListProjects(ctx context.Context) ([]*Project, error)

	// CreateEntry stores a completed time entry.
	CreateEntry(ctx context.Context, entry *TimeEntry) error

	// ListEntries returns entries matching the filter, most recent first.
	ListEntries(ctx context.Context, filter EntryFilter) ([]*TimeEntry, error)

	// StartTimer starts a timer for the user. Returns ErrTimerRunning when
	// one is already running.
	StartTimer(ctx context.Context, timer *Timer) error

	// GetTimer returns the user's running timer. Returns ErrNoTimer if absent.
	GetTimer(ctx context.Context, userID string) (*Timer, error)

	// StopTimer atomically stops the user's timer and converts it into a
	// time entry. Returns ErrNoTimer when no timer is running.
	StopTimer(ctx context.Context, userID string, now time.Time) (*TimeEntry, error)
}

// SQLiteStore implements Store on the shared SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a worklog store over the shared database handle.
func NewSQLiteStore(database *db.DB) *SQLiteStore {
	return &SQLiteStore{db: database.DB()}
}

var _ Store = (*SQLiteStore)(nil)

// CreateProject stores a new project.
func (s *SQLiteStore) CreateProject(ctx context.Context, project *Project) error {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, client_name, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		project.ID, project.Name, project.ClientName, project.CreatedBy, project.CreatedAt.Unix(),
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: project %q", ErrAlreadyExists, project.Name)
		}
		return fmt.Errorf("inserting project: %w", err)
	}
	return nil
}

func scanProject(row interface{ Scan(...any) error }) (*Project, error) {
	var (
		p         Project
		createdAt int64
	)
	err := row.Scan(&p.ID, &p.Name, &p.ClientName, &p.CreatedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning project: %w", err)
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &p, nil
}

const projectColumns = `id, name, client_name, created_by, created_at`

// GetProject retrieves a project by ID.
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

// GetProjectByName retrieves a project by name.
func (s *SQLiteStore) GetProjectByName(ctx context.Context, name string) (*Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE name = ?`, name)
	return scanProject(row)
}

// ListProjects returns all projects ordered by name.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating projects: %w", err)
	}
	return out, nil
}

// CreateEntry stores a completed time entry.
func (s *SQLiteStore) CreateEntry(ctx context.Context, entry *TimeEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO time_entries (id, user_id, project_id, description, started_at, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.ProjectID, entry.Description,
		entry.StartedAt.Unix(), int64(entry.Duration.Seconds()),
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: entry %s", ErrAlreadyExists, entry.ID)
		}
		return fmt.Errorf("inserting time entry: %w", err)
	}
	return nil
}

// ListEntries returns entries matching the filter, most recent first.
func (s *SQLiteStore) ListEntries(ctx context.Context, filter EntryFilter) ([]*TimeEntry, error) {
	query := `SELECT id, user_id, project_id, description, started_at, duration_seconds
		FROM time_entries WHERE 1=1`
	var args []any

	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, filter.ProjectID)
	}
	if !filter.Since.IsZero() {
		query += ` AND started_at >= ?`
		args = append(args, filter.Since.Unix())
	}
	if !filter.Until.IsZero() {
		query += ` AND started_at < ?`
		args = append(args, filter.Until.Unix())
	}
	query += ` ORDER BY started_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying time entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*TimeEntry
	for rows.Next() {
		var (
			e         TimeEntry
			startedAt int64
			duration  int64
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.ProjectID, &e.Description, &startedAt, &duration); err != nil {
			return nil, fmt.Errorf("scanning time entry: %w", err)
		}
		e.StartedAt = time.Unix(startedAt, 0).UTC()
		e.Duration = time.Duration(duration) * time.Second
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating time entries: %w", err)
	}
	return out, nil
}

// StartTimer starts a timer for the user.
func (s *SQLiteStore) StartTimer(ctx context.Context, timer *Timer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO timers (user_id, project_id, description, started_at)
		VALUES (?, ?, ?, ?)`,
		timer.UserID, timer.ProjectID, timer.Description, timer.StartedAt.Unix(),
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w", ErrTimerRunning)
		}
		return fmt.Errorf("inserting timer: %w", err)
	}
	return nil
}

// GetTimer returns the user's running timer.
func (s *SQLiteStore) GetTimer(ctx context.Context, userID string) (*Timer, error) {
	var (
		t         Timer
		startedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, project_id, description, started_at
		FROM timers WHERE user_id = ?`, userID,
	).Scan(&t.UserID, &t.ProjectID, &t.Description, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w", ErrNoTimer)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning timer: %w", err)
	}
	t.StartedAt = time.Unix(startedAt, 0).UTC()
	return &t, nil
}

// StopTimer atomically stops the user's timer and converts it into a time
// entry. The DELETE ... RETURNING guarantees that two racing stops produce
// exactly one entry.
func (s *SQLiteStore) StopTimer(ctx context.Context, userID string, now time.Time) (*TimeEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer db.Rollback(tx)

	var (
		t         Timer
		startedAt int64
	)
	err = tx.QueryRowContext(ctx, `
		DELETE FROM timers WHERE user_id = ?
		RETURNING user_id, project_id, description, started_at`, userID,
	).Scan(&t.UserID, &t.ProjectID, &t.Description, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w", ErrNoTimer)
	}
	if err != nil {
		return nil, fmt.Errorf("deleting timer: %w", err)
	}
	t.StartedAt = time.Unix(startedAt, 0).UTC()

	entry := &TimeEntry{
		ID:          uuid.NewString(),
		UserID:      t.UserID,
		ProjectID:   t.ProjectID,
		Description: t.Description,
		StartedAt:   t.StartedAt,
		Duration:    now.Sub(t.StartedAt).Truncate(time.Second),
	}
	if entry.Duration < 0 {
		entry.Duration = 0
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO time_entries (id, user_id, project_id, description, started_at, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.ProjectID, entry.Description,
		entry.StartedAt.Unix(), int64(entry.Duration.Seconds()),
	); err != nil {
		return nil, fmt.Errorf("inserting time entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing timer stop: %w", err)
	}
	return entry, nil
}
