// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

// Package worklog implements worklogd's time-tracking domain: projects,
// logged time entries, and per-user running timers.
package worklog

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when a record conflicts with an existing one.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrTimerRunning is returned when starting a timer while one is running.
	ErrTimerRunning = errors.New("a timer is already running")

	// ErrNoTimer is returned when stopping a timer while none is running.
	ErrNoTimer = errors.New("no timer is running")
)

// Project groups time entries under a name, optionally tied to a client.
type Project struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ClientName string    `json:"client_name,omitempty"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// TimeEntry is a completed block of tracked time.
type TimeEntry struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	ProjectID   string        `json:"project_id"`
	Description string        `json:"description,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"-"`
}

// MarshalJSON renders the duration in whole seconds rather than
// time.Duration's nanosecond integer encoding.
func (e *TimeEntry) MarshalJSON() ([]byte, error) {
	type alias TimeEntry
	return json.Marshal(&struct {
		*alias
		DurationSeconds int64 `json:"duration_seconds"`
	}{
		alias:           (*alias)(e),
		DurationSeconds: int64(e.Duration.Seconds()),
	})
}

// Timer is a running stopwatch. Each user has at most one.
type Timer struct {
	UserID      string    `json:"user_id"`
	ProjectID   string    `json:"project_id"`
	Description string    `json:"description,omitempty"`
	StartedAt   time.Time `json:"started_at"`
}

// EntryFilter narrows ListEntries. Zero values mean no constraint.
type EntryFilter struct {
	UserID    string
	ProjectID string
	Since     time.Time
	Until     time.Time
	Limit     int
}
