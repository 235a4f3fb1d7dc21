// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

// Package users manages worklogd user accounts and their mapping to
// upstream identity-provider profiles.
package users

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = errors.New("user not found")

	// ErrAlreadyExists is returned when a user with the same ID already exists.
	ErrAlreadyExists = errors.New("user already exists")
)

// Role controls what a user may administer.
type Role string

const (
	// RoleAdmin can manage users and all projects.
	RoleAdmin Role = "admin"
	// RoleMember is the default role for every user after the first.
	RoleMember Role = "member"
)

// User is a worklogd account. ExternalID links the account to the upstream
// identity provider subject that first created it.
type User struct {
	ID         string
	Username   string
	Email      string
	Role       Role
	ExternalID string
	CreatedAt  time.Time
	LastLogin  time.Time
}

// Patch holds optional field updates for UpdateUser. Nil fields are left
// unchanged.
type Patch struct {
	Email     *string
	Role      *Role
	LastLogin *time.Time
}

// Store is the durable user store consumed by the identity bridge and
// exposed read-only to session-bound request handlers.
type Store interface {
	// CreateUser stores a new user. Returns ErrAlreadyExists when the ID or
	// external ID is already taken.
	CreateUser(ctx context.Context, user *User) error

	// GetUser retrieves a user by internal ID. Returns ErrNotFound if absent.
	GetUser(ctx context.Context, id string) (*User, error)

	// GetUserByExternalID retrieves a user by upstream identity subject.
	// Returns ErrNotFound if absent.
	GetUserByExternalID(ctx context.Context, externalID string) (*User, error)

	// GetUsers returns all users.
	GetUsers(ctx context.Context) ([]*User, error)

	// CountUsers returns the number of users.
	CountUsers(ctx context.Context) (int64, error)

	// UpdateUser applies the patch to the user. Returns ErrNotFound if absent.
	UpdateUser(ctx context.Context, id string, patch Patch) (*User, error)
}
