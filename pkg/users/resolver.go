// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/worklogd/worklogd/pkg/logger"
)

// Profile is the subset of an upstream identity-provider profile the
// resolver needs to map an external identity to a local account.
type Profile struct {
	// Subject is the provider's stable identifier for the user.
	Subject string
	// Login is the provider-side username, used as the local username.
	Login string
	// Email is the provider-reported email, if any.
	Email string
}

// Resolver maps upstream provider profiles to local user accounts,
// creating accounts on first sight.
type Resolver struct {
	store Store
}

// NewResolver creates a resolver over the given user store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// ResolveOrCreate finds the local user for the provider profile, creating
// one on first login. The very first user ever created becomes the sole
// initial admin; everyone after that defaults to member. LastLogin is
// stamped on every successful resolution.
func (r *Resolver) ResolveOrCreate(ctx context.Context, profile *Profile) (*User, error) {
	if profile == nil || profile.Subject == "" {
		return nil, errors.New("provider profile has no subject")
	}

	now := time.Now().UTC()

	existing, err := r.store.GetUserByExternalID(ctx, profile.Subject)
	if err == nil {
		updated, err := r.store.UpdateUser(ctx, existing.ID, Patch{LastLogin: &now})
		if err != nil {
			return nil, fmt.Errorf("stamping last login: %w", err)
		}
		return updated, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("looking up user by external ID: %w", err)
	}

	count, err := r.store.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting users: %w", err)
	}

	role := RoleMember
	if count == 0 {
		role = RoleAdmin
	}

	username := profile.Login
	if username == "" {
		username = profile.Subject
	}

	user := &User{
		ID:         username,
		Username:   username,
		Email:      profile.Email,
		Role:       role,
		ExternalID: profile.Subject,
		CreatedAt:  now,
		LastLogin:  now,
	}

	if err := r.store.CreateUser(ctx, user); err != nil {
		// Two first logins racing on the same identity: exactly one insert
		// wins the unique index on external_id; the loser re-reads.
		if errors.Is(err, ErrAlreadyExists) {
			return r.store.GetUserByExternalID(ctx, profile.Subject)
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	logger.Infow("created user from provider profile",
		"user_id", user.ID,
		"role", string(user.Role),
	)
	return user, nil
}
