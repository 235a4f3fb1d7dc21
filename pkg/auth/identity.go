// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth binds authenticated identities to request contexts and
// provides the bearer-token middleware protecting the session endpoints.
package auth

import (
	"fmt"

	"github.com/worklogd/worklogd/pkg/users"
)

// Identity represents the authenticated user behind a request.
type Identity struct {
	// Subject is the local user ID.
	Subject string

	// Username is the human-readable account name.
	Username string

	// Email is the user's email address, if known.
	Email string

	// Role is the user's role in this deployment.
	Role users.Role
}

// IdentityFromUser builds an Identity from a resolved user record.
func IdentityFromUser(user *users.User) *Identity {
	return &Identity{
		Subject:  user.ID,
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
	}
}

// IsAdmin reports whether the identity holds the admin role.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == users.RoleAdmin
}

// String keeps log output down to the subject.
func (i *Identity) String() string {
	if i == nil {
		return "<nil>"
	}
	return fmt.Sprintf("Identity{Subject:%q}", i.Subject)
}
