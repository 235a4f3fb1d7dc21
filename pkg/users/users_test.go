// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

package users

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worklogd/worklogd/pkg/db"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	database, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	return NewSQLiteStore(database)
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	user := &User{
		ID:         "ana",
		Username:   "ana",
		Email:      "ana@example.com",
		Role:       RoleAdmin,
		ExternalID: "42",
		CreatedAt:  now,
		LastLogin:  now,
	}
	require.NoError(t, store.CreateUser(ctx, user))

	got, err := store.GetUser(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, got.Role)
	assert.Equal(t, now, got.LastLogin)

	byExt, err := store.GetUserByExternalID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "ana", byExt.ID)

	_, err = store.GetUser(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.CreateUser(ctx, user)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestUpdateUserPatch(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.CreateUser(ctx, &User{
		ID: "bo", Username: "bo", Role: RoleMember, ExternalID: "7",
		CreatedAt: now, LastLogin: now,
	}))

	newRole := RoleAdmin
	later := now.Add(time.Hour)
	updated, err := store.UpdateUser(ctx, "bo", Patch{Role: &newRole, LastLogin: &later})
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, updated.Role)
	assert.Equal(t, later, updated.LastLogin)
	assert.Equal(t, "bo", updated.Username)

	_, err = store.UpdateUser(ctx, "nobody", Patch{Role: &newRole})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolverFirstUserBecomesAdmin(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	resolver := NewResolver(store)
	ctx := context.Background()

	first, err := resolver.ResolveOrCreate(ctx, &Profile{Subject: "42", Login: "ana", Email: "ana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, first.Role)
	assert.Equal(t, "ana", first.ID)

	second, err := resolver.ResolveOrCreate(ctx, &Profile{Subject: "43", Login: "bo"})
	require.NoError(t, err)
	assert.Equal(t, RoleMember, second.Role)

	third, err := resolver.ResolveOrCreate(ctx, &Profile{Subject: "44", Login: "cy"})
	require.NoError(t, err)
	assert.Equal(t, RoleMember, third.Role)
}

func TestResolverStampsLastLogin(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	resolver := NewResolver(store)
	ctx := context.Background()

	first, err := resolver.ResolveOrCreate(ctx, &Profile{Subject: "42", Login: "ana"})
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)

	again, err := resolver.ResolveOrCreate(ctx, &Profile{Subject: "42", Login: "ana"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, again.LastLogin.After(first.LastLogin), "last login must be refreshed")

	count, err := store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "repeat login must not create a second user")
}

func TestResolverRejectsEmptySubject(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(newTestStore(t))
	_, err := resolver.ResolveOrCreate(context.Background(), &Profile{Login: "ghost"})
	assert.Error(t, err)
	_, err = resolver.ResolveOrCreate(context.Background(), nil)
	assert.Error(t, err)
}
