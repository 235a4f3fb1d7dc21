// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

package worklog

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worklogd/worklogd/pkg/auth"
	"github.com/worklogd/worklogd/pkg/db"
	"github.com/worklogd/worklogd/pkg/users"
)

func newTestStore(t *testing.T) (*SQLiteStore, *users.SQLiteStore) {
	t.Helper()

	database, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	return NewSQLiteStore(database), users.NewSQLiteStore(database)
}

func TestProjectRoundTrip(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	project := &Project{Name: "roadmap", ClientName: "acme", CreatedBy: "ana", CreatedAt: time.Now().UTC()}
	require.NoError(t, store.CreateProject(ctx, project))
	require.NotEmpty(t, project.ID)

	got, err := store.GetProjectByName(ctx, "roadmap")
	require.NoError(t, err)
	assert.Equal(t, project.ID, got.ID)
	assert.Equal(t, "acme", got.ClientName)

	err = store.CreateProject(ctx, &Project{Name: "roadmap", CreatedBy: "bo", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = store.GetProjectByName(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := store.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestEntryFilter(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	project := &Project{Name: "p", CreatedBy: "ana", CreatedAt: now}
	require.NoError(t, store.CreateProject(ctx, project))

	for i, userID := range []string{"ana", "ana", "bo"} {
		require.NoError(t, store.CreateEntry(ctx, &TimeEntry{
			UserID:    userID,
			ProjectID: project.ID,
			StartedAt: now.Add(time.Duration(-i) * time.Hour),
			Duration:  30 * time.Minute,
		}))
	}

	mine, err := store.ListEntries(ctx, EntryFilter{UserID: "ana"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	// Most recent first.
	assert.True(t, !mine[0].StartedAt.Before(mine[1].StartedAt))

	limited, err := store.ListEntries(ctx, EntryFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	since, err := store.ListEntries(ctx, EntryFilter{Since: now.Add(-30 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, since, 1)
}

func TestTimerLifecycle(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()
	started := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)

	require.NoError(t, store.StartTimer(ctx, &Timer{
		UserID: "ana", ProjectID: "p1", Description: "deep work", StartedAt: started,
	}))

	// One timer per user.
	err := store.StartTimer(ctx, &Timer{UserID: "ana", ProjectID: "p2", StartedAt: time.Now()})
	assert.ErrorIs(t, err, ErrTimerRunning)

	// Other users are unaffected.
	require.NoError(t, store.StartTimer(ctx, &Timer{UserID: "bo", ProjectID: "p1", StartedAt: time.Now()}))

	timer, err := store.GetTimer(ctx, "ana")
	require.NoError(t, err)
	assert.Equal(t, "p1", timer.ProjectID)

	entry, err := store.StopTimer(ctx, "ana", started.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "ana", entry.UserID)
	assert.Equal(t, "deep work", entry.Description)
	assert.Equal(t, 90*time.Minute, entry.Duration)

	_, err = store.GetTimer(ctx, "ana")
	assert.ErrorIs(t, err, ErrNoTimer)
	_, err = store.StopTimer(ctx, "ana", time.Now())
	assert.ErrorIs(t, err, ErrNoTimer)
}

func identityCtx(identity *auth.Identity) context.Context {
	return auth.WithIdentity(context.Background(), identity)
}

func callToolRequest(t *testing.T, args map[string]any) mcp.CallToolRequest {
	t.Helper()

	raw, err := json.Marshal(args)
	require.NoError(t, err)
	req := mcp.CallToolRequest{}
	req.Params.Arguments = json.RawMessage(raw)
	return req
}

func TestToolsRequireIdentity(t *testing.T) {
	t.Parallel()

	store, userStore := newTestStore(t)
	handler := NewToolHandler(store, userStore)

	result, err := handler.CreateProject(context.Background(), callToolRequest(t, map[string]any{"name": "p"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = handler.StopTimer(context.Background(), callToolRequest(t, nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestToolFlow(t *testing.T) {
	t.Parallel()

	store, userStore := newTestStore(t)
	handler := NewToolHandler(store, userStore)
	ana := identityCtx(&auth.Identity{Subject: "ana", Role: users.RoleAdmin})
	bo := identityCtx(&auth.Identity{Subject: "bo", Role: users.RoleMember})

	result, err := handler.CreateProject(ana, callToolRequest(t, map[string]any{"name": "roadmap"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	// Duplicate names are rejected.
	result, err = handler.CreateProject(bo, callToolRequest(t, map[string]any{"name": "roadmap"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = handler.LogTime(ana, callToolRequest(t, map[string]any{
		"project": "roadmap", "minutes": 45, "description": "planning",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = handler.LogTime(bo, callToolRequest(t, map[string]any{
		"project": "roadmap", "minutes": 15,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	// Members only see their own entries.
	entries, err := store.ListEntries(context.Background(), EntryFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	result, err = handler.ListEntries(bo, callToolRequest(t, nil))
	require.NoError(t, err)
	require.False(t, result.IsError)
	text := result.Content[0].(mcp.TextContent).Text
	assert.Contains(t, text, `"bo"`)
	assert.NotContains(t, text, `"ana"`)

	// Admins see everyone's.
	result, err = handler.ListEntries(ana, callToolRequest(t, nil))
	require.NoError(t, err)
	require.False(t, result.IsError)
	text = result.Content[0].(mcp.TextContent).Text
	assert.Contains(t, text, `"bo"`)
	assert.Contains(t, text, `"ana"`)

	// Unknown project.
	result, err = handler.LogTime(ana, callToolRequest(t, map[string]any{"project": "nope", "minutes": 5}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestTimerTools(t *testing.T) {
	t.Parallel()

	store, userStore := newTestStore(t)
	handler := NewToolHandler(store, userStore)
	ana := identityCtx(&auth.Identity{Subject: "ana", Role: users.RoleMember})

	_, err := handler.CreateProject(ana, callToolRequest(t, map[string]any{"name": "ops"}))
	require.NoError(t, err)

	result, err := handler.StartTimer(ana, callToolRequest(t, map[string]any{"project": "ops", "description": "oncall"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = handler.StartTimer(ana, callToolRequest(t, map[string]any{"project": "ops"}))
	require.NoError(t, err)
	assert.True(t, result.IsError, "second start must fail while a timer runs")

	result, err = handler.StopTimer(ana, callToolRequest(t, nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = handler.StopTimer(ana, callToolRequest(t, nil))
	require.NoError(t, err)
	assert.True(t, result.IsError, "stop without a running timer must fail")
}

func TestListUsersAdminOnly(t *testing.T) {
	t.Parallel()

	store, userStore := newTestStore(t)
	handler := NewToolHandler(store, userStore)
	now := time.Now().UTC()

	require.NoError(t, userStore.CreateUser(context.Background(), &users.User{
		ID: "ana", Username: "ana", Role: users.RoleAdmin, ExternalID: "1", CreatedAt: now, LastLogin: now,
	}))
	require.NoError(t, userStore.CreateUser(context.Background(), &users.User{
		ID: "bo", Username: "bo", Role: users.RoleMember, ExternalID: "2", CreatedAt: now, LastLogin: now,
	}))

	result, err := handler.ListUsers(identityCtx(&auth.Identity{Subject: "bo", Role: users.RoleMember}), callToolRequest(t, nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = handler.ListUsers(identityCtx(&auth.Identity{Subject: "ana", Role: users.RoleAdmin}), callToolRequest(t, nil))
	require.NoError(t, err)
	require.False(t, result.IsError)
	text := result.Content[0].(mcp.TextContent).Text
	assert.Contains(t, text, "ana")
	assert.Contains(t, text, "bo")
}
