// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

package worklog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/worklogd/worklogd/pkg/auth"
	"github.com/worklogd/worklogd/pkg/users"
)

// ToolHandler implements the worklog tools exposed over the session
// protocol. Every tool reads the authenticated identity from the request
// context; the session layer binds it before dispatch.
type ToolHandler struct {
	store Store
	users users.Store
}

// NewToolHandler creates a tool handler over the given stores.
func NewToolHandler(store Store, userStore users.Store) *ToolHandler {
	return &ToolHandler{store: store, users: userStore}
}

// RegisterTools registers all worklog tools on the MCP server.
func (h *ToolHandler) RegisterTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.Tool{
		Name:        "create_project",
		Description: "Create a new project to track time against",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Unique project name",
				},
				"client_name": map[string]interface{}{
					"type":        "string",
					"description": "Optional client the project belongs to",
				},
			},
			Required: []string{"name"},
		},
	}, h.CreateProject)

	mcpServer.AddTool(mcp.Tool{
		Name:        "list_projects",
		Description: "List all projects",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, h.ListProjects)

	mcpServer.AddTool(mcp.Tool{
		Name:        "log_time",
		Description: "Log a completed block of time against a project",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": map[string]interface{}{
					"type":        "string",
					"description": "Project name to log against",
				},
				"minutes": map[string]interface{}{
					"type":        "number",
					"description": "Duration in minutes",
				},
				"description": map[string]interface{}{
					"type":        "string",
					"description": "What the time was spent on",
				},
				"started_at": map[string]interface{}{
					"type":        "string",
					"description": "RFC 3339 start time, defaults to now minus the duration",
				},
			},
			Required: []string{"project", "minutes"},
		},
	}, h.LogTime)

	mcpServer.AddTool(mcp.Tool{
		Name:        "start_timer",
		Description: "Start a running timer on a project",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": map[string]interface{}{
					"type":        "string",
					"description": "Project name to track",
				},
				"description": map[string]interface{}{
					"type":        "string",
					"description": "What is being worked on",
				},
			},
			Required: []string{"project"},
		},
	}, h.StartTimer)

	mcpServer.AddTool(mcp.Tool{
		Name:        "stop_timer",
		Description: "Stop the running timer and log the tracked time",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, h.StopTimer)

	mcpServer.AddTool(mcp.Tool{
		Name:        "list_entries",
		Description: "List your logged time entries, most recent first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"project": map[string]interface{}{
					"type":        "string",
					"description": "Restrict to a project name",
				},
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of entries to return",
				},
			},
		},
	}, h.ListEntries)

	mcpServer.AddTool(mcp.Tool{
		Name:        "list_users",
		Description: "List all users of this deployment (admin only)",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, h.ListUsers)
}

// CreateProject handles the create_project tool.
func (h *ToolHandler) CreateProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity, err := auth.RequireIdentity(ctx)
	if err != nil {
		return mcp.NewToolResultError("not authenticated"), nil
	}

	args := struct {
		Name       string `json:"name"`
		ClientName string `json:"client_name"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse arguments: %v", err)), nil
	}
	if args.Name == "" {
		return mcp.NewToolResultError("project name is required"), nil
	}

	project := &Project{
		Name:       args.Name,
		ClientName: args.ClientName,
		CreatedBy:  identity.Subject,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.store.CreateProject(ctx, project); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return mcp.NewToolResultError(fmt.Sprintf("project %q already exists", args.Name)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to create project: %v", err)), nil
	}
	return jsonResult(project)
}

// ListProjects handles the list_projects tool.
func (h *ToolHandler) ListProjects(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := auth.RequireIdentity(ctx); err != nil {
		return mcp.NewToolResultError("not authenticated"), nil
	}

	projects, err := h.store.ListProjects(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list projects: %v", err)), nil
	}
	return jsonResult(projects)
}

// LogTime handles the log_time tool.
func (h *ToolHandler) LogTime(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity, err := auth.RequireIdentity(ctx)
	if err != nil {
		return mcp.NewToolResultError("not authenticated"), nil
	}

	args := struct {
		Project     string  `json:"project"`
		Minutes     float64 `json:"minutes"`
		Description string  `json:"description"`
		StartedAt   string  `json:"started_at"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse arguments: %v", err)), nil
	}
	if args.Minutes <= 0 {
		return mcp.NewToolResultError("minutes must be positive"), nil
	}

	project, err := h.store.GetProjectByName(ctx, args.Project)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("unknown project %q", args.Project)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to look up project: %v", err)), nil
	}

	duration := time.Duration(args.Minutes * float64(time.Minute)).Truncate(time.Second)
	startedAt := time.Now().UTC().Add(-duration)
	if args.StartedAt != "" {
		startedAt, err = time.Parse(time.RFC3339, args.StartedAt)
		if err != nil {
			return mcp.NewToolResultError("started_at must be RFC 3339"), nil
		}
	}

	entry := &TimeEntry{
		UserID:      identity.Subject,
		ProjectID:   project.ID,
		Description: args.Description,
		StartedAt:   startedAt,
		Duration:    duration,
	}
	if err := h.store.CreateEntry(ctx, entry); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to log time: %v", err)), nil
	}
	return jsonResult(entry)
}

// StartTimer handles the start_timer tool.
func (h *ToolHandler) StartTimer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity, err := auth.RequireIdentity(ctx)
	if err != nil {
		return mcp.NewToolResultError("not authenticated"), nil
	}

	args := struct {
		Project     string `json:"project"`
		Description string `json:"description"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse arguments: %v", err)), nil
	}

	project, err := h.store.GetProjectByName(ctx, args.Project)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("unknown project %q", args.Project)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to look up project: %v", err)), nil
	}

	timer := &Timer{
		UserID:      identity.Subject,
		ProjectID:   project.ID,
		Description: args.Description,
		StartedAt:   time.Now().UTC(),
	}
	if err := h.store.StartTimer(ctx, timer); err != nil {
		if errors.Is(err, ErrTimerRunning) {
			return mcp.NewToolResultError("a timer is already running; stop it first"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start timer: %v", err)), nil
	}
	return jsonResult(timer)
}

// StopTimer handles the stop_timer tool.
func (h *ToolHandler) StopTimer(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity, err := auth.RequireIdentity(ctx)
	if err != nil {
		return mcp.NewToolResultError("not authenticated"), nil
	}

	entry, err := h.store.StopTimer(ctx, identity.Subject, time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrNoTimer) {
			return mcp.NewToolResultError("no timer is running"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Failed to stop timer: %v", err)), nil
	}
	return jsonResult(entry)
}

// ListEntries handles the list_entries tool. Members see their own entries;
// admins see everyone's.
func (h *ToolHandler) ListEntries(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity, err := auth.RequireIdentity(ctx)
	if err != nil {
		return mcp.NewToolResultError("not authenticated"), nil
	}

	args := struct {
		Project string  `json:"project"`
		Limit   float64 `json:"limit"`
	}{}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse arguments: %v", err)), nil
	}

	filter := EntryFilter{Limit: int(args.Limit)}
	if !identity.IsAdmin() {
		filter.UserID = identity.Subject
	}
	if args.Project != "" {
		project, err := h.store.GetProjectByName(ctx, args.Project)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return mcp.NewToolResultError(fmt.Sprintf("unknown project %q", args.Project)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("Failed to look up project: %v", err)), nil
		}
		filter.ProjectID = project.ID
	}

	entries, err := h.store.ListEntries(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list entries: %v", err)), nil
	}
	return jsonResult(entries)
}

// ListUsers handles the list_users tool. Admin only.
func (h *ToolHandler) ListUsers(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	identity, err := auth.RequireIdentity(ctx)
	if err != nil {
		return mcp.NewToolResultError("not authenticated"), nil
	}
	if !identity.IsAdmin() {
		return mcp.NewToolResultError("only admins may list users"), nil
	}

	all, err := h.users.GetUsers(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list users: %v", err)), nil
	}

	type userInfo struct {
		ID        string `json:"id"`
		Username  string `json:"username"`
		Email     string `json:"email,omitempty"`
		Role      string `json:"role"`
		LastLogin string `json:"last_login"`
	}
	out := make([]userInfo, 0, len(all))
	for _, u := range all {
		out = append(out, userInfo{
			ID:        u.ID,
			Username:  u.Username,
			Email:     u.Email,
			Role:      string(u.Role),
			LastLogin: u.LastLogin.UTC().Format(time.RFC3339),
		})
	}
	return jsonResult(out)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
