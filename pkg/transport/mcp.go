// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
)

// ToolRegistrar wires a set of tools into an MCP server instance.
type ToolRegistrar interface {
	RegisterTools(mcpServer *server.MCPServer)
}

// MCPTransport is a Transport backed by an in-process MCP server. Each
// session gets its own instance so initialization state never leaks across
// sessions.
type MCPTransport struct {
	mcpServer *server.MCPServer
}

var _ Transport = (*MCPTransport)(nil)

// NewMCPTransport creates an MCP transport with the given tools registered.
func NewMCPTransport(name, version string, tools ToolRegistrar) *MCPTransport {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)
	if tools != nil {
		tools.RegisterTools(mcpServer)
	}
	return &MCPTransport{mcpServer: mcpServer}
}

// NewMCPFactory returns a Factory producing independent MCP transports.
func NewMCPFactory(name, version string, tools ToolRegistrar) Factory {
	return func(_ context.Context) (Transport, error) {
		return NewMCPTransport(name, version, tools), nil
	}
}

// HandleMessage runs one JSON-RPC message through the MCP server. The
// caller's context flows into tool handlers unchanged.
func (t *MCPTransport) HandleMessage(ctx context.Context, message json.RawMessage) ([]byte, error) {
	response := t.mcpServer.HandleMessage(ctx, message)
	if response == nil {
		// Notification, nothing to send back.
		return nil, nil
	}

	out, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("marshaling response: %w", err)
	}
	return out, nil
}

// Close implements Transport. The in-process server holds no external
// resources.
func (*MCPTransport) Close() error {
	return nil
}
