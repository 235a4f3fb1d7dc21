// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTools struct{}

func (echoTools) RegisterTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.Tool{
		Name:        "echo",
		Description: "Echo the input back",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{"type": "string"},
			},
			Required: []string{"text"},
		},
	}, func(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			Text string `json:"text"`
		}
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(args.Text), nil
	})
}

func initializeMessage(t *testing.T) json.RawMessage {
	t.Helper()

	return json.RawMessage(`{
		"jsonrpc": "2.0",
		"id": 1,
		"method": "initialize",
		"params": {
			"protocolVersion": "2025-03-26",
			"clientInfo": {"name": "test-client", "version": "0.0.1"},
			"capabilities": {}
		}
	}`)
}

func TestMCPTransportInitialize(t *testing.T) {
	t.Parallel()

	tr := NewMCPTransport("worklogd-test", "0.1.0", echoTools{})
	defer func() { _ = tr.Close() }()

	out, err := tr.HandleMessage(context.Background(), initializeMessage(t))
	require.NoError(t, err)
	require.NotNil(t, out)

	var response struct {
		Result struct {
			ServerInfo struct {
				Name string `json:"name"`
			} `json:"serverInfo"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(out, &response))
	assert.Equal(t, "worklogd-test", response.Result.ServerInfo.Name)
}

func TestMCPTransportToolCall(t *testing.T) {
	t.Parallel()

	tr := NewMCPTransport("worklogd-test", "0.1.0", echoTools{})
	defer func() { _ = tr.Close() }()

	_, err := tr.HandleMessage(context.Background(), initializeMessage(t))
	require.NoError(t, err)

	out, err := tr.HandleMessage(context.Background(), json.RawMessage(`{
		"jsonrpc": "2.0",
		"id": 2,
		"method": "tools/call",
		"params": {"name": "echo", "arguments": {"text": "hello"}}
	}`))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Contains(t, string(out), "hello")
}

func TestMCPTransportNotificationHasNoReply(t *testing.T) {
	t.Parallel()

	tr := NewMCPTransport("worklogd-test", "0.1.0", nil)
	defer func() { _ = tr.Close() }()

	_, err := tr.HandleMessage(context.Background(), initializeMessage(t))
	require.NoError(t, err)

	out, err := tr.HandleMessage(context.Background(), json.RawMessage(`{
		"jsonrpc": "2.0",
		"method": "notifications/initialized"
	}`))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestMCPFactoryProducesIndependentTransports(t *testing.T) {
	t.Parallel()

	factory := NewMCPFactory("worklogd-test", "0.1.0", echoTools{})

	a, err := factory(context.Background())
	require.NoError(t, err)
	b, err := factory(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}
