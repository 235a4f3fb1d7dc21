// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport defines the message transport consumed by the session
// layer. A transport owns the stateful protocol machine behind a session and
// processes one JSON-RPC message at a time.
package transport

import (
	"context"
	"encoding/json"
)

// Transport processes JSON-RPC messages for a single session.
//
// Implementations keep per-session protocol state (initialization phase,
// negotiated capabilities) between calls. Request-scoped values such as the
// caller's identity travel on ctx, never on the transport itself.
type Transport interface {
	// HandleMessage processes one raw JSON-RPC message and returns the
	// serialized response. A nil response means the message was a
	// notification and produced no reply.
	HandleMessage(ctx context.Context, message json.RawMessage) ([]byte, error)

	// Close releases any resources held by the transport.
	Close() error
}

// Factory creates a fresh transport for a new session.
type Factory func(ctx context.Context) (Transport, error)
