// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/worklogd/worklogd/pkg/auth"
	"github.com/worklogd/worklogd/pkg/logger"
	"github.com/worklogd/worklogd/pkg/transport"
)

// HeaderSessionID carries the session identifier between client and server.
const HeaderSessionID = "Mcp-Session-Id"

// maxRequestSize limits message bodies to 1MB.
const maxRequestSize = 1024 * 1024

// Router serves the /mcp endpoint. A request carrying a known session ID is
// dispatched to that session's transport; anything else gets a fresh
// session. A request with a verified identity rebinds it onto the session;
// a request without one inherits whatever identity the session last saw.
type Router struct {
	manager *Manager
	factory transport.Factory
}

// NewRouter creates a session router over the given manager and transport
// factory.
func NewRouter(manager *Manager, factory transport.Factory) *Router {
	return &Router{manager: manager, factory: factory}
}

// Routes returns the HTTP routes for the session endpoint.
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/", rt.handlePost)
	r.Delete("/", rt.handleDelete)
	return r
}

func (rt *Router) handlePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	sess, ok := rt.manager.Get(r.Header.Get(HeaderSessionID))
	if !ok {
		tr, err := rt.factory(ctx)
		if err != nil {
			logger.Errorw("failed to create transport", "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		sess = rt.manager.Add(nil, tr)
		logger.Infow("session opened", "session_id", sess.ID())
	}

	// A verified identity on this request rebinds the session; otherwise
	// the session's last-bound identity is inherited.
	if identity, ok := auth.IdentityFromContext(ctx); ok {
		sess.Bind(identity)
	} else if inherited := sess.Identity(); inherited != nil {
		ctx = auth.WithIdentity(ctx, inherited)
	}

	response, err := sess.HandleMessage(ctx, body)
	if err != nil {
		logger.Errorw("transport failed to handle message", "session_id", sess.ID(), "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set(HeaderSessionID, sess.ID())
	if response == nil {
		// Notification, acknowledge without a body.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(response); err != nil {
		logger.Warnw("failed to write response", "session_id", sess.ID(), "error", err)
	}
}

func (rt *Router) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(HeaderSessionID)
	if sessionID == "" {
		http.Error(w, "missing "+HeaderSessionID+" header", http.StatusBadRequest)
		return
	}

	if _, ok := rt.manager.Get(sessionID); !ok {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	// Tearing down a session never touches the user's tokens.
	rt.manager.Delete(sessionID)
	logger.Infow("session closed", "session_id", sessionID)
	w.WriteHeader(http.StatusNoContent)
}
