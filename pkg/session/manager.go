// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

// Package session multiplexes HTTP requests onto stateful per-session
// transports. Each session carries the identity most recently verified on
// it; requests without credentials inherit that binding.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/worklogd/worklogd/pkg/auth"
	"github.com/worklogd/worklogd/pkg/logger"
	"github.com/worklogd/worklogd/pkg/transport"
)

// DefaultTTL is how long an idle session survives before cleanup.
const DefaultTTL = 30 * time.Minute

// Session is one client conversation: an ID, the transport holding its
// protocol state, and the identity last verified on it (possibly none).
type Session struct {
	id        string
	transport transport.Transport
	createdAt time.Time

	mu        sync.Mutex
	identity  *auth.Identity
	updatedAt time.Time
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was opened.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// UpdatedAt returns the last time the session saw traffic.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Touch marks the session as recently used.
func (s *Session) Touch() {
	s.mu.Lock()
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

// Bind replaces the identity bound to the session. A newer verified
// identity always wins.
func (s *Session) Bind(identity *auth.Identity) {
	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()
}

// Identity returns the identity last bound to the session, or nil.
func (s *Session) Identity() *auth.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// HandleMessage runs one message through the session's transport. Messages
// within a session are serialized so the transport's protocol state never
// sees concurrent updates.
func (s *Session) HandleMessage(ctx context.Context, message []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updatedAt = time.Now()
	return s.transport.HandleMessage(ctx, message)
}

// Manager holds live sessions with TTL cleanup.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	ttl      time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewManager creates a session manager with the given idle TTL and starts
// the cleanup worker.
func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		stopCh:   make(chan struct{}),
	}
	go m.cleanupRoutine()
	return m
}

func (m *Manager) cleanupRoutine() {
	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.CleanupExpired()
		case <-m.stopCh:
			return
		}
	}
}

// Add opens a new session around the given transport, initially bound to
// the given identity (which may be nil), and returns it.
func (m *Manager) Add(identity *auth.Identity, tr transport.Transport) *Session {
	now := time.Now()
	s := &Session{
		id:        uuid.NewString(),
		transport: tr,
		identity:  identity,
		createdAt: now,
		updatedAt: now,
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	return s
}

// Get retrieves a session by ID and refreshes its idle timer.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}

	s.Touch()
	return s, true
}

// Delete removes a session and closes its transport. Deleting an unknown
// session is a no-op. The user's tokens are untouched.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		if err := s.transport.Close(); err != nil {
			logger.Warnw("failed to close session transport", "session_id", id, "error", err)
		}
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupExpired removes sessions that have been idle longer than the TTL.
func (m *Manager) CleanupExpired() {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.UpdatedAt().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		if err := s.transport.Close(); err != nil {
			logger.Warnw("failed to close expired session transport", "session_id", s.id, "error", err)
		}
	}
	if len(expired) > 0 {
		logger.Debugw("cleaned up idle sessions", "count", len(expired))
	}
}

// Stop halts the cleanup worker and closes all remaining sessions.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })

	m.mu.Lock()
	remaining := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for id, s := range remaining {
		if err := s.transport.Close(); err != nil {
			logger.Warnw("failed to close session transport", "session_id", id, "error", err)
		}
	}
}
