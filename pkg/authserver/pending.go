// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"sync"
	"time"

	"github.com/worklogd/worklogd/pkg/logger"
)

// PendingAuthorization captures a client's validated authorization request
// while the user is away authenticating at the upstream Identity Provider.
// It is keyed by the internal correlation state sent upstream and is
// strictly single-use.
type PendingAuthorization struct {
	// ClientID is the requesting client.
	ClientID string

	// RedirectURI is the validated client redirect URI.
	RedirectURI string

	// ClientState is the client's opaque state, echoed back on redirect.
	ClientState string

	// CodeChallenge is the client's PKCE S256 challenge.
	CodeChallenge string

	// Scopes are the scopes the client requested.
	Scopes []string

	// Resource is the RFC 8707 resource indicator, if the client sent one.
	Resource string

	// UpstreamVerifier is the PKCE verifier for the upstream hop.
	UpstreamVerifier string

	// CreatedAt is when the authorization request was accepted.
	CreatedAt time.Time
}

// timedEntry wraps a value with its expiry for TTL tracking.
type timedEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// pendingCache is an in-memory single-use store for pending authorizations.
// Entries expire after the configured TTL; a background goroutine evicts
// stale entries so abandoned logins do not accumulate.
type pendingCache struct {
	mu      sync.Mutex
	entries map[string]*timedEntry[*PendingAuthorization]
	ttl     time.Duration

	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

func newPendingCache(ttl time.Duration, cleanupInterval time.Duration) *pendingCache {
	c := &pendingCache{
		entries:     make(map[string]*timedEntry[*PendingAuthorization]),
		ttl:         ttl,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	go c.cleanupLoop(cleanupInterval)
	return c
}

// Put stores a pending authorization under the internal state key.
func (c *pendingCache) Put(state string, pending *PendingAuthorization) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[state] = &timedEntry[*PendingAuthorization]{
		value:     pending,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Take removes and returns the pending authorization for the state.
// Returns false when the state is unknown or the entry has expired.
func (c *pendingCache) Take(state string) (*PendingAuthorization, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[state]
	if !ok {
		return nil, false
	}
	delete(c.entries, state)
	if time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

// Len returns the number of cached entries, expired ones included.
func (c *pendingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the cleanup goroutine and waits for it to exit.
func (c *pendingCache) Close() {
	close(c.stopCleanup)
	<-c.cleanupDone
}

func (c *pendingCache) cleanupLoop(interval time.Duration) {
	defer close(c.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCleanup:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *pendingCache) evictExpired() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for state, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, state)
			evicted++
		}
	}
	if evicted > 0 {
		logger.Debugw("evicted expired pending authorizations",
			"count", evicted,
		)
	}
}
