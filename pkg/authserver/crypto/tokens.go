// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

// Package crypto generates the opaque credentials used by the authorization
// server: client ids and secrets, authorization codes, access and refresh
// tokens, and the PKCE verifier/challenge pair.
package crypto

import (
	"crypto/rand"
	"strings"
)

// Token prefixes make leaked credentials identifiable in logs and scanners
// without revealing anything about their contents.
const (
	PrefixAuthorizationCode = "wlc"
	PrefixAccessToken       = "wla"
	PrefixRefreshToken      = "wlr"
	PrefixClientSecret      = "wls"
)

// NewToken returns a fresh opaque credential with the given prefix.
// The random part carries at least 128 bits of entropy from crypto/rand;
// rand.Text panics if the platform randomness source fails, which is the
// right behavior for credential generation.
func NewToken(prefix string) string {
	return prefix + "_" + rand.Text()
}

// NewState returns a random correlation token suitable for OAuth state
// parameters.
func NewState() string {
	return rand.Text()
}

// HasPrefix reports whether the token carries the given credential prefix.
func HasPrefix(token, prefix string) bool {
	return strings.HasPrefix(token, prefix+"_")
}
