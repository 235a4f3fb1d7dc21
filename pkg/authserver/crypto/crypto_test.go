// SPDX-FileCopyrightText: Copyright 2026 Worklogd Authors
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenUniqueness(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for range 1000 {
		tok := NewToken(PrefixAccessToken)
		require.False(t, seen[tok], "duplicate token generated")
		seen[tok] = true
	}
}

func TestNewTokenPrefix(t *testing.T) {
	t.Parallel()

	tok := NewToken(PrefixRefreshToken)
	assert.True(t, HasPrefix(tok, PrefixRefreshToken))
	assert.False(t, HasPrefix(tok, PrefixAccessToken))
}

func TestPKCERoundTrip(t *testing.T) {
	t.Parallel()

	verifier := GeneratePKCEVerifier()
	require.Len(t, verifier, 43)

	challenge := ComputePKCEChallenge(verifier)
	assert.True(t, VerifyPKCE(verifier, challenge))
}

func TestPKCEWrongVerifierFails(t *testing.T) {
	t.Parallel()

	challenge := ComputePKCEChallenge(GeneratePKCEVerifier())
	assert.False(t, VerifyPKCE(GeneratePKCEVerifier(), challenge))
	assert.False(t, VerifyPKCE("", challenge))
}

func TestPKCEKnownVector(t *testing.T) {
	t.Parallel()

	// Test vector from RFC 7636 Appendix B.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", ComputePKCEChallenge(verifier))
}
