// Copyright (c) 2026 Veridian Labs. All rights reserved.

package sec_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridianlabs/veridian/internal/platform/sec"
)

/*
TestGenerateSecureToken checks entropy length and uniqueness.
*/
func TestGenerateSecureToken(t *testing.T) {
	first, err := sec.GenerateSecureToken(32)
	require.NoError(t, err)
	second, err := sec.GenerateSecureToken(32)
	require.NoError(t, err)

	// 32 bytes → 43 unpadded base64url characters.
	assert.Len(t, first, 43)
	assert.NotEqual(t, first, second)
	assert.NotContains(t, first, "=")
}

/*
TestHashToken_Verify covers the digest round trip and constant-time check.
*/
func TestHashToken_Verify(t *testing.T) {
	token, err := sec.GenerateSecureToken(32)
	require.NoError(t, err)

	digest := sec.HashToken(token)
	assert.Len(t, digest, 64) // hex-encoded SHA-256
	assert.NotEqual(t, token, digest)

	assert.True(t, sec.VerifyToken(token, digest))
	assert.False(t, sec.VerifyToken("some-other-token", digest))
	assert.False(t, sec.VerifyToken(token, "not-a-digest"))
}

/*
TestGenerateAPIKey covers the plaintext-once contract: prefix, hashing, and
verification.
*/
func TestGenerateAPIKey(t *testing.T) {
	hashedForm, plaintext, err := sec.GenerateAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(plaintext, "vk_"))
	assert.NotEqual(t, plaintext, hashedForm)

	assert.True(t, sec.VerifyAPIKey(plaintext, hashedForm))

	// Keys without the prefix are rejected before hashing.
	assert.False(t, sec.VerifyAPIKey(strings.TrimPrefix(plaintext, "vk_"), hashedForm))
	assert.False(t, sec.VerifyAPIKey("vk_forged", hashedForm))

	// Two generations never collide.
	_, other, err := sec.GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, other)
}
