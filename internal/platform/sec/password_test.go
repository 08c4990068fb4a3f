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
TestHashPassword_Format checks the self-describing encoded form.
*/
func TestHashPassword_Format(t *testing.T) {
	encoded, err := sec.HashPassword("correct horse battery staple")
	require.NoError(t, err)

	parts := strings.Split(encoded, "$")
	require.Len(t, parts, 4)
	assert.Equal(t, "pbkdf2-sha256", parts[0])
	assert.Equal(t, "150000", parts[1])
	assert.NotEmpty(t, parts[2])
	assert.NotEmpty(t, parts[3])

	// Fresh salt per call: same input, different hashes.
	second, err := sec.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, encoded, second)
}

/*
TestVerifyPassword covers the round trip and clean mismatches.
*/
func TestVerifyPassword(t *testing.T) {
	encoded, err := sec.HashPassword("the right password")
	require.NoError(t, err)

	matches, err := sec.VerifyPassword("the right password", encoded)
	require.NoError(t, err)
	assert.True(t, matches)

	matches, err = sec.VerifyPassword("the wrong password", encoded)
	require.NoError(t, err)
	assert.False(t, matches)

	matches, err = sec.VerifyPassword("", encoded)
	require.NoError(t, err)
	assert.False(t, matches)
}

/*
TestVerifyPassword_CorruptHash checks that malformed stored hashes surface
as ErrCorruptCredential instead of a silent mismatch.
*/
func TestVerifyPassword_CorruptHash(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{"empty", ""},
		{"too_few_segments", "pbkdf2-sha256$150000$saltonly"},
		{"too_many_segments", "pbkdf2-sha256$150000$c2FsdA$a2V5$extra"},
		{"bad_iterations", "pbkdf2-sha256$many$c2FsdA$a2V5"},
		{"zero_iterations", "pbkdf2-sha256$0$c2FsdA$a2V5"},
		{"bad_salt_encoding", "pbkdf2-sha256$150000$!!!$a2V5"},
		{"bad_key_encoding", "pbkdf2-sha256$150000$c2FsdA$!!!"},
		{"unknown_algorithm", "argon2id$150000$c2FsdA$a2V5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := sec.VerifyPassword("whatever", tt.encoded)
			assert.False(t, matches)
			require.ErrorIs(t, err, sec.ErrCorruptCredential)
		})
	}
}

/*
TestVerifyPassword_StoredIterations verifies that verification honors the
iteration count embedded in the hash, not the current constant.
*/
func TestVerifyPassword_StoredIterations(t *testing.T) {
	encoded, err := sec.HashPassword("a password")
	require.NoError(t, err)

	// Rewrite the iteration segment to a different (valid) count. The derived
	// key no longer matches, but decoding must still succeed.
	parts := strings.Split(encoded, "$")
	parts[1] = "1000"
	tampered := strings.Join(parts, "$")

	matches, err := sec.VerifyPassword("a password", tampered)
	require.NoError(t, err)
	assert.False(t, matches)
}
