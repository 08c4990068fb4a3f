// Copyright (c) 2026 Veridian Labs. All rights reserved.

package identity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridianlabs/veridian/internal/identity"
)

/*
TestRefreshToken_Lifecycle covers expiry, revocation idempotency and chain
linking.
*/
func TestRefreshToken_Lifecycle(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	token := identity.NewRefreshToken("user-1", "hash-1", "", now.Add(time.Hour))

	assert.True(t, token.IsActive(now))
	assert.False(t, token.IsExpired(now))

	// Expiry boundary is inclusive.
	assert.True(t, token.IsExpired(now.Add(time.Hour)))
	assert.False(t, token.IsActive(now.Add(time.Hour)))

	token.Revoke(now)
	assert.True(t, token.Revoked)
	require.NotNil(t, token.RevokedAt)
	assert.Equal(t, now, *token.RevokedAt)
	assert.False(t, token.IsActive(now))

	// Second revocation keeps the original stamp.
	token.Revoke(now.Add(time.Minute))
	assert.Equal(t, now, *token.RevokedAt)
}

/*
TestRefreshToken_MarkReplaced verifies rotation linking.
*/
func TestRefreshToken_MarkReplaced(t *testing.T) {
	now := time.Now()
	old := identity.NewRefreshToken("user-1", "hash-1", "app-1", now.Add(time.Hour))
	successor := identity.NewRefreshToken("user-1", "hash-2", "app-1", now.Add(time.Hour))

	old.MarkReplaced(successor.ID, now)

	assert.True(t, old.Revoked)
	require.NotNil(t, old.ReplacedByID)
	assert.Equal(t, successor.ID, *old.ReplacedByID)
	assert.Nil(t, successor.ReplacedByID)
}
