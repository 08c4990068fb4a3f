// Copyright (c) 2026 Veridian Labs. All rights reserved.

package identity

import (
	"time"

	"github.com/veridianlabs/veridian/pkg/uuidv7"
)

// # Refresh Token

// RefreshToken is one link in a user's rotation chain.
//
// Only the SHA-256 digest of the opaque token is stored. Each successful
// refresh revokes the presented token and links it forward to its successor
// via ReplacedByID; presenting a revoked token is treated as theft and
// revokes the entire chain.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string

	ExpiresAt    time.Time
	Revoked      bool
	RevokedAt    *time.Time
	ReplacedByID *string

	// ApplicationID records the tenant context the token was issued under,
	// empty for system-level sessions.
	ApplicationID string

	CreatedAt time.Time
}

// NewRefreshToken mints a chain head (or successor) for a user session.
func NewRefreshToken(userID, tokenHash, applicationID string, expiresAt time.Time) *RefreshToken {
	return &RefreshToken{
		ID:            uuidv7.New(),
		UserID:        userID,
		TokenHash:     tokenHash,
		ApplicationID: applicationID,
		ExpiresAt:     expiresAt,
		CreatedAt:     time.Now(),
	}
}

// IsExpired reports whether the token is past its expiry at the given time.
func (token *RefreshToken) IsExpired(at time.Time) bool {
	return !at.Before(token.ExpiresAt)
}

// IsActive reports whether the token can still be redeemed: not revoked and
// not expired.
func (token *RefreshToken) IsActive(at time.Time) bool {
	return !token.Revoked && !token.IsExpired(at)
}

// Revoke marks the token unusable. Revoking twice is a no-op, which keeps
// chain revocation idempotent.
func (token *RefreshToken) Revoke(at time.Time) {
	if token.Revoked {
		return
	}
	token.Revoked = true
	stamp := at
	token.RevokedAt = &stamp
}

// MarkReplaced revokes the token and links it forward to its successor.
func (token *RefreshToken) MarkReplaced(successorID string, at time.Time) {
	token.Revoke(at)
	id := successorID
	token.ReplacedByID = &id
}
