// Copyright (c) 2026 Veridian Labs. All rights reserved.

package authn

import (
	"context"
	"time"

	"github.com/veridianlabs/veridian/internal/identity"
)

// UserRepository defines the data access contract for user accounts.
//
// # Implementations
//
// The canonical implementation is PostgreSQL ([NewPostgresUserRepository]);
// tests use an in-memory fake.
type UserRepository interface {
	// FindByID returns the user with the given ID.
	//
	// Returns [apperr.NotFound] if the user does not exist.
	FindByID(ctx context.Context, id string) (*identity.User, error)

	// FindByEmail returns the user registered under the normalized email.
	//
	// Returns [apperr.NotFound] if no user holds this address. Callers on the
	// authentication path must translate that into the generic
	// invalid-credentials error, never expose it.
	FindByEmail(ctx context.Context, email identity.Email) (*identity.User, error)

	// Create persists a brand-new user.
	//
	// Returns [apperr.Duplicate] when the unique email constraint fails.
	Create(ctx context.Context, user *identity.User) error

	// Update persists mutable profile and lifecycle fields (names, active
	// flag, email confirmation, last login). Password hashes are updated via
	// [UserRepository.UpdatePassword] only.
	Update(ctx context.Context, user *identity.User) error

	// UpdatePassword replaces only the stored password hash. Separate from
	// [UserRepository.Update] so unrelated profile writes can never clobber
	// credentials.
	UpdatePassword(ctx context.Context, userID, newHash string) error
}

// ApplicationReader is the read-only slice of application storage the
// authentication flow needs: resolving a tenant context at login and
// re-resolving it on every refresh.
//
// Both methods load the full aggregate (roles with permissions, memberships)
// so membership checks and claim assembly work off one consistent snapshot.
type ApplicationReader interface {
	// FindByCode returns the application registered under the normalized code.
	//
	// Returns [apperr.NotFound] if no such tenant exists.
	FindByCode(ctx context.Context, code identity.ApplicationCode) (*identity.Application, error)

	// FindByID returns the application with the given ID.
	FindByID(ctx context.Context, id string) (*identity.Application, error)

	// TouchMembership stamps the membership's last-accessed time. Called on
	// successful tenant login; failures must not fail the login.
	TouchMembership(ctx context.Context, applicationID, userID string, at time.Time) error
}

// RefreshTokenRepository defines the data access contract for refresh-token
// rotation chains.
type RefreshTokenRepository interface {
	// Create persists a chain head minted at login.
	Create(ctx context.Context, token *identity.RefreshToken) error

	// FindByHash returns the token with the given digest, regardless of its
	// revocation or expiry state. The service needs revoked rows too, to
	// distinguish replay from plain invalidity.
	//
	// Returns [apperr.NotFound] if no row matches.
	FindByHash(ctx context.Context, tokenHash string) (*identity.RefreshToken, error)

	// Rotate atomically claims the presented token and inserts its successor
	// in one transaction: the claim is a conditional revoke that only
	// succeeds if the row is still unrevoked. Exactly one of two concurrent
	// rotations of the same token can win.
	//
	// Returns [apperr.InvalidToken] when the claim finds the row already
	// revoked (the caller treats that as replay).
	Rotate(ctx context.Context, presented, successor *identity.RefreshToken) error

	// Revoke marks a single token unusable. Revoking an already-revoked
	// token is a no-op.
	Revoke(ctx context.Context, tokenID string, at time.Time) error

	// RevokeChain revokes the token and every successor reachable through
	// ReplacedByID links, in one statement. Called on replay detection.
	RevokeChain(ctx context.Context, tokenID string, at time.Time) error

	// RevokeAllForUser revokes every live token belonging to the user.
	// Triggered by password changes, resets, and global sign-out.
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) error

	// DeleteExpired physically removes rows past their expiry. Intended for
	// a periodic cleanup worker.
	DeleteExpired(ctx context.Context) error
}

// ResetTokenRepository stores volatile password-reset tokens.
//
// # Invariant
//
// Keys are the user ID, so a user holds at most one live reset token:
// requesting a new one overwrites the old. Only the token digest is stored,
// and the TTL enforces expiry.
type ResetTokenRepository interface {
	// Set stores the token digest for the user, replacing any previous one.
	Set(ctx context.Context, userID, tokenHash string, ttl time.Duration) error

	// Get retrieves the stored digest for the user.
	//
	// Returns [apperr.NotFound] if no live token exists.
	Get(ctx context.Context, userID string) (string, error)

	// Delete removes the user's token after successful use.
	Delete(ctx context.Context, userID string) error
}
