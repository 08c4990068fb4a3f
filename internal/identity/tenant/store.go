// Copyright (c) 2026 Veridian Labs. All rights reserved.

package tenant

import (
	"context"
	"time"

	"github.com/veridianlabs/veridian/internal/identity"
)

// ApplicationRepository defines the data access contract for application
// aggregates.
//
// # Aggregate Persistence
//
// FindByID and FindByCode load the FULL aggregate (roles with permissions,
// memberships) in one consistent snapshot; Save writes the full aggregate
// back in one transaction. This keeps every cross-entity invariant (single
// default role, one membership per user) enforced by the domain rather than
// by scattered partial updates.
type ApplicationRepository interface {
	// Create persists a freshly registered application.
	//
	// Returns [apperr.Duplicate] when the unique code constraint fails.
	Create(ctx context.Context, application *identity.Application) error

	// FindByID loads the full aggregate by primary key.
	//
	// Returns [apperr.NotFound] if the application does not exist.
	FindByID(ctx context.Context, id string) (*identity.Application, error)

	// FindByCode loads the full aggregate by its normalized code.
	FindByCode(ctx context.Context, code identity.ApplicationCode) (*identity.Application, error)

	// List returns shallow application records (no roles or memberships),
	// ordered by creation time.
	List(ctx context.Context) ([]*identity.Application, error)

	// Save writes the full aggregate back in one transaction.
	Save(ctx context.Context, application *identity.Application) error

	// TouchMembership stamps a membership's last-accessed time without
	// rewriting the aggregate. Used by the authentication flow.
	TouchMembership(ctx context.Context, applicationID, userID string, at time.Time) error
}
