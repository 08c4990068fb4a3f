// Copyright (c) 2026 Veridian Labs. All rights reserved.

package identity

import "time"

// # Tenant Membership

// UserApplication binds a user to one application with exactly one role.
//
// # Identity
//
// The pair (UserID, ApplicationID) is the composite identity: a user holds
// at most one membership row per application. Changing the role replaces
// RoleID in place; it never creates a second row.
//
// # Ownership
//
// Membership rows are mutated exclusively through the owning [Application]
// aggregate (assignment, role change, removal), never from the User side.
// This keeps the role-belongs-to-application invariant enforceable in one
// place.
type UserApplication struct {
	UserID        string
	ApplicationID string
	RoleID        string

	IsActive       bool
	AssignedAt     time.Time
	AssignedBy     string
	LastAccessedAt *time.Time
}

// Touch stamps LastAccessedAt, called when the member logs into the tenant.
func (membership *UserApplication) Touch(at time.Time) {
	stamp := at
	membership.LastAccessedAt = &stamp
}

// changeRole points the membership at a different role within the same
// application. Validation that the role belongs to the application and is
// active happens in the owning aggregate.
func (membership *UserApplication) changeRole(roleID string) {
	membership.RoleID = roleID
}
