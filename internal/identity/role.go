// Copyright (c) 2026 Veridian Labs. All rights reserved.

package identity

import (
	"strings"
	"time"

	"github.com/veridianlabs/veridian/internal/platform/apperr"
	"github.com/veridianlabs/veridian/pkg/uuidv7"
)

// # Permission

// Permission grants a single resource/action capability. Permissions attach
// to roles through a many-to-many relation; a resource+action pair is unique
// within its owning role.
type Permission struct {
	ID       string
	Resource string
	Action   string
	Name     string
}

// NewPermission validates and constructs a permission.
func NewPermission(resource, action, name string) (Permission, error) {
	if strings.TrimSpace(resource) == "" || strings.TrimSpace(action) == "" {
		return Permission{}, apperr.InvalidFormat("Permission resource and action are required")
	}
	if name == "" {
		name = resource + ":" + action
	}
	return Permission{
		ID:       uuidv7.New(),
		Resource: resource,
		Action:   action,
		Name:     name,
	}, nil
}

// Key renders the canonical "resource:action" form used in token claims.
func (p Permission) Key() string {
	return p.Resource + ":" + p.Action
}

// # Application Role

// ApplicationRole is a role defined within exactly one tenant's namespace.
//
// All mutation goes through the owning [Application] aggregate so that the
// single-default and name-uniqueness invariants can never be violated from
// the outside.
type ApplicationRole struct {
	ID            string
	ApplicationID string
	Name          string
	Description   string
	IsActive      bool
	IsDefault     bool
	Permissions   []Permission

	CreatedAt time.Time
	UpdatedAt time.Time
}

// nameEquals compares role names case-insensitively, matching the
// per-application uniqueness constraint.
func (role *ApplicationRole) nameEquals(name string) bool {
	return strings.EqualFold(role.Name, name)
}

// HasPermission reports whether the role already carries resource+action.
func (role *ApplicationRole) HasPermission(resource, action string) bool {
	for _, existing := range role.Permissions {
		if existing.Resource == resource && existing.Action == action {
			return true
		}
	}
	return false
}

// PermissionKeys returns the flattened "resource:action" list embedded into
// tenant-scoped access tokens.
func (role *ApplicationRole) PermissionKeys() []string {
	keys := make([]string, 0, len(role.Permissions))
	for _, permission := range role.Permissions {
		keys = append(keys, permission.Key())
	}
	return keys
}
