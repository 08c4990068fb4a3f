// Copyright (c) 2026 Veridian Labs. All rights reserved.

package identity

import (
	"strings"
	"time"

	"github.com/veridianlabs/veridian/internal/platform/apperr"
	"github.com/veridianlabs/veridian/internal/platform/events"
	"github.com/veridianlabs/veridian/internal/platform/sec"
	"github.com/veridianlabs/veridian/pkg/uuidv7"
)

// # Application Aggregate

// Application is the aggregate root for a tenant.
//
// It owns the tenant's role catalogue and the memberships of its users, so
// every invariant in that cluster (single default role, role-name uniqueness,
// role-belongs-to-application, one membership per user) is enforced in one
// place, under one transaction.
type Application struct {
	ID          string
	Name        string
	Code        ApplicationCode
	Description string

	// APIKeyHash is the SHA-256 digest of the tenant API key. The plaintext
	// key exists only in the return value of [NewApplication] and
	// [Application.RegenerateAPIKey].
	APIKeyHash string

	IsActive bool

	Roles       []*ApplicationRole
	Memberships []*UserApplication

	CreatedAt time.Time
	UpdatedAt time.Time

	domainEvents []events.Event
}

// NewApplication registers a tenant and mints its first API key.
//
// The plaintext key is returned exactly once; only the hash is retained on
// the aggregate.
func NewApplication(name string, code ApplicationCode, description string) (*Application, string, error) {
	if strings.TrimSpace(name) == "" {
		return nil, "", apperr.ValidationError("Validation failed",
			apperr.FieldError{Field: "name", Message: "This field is required"})
	}
	if code.IsZero() {
		return nil, "", apperr.InvalidFormat("Application code is required")
	}

	hashedKey, plaintextKey, err := sec.GenerateAPIKey()
	if err != nil {
		return nil, "", apperr.Internal(err)
	}

	now := time.Now()
	application := &Application{
		ID:          uuidv7.New(),
		Name:        strings.TrimSpace(name),
		Code:        code,
		Description: description,
		APIKeyHash:  hashedKey,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	application.record("application.created", map[string]any{
		"application_id":   application.ID,
		"application_code": code.String(),
	})

	return application, plaintextKey, nil
}

// # API Key Lifecycle

// RegenerateAPIKey rotates the tenant API key, invalidating the previous one
// immediately. The new plaintext is returned exactly once.
func (application *Application) RegenerateAPIKey() (string, error) {
	if !application.IsActive {
		return "", apperr.InvalidState("Application is deactivated")
	}

	hashedKey, plaintextKey, err := sec.GenerateAPIKey()
	if err != nil {
		return "", apperr.Internal(err)
	}

	application.APIKeyHash = hashedKey
	application.touch()
	application.record("application.api_key_rotated", map[string]any{
		"application_id": application.ID,
	})

	return plaintextKey, nil
}

// ValidateAPIKey reports whether the presented plaintext key belongs to this
// application. A deactivated application never validates, regardless of the
// key's correctness.
func (application *Application) ValidateAPIKey(plaintext string) bool {
	if !application.IsActive {
		return false
	}
	return sec.VerifyAPIKey(plaintext, application.APIKeyHash)
}

// # Lifecycle

// Activate re-enables a deactivated application.
func (application *Application) Activate() error {
	if application.IsActive {
		return apperr.InvalidState("Application is already active")
	}
	application.IsActive = true
	application.touch()
	application.record("application.activated", map[string]any{"application_id": application.ID})
	return nil
}

// Deactivate disables the application. Logins and API key validation for the
// tenant fail while deactivated; roles and memberships are preserved.
func (application *Application) Deactivate() error {
	if !application.IsActive {
		return apperr.InvalidState("Application is already deactivated")
	}
	application.IsActive = false
	application.touch()
	application.record("application.deactivated", map[string]any{"application_id": application.ID})
	return nil
}

// # Role Catalogue

// RoleByID resolves a role owned by this application.
func (application *Application) RoleByID(roleID string) (*ApplicationRole, error) {
	for _, role := range application.Roles {
		if role.ID == roleID {
			return role, nil
		}
	}
	return nil, apperr.NotFound("Role")
}

// DefaultRole returns the application's default role, or nil when none is
// configured yet.
func (application *Application) DefaultRole() *ApplicationRole {
	for _, role := range application.Roles {
		if role.IsDefault {
			return role
		}
	}
	return nil
}

// CreateRole adds a role to the catalogue.
//
// Role names are unique per application, case-insensitively. When isDefault
// is set, any previously default role is demoted in the same call so the
// single-default invariant holds at every observable point.
func (application *Application) CreateRole(name, description string, isDefault bool) (*ApplicationRole, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.ValidationError("Validation failed",
			apperr.FieldError{Field: "name", Message: "This field is required"})
	}

	for _, existing := range application.Roles {
		if existing.nameEquals(name) {
			return nil, apperr.Duplicate("Role name already exists in this application")
		}
	}

	now := time.Now()
	role := &ApplicationRole{
		ID:            uuidv7.New(),
		ApplicationID: application.ID,
		Name:          name,
		Description:   description,
		IsActive:      true,
		IsDefault:     isDefault,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if isDefault {
		application.demoteDefaultRole()
	}

	application.Roles = append(application.Roles, role)
	application.touch()
	application.record("application.role_created", map[string]any{
		"application_id": application.ID,
		"role_id":        role.ID,
		"is_default":     isDefault,
	})

	return role, nil
}

// RenameRole updates a role's name and description, keeping the
// case-insensitive uniqueness constraint intact.
func (application *Application) RenameRole(roleID, name, description string) error {
	role, err := application.RoleByID(roleID)
	if err != nil {
		return err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return apperr.ValidationError("Validation failed",
			apperr.FieldError{Field: "name", Message: "This field is required"})
	}

	for _, existing := range application.Roles {
		if existing.ID != roleID && existing.nameEquals(name) {
			return apperr.Duplicate("Role name already exists in this application")
		}
	}

	role.Name = name
	role.Description = description
	role.UpdatedAt = time.Now()
	application.touch()
	return nil
}

// SetDefaultRole promotes a role to default, atomically demoting the previous
// one. The role must be active.
func (application *Application) SetDefaultRole(roleID string) error {
	role, err := application.RoleByID(roleID)
	if err != nil {
		return err
	}
	if !role.IsActive {
		return apperr.InvalidState("An inactive role cannot be the default")
	}
	if role.IsDefault {
		return apperr.InvalidState("Role is already the default")
	}

	application.demoteDefaultRole()
	role.IsDefault = true
	role.UpdatedAt = time.Now()
	application.touch()
	application.record("application.default_role_changed", map[string]any{
		"application_id": application.ID,
		"role_id":        roleID,
	})
	return nil
}

// ActivateRole re-enables a deactivated role.
func (application *Application) ActivateRole(roleID string) error {
	role, err := application.RoleByID(roleID)
	if err != nil {
		return err
	}
	if role.IsActive {
		return apperr.InvalidState("Role is already active")
	}
	role.IsActive = true
	role.UpdatedAt = time.Now()
	application.touch()
	return nil
}

// DeactivateRole disables a role. The default role cannot be deactivated;
// promote another role first.
func (application *Application) DeactivateRole(roleID string) error {
	role, err := application.RoleByID(roleID)
	if err != nil {
		return err
	}
	if role.IsDefault {
		return apperr.InvalidState("The default role cannot be deactivated")
	}
	if !role.IsActive {
		return apperr.InvalidState("Role is already deactivated")
	}
	role.IsActive = false
	role.UpdatedAt = time.Now()
	application.touch()
	return nil
}

// DeleteRole removes a role from the catalogue. Deleting the default role or
// a role that still has members is an invariant violation.
func (application *Application) DeleteRole(roleID string) error {
	role, err := application.RoleByID(roleID)
	if err != nil {
		return err
	}
	if role.IsDefault {
		return apperr.InvalidState("The default role cannot be deleted")
	}
	for _, membership := range application.Memberships {
		if membership.RoleID == roleID {
			return apperr.InvalidState("Role is still assigned to users")
		}
	}

	for i, existing := range application.Roles {
		if existing.ID == roleID {
			application.Roles = append(application.Roles[:i], application.Roles[i+1:]...)
			break
		}
	}
	application.touch()
	application.record("application.role_deleted", map[string]any{
		"application_id": application.ID,
		"role_id":        roleID,
	})
	return nil
}

// AddPermissionToRole attaches a resource/action capability to a role.
// The pair is unique within the role.
func (application *Application) AddPermissionToRole(roleID, resource, action, name string) (Permission, error) {
	role, err := application.RoleByID(roleID)
	if err != nil {
		return Permission{}, err
	}
	if role.HasPermission(resource, action) {
		return Permission{}, apperr.Duplicate("Permission already granted to this role")
	}

	permission, err := NewPermission(resource, action, name)
	if err != nil {
		return Permission{}, err
	}

	role.Permissions = append(role.Permissions, permission)
	role.UpdatedAt = time.Now()
	application.touch()
	return permission, nil
}

// RemovePermissionFromRole detaches a capability from a role.
func (application *Application) RemovePermissionFromRole(roleID, permissionID string) error {
	role, err := application.RoleByID(roleID)
	if err != nil {
		return err
	}
	for i, permission := range role.Permissions {
		if permission.ID == permissionID {
			role.Permissions = append(role.Permissions[:i], role.Permissions[i+1:]...)
			role.UpdatedAt = time.Now()
			application.touch()
			return nil
		}
	}
	return apperr.NotFound("Permission")
}

// demoteDefaultRole clears IsDefault on whichever role currently holds it.
func (application *Application) demoteDefaultRole() {
	for _, role := range application.Roles {
		if role.IsDefault {
			role.IsDefault = false
			role.UpdatedAt = time.Now()
		}
	}
}

// # Memberships

// MembershipOf returns the membership row for userID, or nil.
func (application *Application) MembershipOf(userID string) *UserApplication {
	for _, membership := range application.Memberships {
		if membership.UserID == userID {
			return membership
		}
	}
	return nil
}

// AssignUser grants a user membership in this application.
//
// When roleID is empty the application's default role is used. The role must
// belong to this application and be active. Assigning a user who already
// holds a membership is a duplicate, even if the existing row is inactive.
func (application *Application) AssignUser(userID, roleID, assignedBy string) (*UserApplication, error) {
	if !application.IsActive {
		return nil, apperr.InvalidState("Application is deactivated")
	}
	if application.MembershipOf(userID) != nil {
		return nil, apperr.InvalidState("User is already a member of this application")
	}

	var role *ApplicationRole
	if roleID == "" {
		role = application.DefaultRole()
		if role == nil {
			return nil, apperr.InvalidState("Application has no default role configured")
		}
	} else {
		found, err := application.RoleByID(roleID)
		if err != nil {
			return nil, err
		}
		role = found
	}
	if !role.IsActive {
		return nil, apperr.InvalidState("Role is deactivated")
	}

	membership := &UserApplication{
		UserID:        userID,
		ApplicationID: application.ID,
		RoleID:        role.ID,
		IsActive:      true,
		AssignedAt:    time.Now(),
		AssignedBy:    assignedBy,
	}

	application.Memberships = append(application.Memberships, membership)
	application.touch()
	application.record("application.user_assigned", map[string]any{
		"application_id": application.ID,
		"user_id":        userID,
		"role_id":        role.ID,
		"assigned_by":    assignedBy,
	})

	return membership, nil
}

// ChangeUserRole moves an existing member to a different role of this
// application. The target role must be active.
func (application *Application) ChangeUserRole(userID, roleID string) error {
	membership := application.MembershipOf(userID)
	if membership == nil {
		return apperr.NotFound("Membership")
	}

	role, err := application.RoleByID(roleID)
	if err != nil {
		return err
	}
	if !role.IsActive {
		return apperr.InvalidState("Role is deactivated")
	}
	if membership.RoleID == roleID {
		return apperr.InvalidState("User already holds this role")
	}

	membership.changeRole(roleID)
	application.touch()
	application.record("application.user_role_changed", map[string]any{
		"application_id": application.ID,
		"user_id":        userID,
		"role_id":        roleID,
	})
	return nil
}

// RemoveUser deletes the user's membership row.
func (application *Application) RemoveUser(userID string) error {
	for i, membership := range application.Memberships {
		if membership.UserID == userID {
			application.Memberships = append(application.Memberships[:i], application.Memberships[i+1:]...)
			application.touch()
			application.record("application.user_removed", map[string]any{
				"application_id": application.ID,
				"user_id":        userID,
			})
			return nil
		}
	}
	return apperr.NotFound("Membership")
}

// ActivateMembership re-enables a suspended membership.
func (application *Application) ActivateMembership(userID string) error {
	membership := application.MembershipOf(userID)
	if membership == nil {
		return apperr.NotFound("Membership")
	}
	if membership.IsActive {
		return apperr.InvalidState("Membership is already active")
	}
	membership.IsActive = true
	application.touch()
	return nil
}

// DeactivateMembership suspends a membership without removing it. The user
// keeps the row (and its role) but can no longer log into this tenant.
func (application *Application) DeactivateMembership(userID string) error {
	membership := application.MembershipOf(userID)
	if membership == nil {
		return apperr.NotFound("Membership")
	}
	if !membership.IsActive {
		return apperr.InvalidState("Membership is already deactivated")
	}
	membership.IsActive = false
	application.touch()
	return nil
}

// # Domain Events

// DrainEvents returns and clears the recorded domain events.
func (application *Application) DrainEvents() []events.Event {
	drained := application.domainEvents
	application.domainEvents = nil
	return drained
}

func (application *Application) record(name string, payload map[string]any) {
	application.domainEvents = append(application.domainEvents, events.Event{
		Name:       name,
		OccurredAt: time.Now(),
		Payload:    payload,
	})
}

func (application *Application) touch() {
	application.UpdatedAt = time.Now()
}
