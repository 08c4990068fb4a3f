// Copyright (c) 2026 Veridian Labs. All rights reserved.

// Package tenant implements the administration use cases for applications:
// registration, API key lifecycle, the role catalogue, and user memberships.
//
// # Authorization
//
// Every mutating operation takes the acting principal explicitly and demands
// system-administrator scope. Nothing in this package reads principals from
// ambient context.
package tenant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/veridianlabs/veridian/internal/identity"
	"github.com/veridianlabs/veridian/internal/platform/apperr"
	"github.com/veridianlabs/veridian/internal/platform/events"
	"github.com/veridianlabs/veridian/internal/platform/sec"
	"github.com/veridianlabs/veridian/pkg/codename"
)

// Actor is the acting principal of an administrative operation.
type Actor struct {
	UserID  string
	IsAdmin bool
}

// ActorFromClaims projects verified access-token claims into an [Actor].
func ActorFromClaims(claims *sec.AccessClaims) Actor {
	return Actor{
		UserID:  claims.Subject,
		IsAdmin: claims.UserType == sec.UserTypeAuthAdmin,
	}
}

// UserReader is the slice of user storage the membership operations need.
type UserReader interface {
	// FindByID returns the user with the given ID.
	FindByID(ctx context.Context, id string) (*identity.User, error)
}

// Service implements the tenant administration use cases.
type Service struct {
	applicationRepository ApplicationRepository
	userReader            UserReader
	publisher             events.Publisher
	logger                *slog.Logger
}

// NewService constructs a tenant administration [Service].
func NewService(
	applicationRepo ApplicationRepository,
	userReader UserReader,
	publisher events.Publisher,
	logger *slog.Logger,
) *Service {
	return &Service{
		applicationRepository: applicationRepo,
		userReader:            userReader,
		publisher:             publisher,
		logger:                logger,
	}
}

// requireAdmin gates every mutating operation on system-administrator scope.
func requireAdmin(actor Actor) error {
	if !actor.IsAdmin {
		return apperr.Forbidden("System administrator access required")
	}
	return nil
}

// # Application Lifecycle

// CreateApplicationInput holds the data for registering a tenant.
type CreateApplicationInput struct {
	Name        string
	Description string

	// Code is optional: when empty, a normalized code is suggested from the
	// display name.
	Code string
}

// CreateApplication registers a tenant and returns it together with the
// plaintext API key. The key is shown exactly once.
func (service *Service) CreateApplication(ctx context.Context, actor Actor, input CreateApplicationInput) (*identity.Application, string, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, "", err
	}

	rawCode := input.Code
	if rawCode == "" {
		rawCode = codename.From(input.Name)
	}
	code, err := identity.NewApplicationCode(rawCode)
	if err != nil {
		return nil, "", err
	}

	application, plaintextKey, err := identity.NewApplication(input.Name, code, input.Description)
	if err != nil {
		return nil, "", err
	}

	// The unique index on the code is the duplicate authority.
	if err := service.applicationRepository.Create(ctx, application); err != nil {
		return nil, "", err
	}

	service.publisher.Publish(ctx, application.DrainEvents())
	return application, plaintextKey, nil
}

// GetApplication loads a full application aggregate.
func (service *Service) GetApplication(ctx context.Context, actor Actor, applicationID string) (*identity.Application, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return service.applicationRepository.FindByID(ctx, applicationID)
}

// ListApplications returns shallow application records.
func (service *Service) ListApplications(ctx context.Context, actor Actor) ([]*identity.Application, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return service.applicationRepository.List(ctx)
}

// SetApplicationActive activates or deactivates a tenant.
func (service *Service) SetApplicationActive(ctx context.Context, actor Actor, applicationID string, active bool) error {
	return service.mutate(ctx, actor, applicationID, func(application *identity.Application) error {
		if active {
			return application.Activate()
		}
		return application.Deactivate()
	})
}

// RotateAPIKey mints a new API key for the tenant, invalidating the old one
// immediately. The plaintext is returned exactly once.
func (service *Service) RotateAPIKey(ctx context.Context, actor Actor, applicationID string) (string, error) {
	if err := requireAdmin(actor); err != nil {
		return "", err
	}

	application, err := service.applicationRepository.FindByID(ctx, applicationID)
	if err != nil {
		return "", err
	}

	plaintextKey, err := application.RegenerateAPIKey()
	if err != nil {
		return "", err
	}

	if err := service.applicationRepository.Save(ctx, application); err != nil {
		return "", fmt.Errorf("tenant_service_rotate_save_failed: %w", err)
	}

	// Key rotations are audit-relevant; the key itself is never logged.
	service.logger.InfoContext(ctx, "api_key_rotated",
		slog.String("application_id", application.ID),
		slog.String("actor_id", actor.UserID),
	)

	service.publisher.Publish(ctx, application.DrainEvents())
	return plaintextKey, nil
}

// ValidateAPIKey checks a presented API key against the tenant registered
// under the code.
//
// An unknown code and a wrong key are indistinguishable: both yield false.
func (service *Service) ValidateAPIKey(ctx context.Context, rawCode, plaintextKey string) (bool, error) {
	code, err := identity.NewApplicationCode(rawCode)
	if err != nil {
		return false, nil
	}

	application, err := service.applicationRepository.FindByCode(ctx, code)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("tenant_service_validate_key_failed: %w", err)
	}

	return application.ValidateAPIKey(plaintextKey), nil
}

// # Role Catalogue

// RoleInput holds the data for creating or renaming a role.
type RoleInput struct {
	Name        string
	Description string
	IsDefault   bool
}

// CreateRole adds a role to the tenant's catalogue.
func (service *Service) CreateRole(ctx context.Context, actor Actor, applicationID string, input RoleInput) (*identity.ApplicationRole, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	application, err := service.applicationRepository.FindByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	role, err := application.CreateRole(input.Name, input.Description, input.IsDefault)
	if err != nil {
		return nil, err
	}

	if err := service.applicationRepository.Save(ctx, application); err != nil {
		return nil, fmt.Errorf("tenant_service_create_role_save_failed: %w", err)
	}

	service.publisher.Publish(ctx, application.DrainEvents())
	return role, nil
}

// RenameRole updates a role's name and description.
func (service *Service) RenameRole(ctx context.Context, actor Actor, applicationID, roleID string, input RoleInput) error {
	return service.mutate(ctx, actor, applicationID, func(application *identity.Application) error {
		return application.RenameRole(roleID, input.Name, input.Description)
	})
}

// SetDefaultRole promotes a role to default, atomically demoting the
// previous one.
func (service *Service) SetDefaultRole(ctx context.Context, actor Actor, applicationID, roleID string) error {
	return service.mutate(ctx, actor, applicationID, func(application *identity.Application) error {
		return application.SetDefaultRole(roleID)
	})
}

// SetRoleActive activates or deactivates a role. The default role cannot be
// deactivated.
func (service *Service) SetRoleActive(ctx context.Context, actor Actor, applicationID, roleID string, active bool) error {
	return service.mutate(ctx, actor, applicationID, func(application *identity.Application) error {
		if active {
			return application.ActivateRole(roleID)
		}
		return application.DeactivateRole(roleID)
	})
}

// DeleteRole removes a role that is neither the default nor in use.
func (service *Service) DeleteRole(ctx context.Context, actor Actor, applicationID, roleID string) error {
	return service.mutate(ctx, actor, applicationID, func(application *identity.Application) error {
		return application.DeleteRole(roleID)
	})
}

// PermissionInput holds the data for granting a capability to a role.
type PermissionInput struct {
	Resource string
	Action   string
	Name     string
}

// AddPermission grants a resource/action capability to a role.
func (service *Service) AddPermission(ctx context.Context, actor Actor, applicationID, roleID string, input PermissionInput) (identity.Permission, error) {
	if err := requireAdmin(actor); err != nil {
		return identity.Permission{}, err
	}

	application, err := service.applicationRepository.FindByID(ctx, applicationID)
	if err != nil {
		return identity.Permission{}, err
	}

	permission, err := application.AddPermissionToRole(roleID, input.Resource, input.Action, input.Name)
	if err != nil {
		return identity.Permission{}, err
	}

	if err := service.applicationRepository.Save(ctx, application); err != nil {
		return identity.Permission{}, fmt.Errorf("tenant_service_add_permission_save_failed: %w", err)
	}
	return permission, nil
}

// RemovePermission revokes a capability from a role.
func (service *Service) RemovePermission(ctx context.Context, actor Actor, applicationID, roleID, permissionID string) error {
	return service.mutate(ctx, actor, applicationID, func(application *identity.Application) error {
		return application.RemovePermissionFromRole(roleID, permissionID)
	})
}

// # Memberships

// AssignUserInput holds the data for granting a user tenant membership.
type AssignUserInput struct {
	UserID string

	// RoleID is optional: when empty, the tenant's default role is used.
	RoleID string
}

// AssignUser grants a user membership in the tenant.
//
// # Business Rules
//   - The user must exist and be active.
//   - System administrators never hold tenant memberships.
//   - A user holds at most one membership per tenant.
func (service *Service) AssignUser(ctx context.Context, actor Actor, applicationID string, input AssignUserInput) (*identity.UserApplication, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	user, err := service.userReader.FindByID(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, apperr.InvalidState("User is deactivated")
	}
	if user.IsAuthAdmin() {
		return nil, apperr.InvalidState("System administrators cannot hold tenant memberships")
	}

	application, err := service.applicationRepository.FindByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	membership, err := application.AssignUser(user.ID, input.RoleID, actor.UserID)
	if err != nil {
		return nil, err
	}

	if err := service.applicationRepository.Save(ctx, application); err != nil {
		return nil, fmt.Errorf("tenant_service_assign_save_failed: %w", err)
	}

	service.publisher.Publish(ctx, application.DrainEvents())
	return membership, nil
}

// ChangeUserRole moves a member to a different role of the same tenant.
func (service *Service) ChangeUserRole(ctx context.Context, actor Actor, applicationID, userID, roleID string) error {
	return service.mutate(ctx, actor, applicationID, func(application *identity.Application) error {
		return application.ChangeUserRole(userID, roleID)
	})
}

// RemoveUser deletes a user's membership in the tenant.
func (service *Service) RemoveUser(ctx context.Context, actor Actor, applicationID, userID string) error {
	return service.mutate(ctx, actor, applicationID, func(application *identity.Application) error {
		return application.RemoveUser(userID)
	})
}

// SetMembershipActive suspends or resumes a membership without removing it.
func (service *Service) SetMembershipActive(ctx context.Context, actor Actor, applicationID, userID string, active bool) error {
	return service.mutate(ctx, actor, applicationID, func(application *identity.Application) error {
		if active {
			return application.ActivateMembership(userID)
		}
		return application.DeactivateMembership(userID)
	})
}

// # Helpers

// mutate is the shared load-mutate-save-publish cycle for aggregate edits.
func (service *Service) mutate(ctx context.Context, actor Actor, applicationID string, mutation func(*identity.Application) error) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}

	application, err := service.applicationRepository.FindByID(ctx, applicationID)
	if err != nil {
		return err
	}

	if err := mutation(application); err != nil {
		return err
	}

	if err := service.applicationRepository.Save(ctx, application); err != nil {
		return fmt.Errorf("tenant_service_save_failed: %w", err)
	}

	service.publisher.Publish(ctx, application.DrainEvents())
	return nil
}
