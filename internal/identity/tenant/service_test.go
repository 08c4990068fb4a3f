// Copyright (c) 2026 Veridian Labs. All rights reserved.

package tenant_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridianlabs/veridian/internal/identity"
	"github.com/veridianlabs/veridian/internal/identity/tenant"
	"github.com/veridianlabs/veridian/internal/platform/apperr"
	"github.com/veridianlabs/veridian/internal/platform/events"
	"github.com/veridianlabs/veridian/internal/platform/sec"
)

// # In-Memory Fakes

type fakeApplicationRepository struct {
	applications map[string]*identity.Application
}

func newFakeApplicationRepository() *fakeApplicationRepository {
	return &fakeApplicationRepository{applications: map[string]*identity.Application{}}
}

func (repo *fakeApplicationRepository) Create(_ context.Context, application *identity.Application) error {
	for _, existing := range repo.applications {
		if existing.Code.Equals(application.Code) {
			return apperr.Duplicate("Application code is already registered")
		}
	}
	repo.applications[application.ID] = application
	return nil
}

func (repo *fakeApplicationRepository) FindByID(_ context.Context, id string) (*identity.Application, error) {
	if application, ok := repo.applications[id]; ok {
		return application, nil
	}
	return nil, apperr.NotFound("Application")
}

func (repo *fakeApplicationRepository) FindByCode(_ context.Context, code identity.ApplicationCode) (*identity.Application, error) {
	for _, application := range repo.applications {
		if application.Code.Equals(code) {
			return application, nil
		}
	}
	return nil, apperr.NotFound("Application")
}

func (repo *fakeApplicationRepository) List(_ context.Context) ([]*identity.Application, error) {
	applications := make([]*identity.Application, 0, len(repo.applications))
	for _, application := range repo.applications {
		applications = append(applications, application)
	}
	return applications, nil
}

func (repo *fakeApplicationRepository) Save(_ context.Context, application *identity.Application) error {
	if _, ok := repo.applications[application.ID]; !ok {
		return apperr.NotFound("Application")
	}
	repo.applications[application.ID] = application
	return nil
}

func (repo *fakeApplicationRepository) TouchMembership(_ context.Context, applicationID, userID string, at time.Time) error {
	application, ok := repo.applications[applicationID]
	if !ok {
		return apperr.NotFound("Application")
	}
	if membership := application.MembershipOf(userID); membership != nil {
		membership.Touch(at)
	}
	return nil
}

type fakeUserReader struct {
	users map[string]*identity.User
}

func (reader *fakeUserReader) FindByID(_ context.Context, id string) (*identity.User, error) {
	if user, ok := reader.users[id]; ok {
		return user, nil
	}
	return nil, apperr.NotFound("User")
}

type capturingPublisher struct {
	published []events.Event
}

func (publisher *capturingPublisher) Publish(_ context.Context, domainEvents []events.Event) {
	publisher.published = append(publisher.published, domainEvents...)
}

// # Fixture

type fixture struct {
	service      *tenant.Service
	applications *fakeApplicationRepository
	users        *fakeUserReader
	publisher    *capturingPublisher
	admin        tenant.Actor
	member       tenant.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		applications: newFakeApplicationRepository(),
		users:        &fakeUserReader{users: map[string]*identity.User{}},
		publisher:    &capturingPublisher{},
		admin:        tenant.Actor{UserID: "admin-1", IsAdmin: true},
		member:       tenant.Actor{UserID: "user-1", IsAdmin: false},
	}
	f.service = tenant.NewService(f.applications, f.users, f.publisher,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func (f *fixture) seedUser(t *testing.T, id string, admin bool) *identity.User {
	t.Helper()

	email, err := identity.NewEmail(id + "@example.com")
	require.NoError(t, err)

	var user *identity.User
	if admin {
		user, err = identity.NewAuthAdmin("Admin", "User", email, "hash")
	} else {
		user, err = identity.NewUser("Some", "User", email, "hash")
	}
	require.NoError(t, err)
	user.ID = id
	f.users.users[id] = user
	return user
}

// # Application Lifecycle

/*
TestService_CreateApplication covers registration, code suggestion from the
display name, and the admin-only gate.
*/
func TestService_CreateApplication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("explicit_code", func(t *testing.T) {
		application, key, err := f.service.CreateApplication(ctx, f.admin, tenant.CreateApplicationInput{
			Name: "Acme Portal", Code: "acme-portal",
		})
		require.NoError(t, err)
		assert.Equal(t, "ACME-PORTAL", application.Code.String())
		assert.True(t, strings.HasPrefix(key, "vk_"))
	})

	t.Run("suggested_code", func(t *testing.T) {
		application, _, err := f.service.CreateApplication(ctx, f.admin, tenant.CreateApplicationInput{
			Name: "Café Zürich App",
		})
		require.NoError(t, err)
		assert.Equal(t, "CAFE_ZURICH_APP", application.Code.String())
	})

	t.Run("duplicate_code", func(t *testing.T) {
		_, _, err := f.service.CreateApplication(ctx, f.admin, tenant.CreateApplicationInput{
			Name: "Other", Code: "ACME-PORTAL",
		})
		require.Error(t, err)
		assert.Equal(t, apperr.CodeDuplicate, apperr.As(err).Code)
	})

	t.Run("non_admin_forbidden", func(t *testing.T) {
		_, _, err := f.service.CreateApplication(ctx, f.member, tenant.CreateApplicationInput{
			Name: "Sneaky", Code: "sneaky",
		})
		require.Error(t, err)
		assert.Equal(t, apperr.CodeForbidden, apperr.As(err).Code)
	})
}

/*
TestService_RotateAPIKey verifies key rotation through the service and that
the old key stops validating immediately.
*/
func TestService_RotateAPIKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	application, originalKey, err := f.service.CreateApplication(ctx, f.admin, tenant.CreateApplicationInput{
		Name: "Acme", Code: "acme",
	})
	require.NoError(t, err)

	rotatedKey, err := f.service.RotateAPIKey(ctx, f.admin, application.ID)
	require.NoError(t, err)
	assert.NotEqual(t, originalKey, rotatedKey)

	valid, err := f.service.ValidateAPIKey(ctx, "acme", originalKey)
	require.NoError(t, err)
	assert.False(t, valid)

	valid, err = f.service.ValidateAPIKey(ctx, "ACME", rotatedKey)
	require.NoError(t, err)
	assert.True(t, valid)

	_, err = f.service.RotateAPIKey(ctx, f.member, application.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeForbidden, apperr.As(err).Code)
}

/*
TestService_ValidateAPIKey_NoEnumeration checks that unknown codes, bad
codes, and deactivated tenants all collapse into a plain false.
*/
func TestService_ValidateAPIKey_NoEnumeration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	application, key, err := f.service.CreateApplication(ctx, f.admin, tenant.CreateApplicationInput{
		Name: "Acme", Code: "acme",
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		code string
		key  string
	}{
		{"unknown_code", "ghost", key},
		{"malformed_code", "!!", key},
		{"wrong_key", "acme", "vk_forged"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, err := f.service.ValidateAPIKey(ctx, tt.code, tt.key)
			require.NoError(t, err)
			assert.False(t, valid)
		})
	}

	require.NoError(t, f.service.SetApplicationActive(ctx, f.admin, application.ID, false))
	valid, err := f.service.ValidateAPIKey(ctx, "acme", key)
	require.NoError(t, err)
	assert.False(t, valid)
}

// # Role Catalogue

/*
TestService_RoleLifecycle drives the catalogue through the service layer:
create, default swap, deactivation guard, deletion guard.
*/
func TestService_RoleLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	application, _, err := f.service.CreateApplication(ctx, f.admin, tenant.CreateApplicationInput{
		Name: "Acme", Code: "acme",
	})
	require.NoError(t, err)

	member, err := f.service.CreateRole(ctx, f.admin, application.ID, tenant.RoleInput{
		Name: "Member", IsDefault: true,
	})
	require.NoError(t, err)
	admin, err := f.service.CreateRole(ctx, f.admin, application.ID, tenant.RoleInput{Name: "Admin"})
	require.NoError(t, err)

	// The default role resists deactivation and deletion.
	err = f.service.SetRoleActive(ctx, f.admin, application.ID, member.ID, false)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidState, apperr.As(err).Code)
	err = f.service.DeleteRole(ctx, f.admin, application.ID, member.ID)
	require.Error(t, err)

	// Swap the default, then the old one is deletable.
	require.NoError(t, f.service.SetDefaultRole(ctx, f.admin, application.ID, admin.ID))
	require.NoError(t, f.service.DeleteRole(ctx, f.admin, application.ID, member.ID))

	stored, err := f.service.GetApplication(ctx, f.admin, application.ID)
	require.NoError(t, err)
	require.Len(t, stored.Roles, 1)
	assert.True(t, stored.Roles[0].IsDefault)
}

/*
TestService_Permissions drives grant and revoke through the service.
*/
func TestService_Permissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	application, _, err := f.service.CreateApplication(ctx, f.admin, tenant.CreateApplicationInput{
		Name: "Acme", Code: "acme",
	})
	require.NoError(t, err)
	role, err := f.service.CreateRole(ctx, f.admin, application.ID, tenant.RoleInput{Name: "Member", IsDefault: true})
	require.NoError(t, err)

	permission, err := f.service.AddPermission(ctx, f.admin, application.ID, role.ID, tenant.PermissionInput{
		Resource: "orders", Action: "read",
	})
	require.NoError(t, err)
	assert.Equal(t, "orders:read", permission.Key())

	_, err = f.service.AddPermission(ctx, f.admin, application.ID, role.ID, tenant.PermissionInput{
		Resource: "orders", Action: "read",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeDuplicate, apperr.As(err).Code)

	require.NoError(t, f.service.RemovePermission(ctx, f.admin, application.ID, role.ID, permission.ID))
}

// # Memberships

/*
TestService_AssignUser covers the membership rules that live above the
aggregate: user existence, active state, and the no-admin-membership rule.
*/
func TestService_AssignUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	application, _, err := f.service.CreateApplication(ctx, f.admin, tenant.CreateApplicationInput{
		Name: "Acme", Code: "acme",
	})
	require.NoError(t, err)
	_, err = f.service.CreateRole(ctx, f.admin, application.ID, tenant.RoleInput{Name: "Member", IsDefault: true})
	require.NoError(t, err)

	user := f.seedUser(t, "user-1", false)
	adminUser := f.seedUser(t, "admin-2", true)
	inactive := f.seedUser(t, "user-2", false)
	require.NoError(t, inactive.Deactivate())

	membership, err := f.service.AssignUser(ctx, f.admin, application.ID, tenant.AssignUserInput{UserID: user.ID})
	require.NoError(t, err)
	assert.Equal(t, f.admin.UserID, membership.AssignedBy)

	// Second assignment for the same user fails.
	_, err = f.service.AssignUser(ctx, f.admin, application.ID, tenant.AssignUserInput{UserID: user.ID})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidState, apperr.As(err).Code)

	// System administrators never hold memberships.
	_, err = f.service.AssignUser(ctx, f.admin, application.ID, tenant.AssignUserInput{UserID: adminUser.ID})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidState, apperr.As(err).Code)

	// Deactivated users cannot be assigned.
	_, err = f.service.AssignUser(ctx, f.admin, application.ID, tenant.AssignUserInput{UserID: inactive.ID})
	require.Error(t, err)

	// Unknown users are a plain 404.
	_, err = f.service.AssignUser(ctx, f.admin, application.ID, tenant.AssignUserInput{UserID: "ghost"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.As(err).Code)
}

/*
TestService_MembershipMutations drives role changes, suspension, and removal.
*/
func TestService_MembershipMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	application, _, err := f.service.CreateApplication(ctx, f.admin, tenant.CreateApplicationInput{
		Name: "Acme", Code: "acme",
	})
	require.NoError(t, err)
	_, err = f.service.CreateRole(ctx, f.admin, application.ID, tenant.RoleInput{Name: "Member", IsDefault: true})
	require.NoError(t, err)
	adminRole, err := f.service.CreateRole(ctx, f.admin, application.ID, tenant.RoleInput{Name: "Admin"})
	require.NoError(t, err)

	user := f.seedUser(t, "user-1", false)
	_, err = f.service.AssignUser(ctx, f.admin, application.ID, tenant.AssignUserInput{UserID: user.ID})
	require.NoError(t, err)

	require.NoError(t, f.service.ChangeUserRole(ctx, f.admin, application.ID, user.ID, adminRole.ID))
	require.NoError(t, f.service.SetMembershipActive(ctx, f.admin, application.ID, user.ID, false))
	require.NoError(t, f.service.SetMembershipActive(ctx, f.admin, application.ID, user.ID, true))
	require.NoError(t, f.service.RemoveUser(ctx, f.admin, application.ID, user.ID))

	stored, err := f.service.GetApplication(ctx, f.admin, application.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Memberships)
}

/*
TestActorFromClaims maps token claims onto the acting principal.
*/
func TestActorFromClaims(t *testing.T) {
	adminActor := tenant.ActorFromClaims(&sec.AccessClaims{UserType: sec.UserTypeAuthAdmin})
	assert.True(t, adminActor.IsAdmin)

	memberActor := tenant.ActorFromClaims(&sec.AccessClaims{UserType: sec.UserTypeRegular})
	assert.False(t, memberActor.IsAdmin)
}
