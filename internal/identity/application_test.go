// Copyright (c) 2026 Veridian Labs. All rights reserved.

package identity_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridianlabs/veridian/internal/identity"
	"github.com/veridianlabs/veridian/internal/platform/apperr"
)

func mustCode(t *testing.T, raw string) identity.ApplicationCode {
	t.Helper()
	code, err := identity.NewApplicationCode(raw)
	require.NoError(t, err)
	return code
}

func newTestApplication(t *testing.T) *identity.Application {
	t.Helper()
	application, _, err := identity.NewApplication("Acme Portal", mustCode(t, "acme-portal"), "")
	require.NoError(t, err)
	application.DrainEvents()
	return application
}

/*
TestNewApplication verifies tenant registration and the plaintext-once API
key contract.
*/
func TestNewApplication(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		application, plaintextKey, err := identity.NewApplication("Acme Portal", mustCode(t, "acme-portal"), "B2B portal")
		require.NoError(t, err)

		assert.NotEmpty(t, application.ID)
		assert.Equal(t, "ACME-PORTAL", application.Code.String())
		assert.True(t, application.IsActive)

		// Plaintext is returned once; only the hash is retained.
		assert.True(t, strings.HasPrefix(plaintextKey, "vk_"))
		assert.NotContains(t, application.APIKeyHash, plaintextKey)
		assert.True(t, application.ValidateAPIKey(plaintextKey))
	})

	t.Run("missing_name", func(t *testing.T) {
		_, _, err := identity.NewApplication("   ", mustCode(t, "acme"), "")
		require.Error(t, err)
		assert.Equal(t, apperr.CodeValidation, apperr.As(err).Code)
	})

	t.Run("zero_code", func(t *testing.T) {
		_, _, err := identity.NewApplication("Acme", identity.ApplicationCode{}, "")
		require.Error(t, err)
	})
}

/*
TestApplication_RegenerateAPIKey checks that rotation invalidates the
previous key immediately.
*/
func TestApplication_RegenerateAPIKey(t *testing.T) {
	application, firstKey, err := identity.NewApplication("Acme", mustCode(t, "acme"), "")
	require.NoError(t, err)

	secondKey, err := application.RegenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, firstKey, secondKey)

	assert.False(t, application.ValidateAPIKey(firstKey))
	assert.True(t, application.ValidateAPIKey(secondKey))
}

/*
TestApplication_ValidateAPIKey_Inactive checks that a deactivated tenant
never validates, even with the correct key.
*/
func TestApplication_ValidateAPIKey_Inactive(t *testing.T) {
	application, key, err := identity.NewApplication("Acme", mustCode(t, "acme"), "")
	require.NoError(t, err)

	require.NoError(t, application.Deactivate())
	assert.False(t, application.ValidateAPIKey(key))

	_, err = application.RegenerateAPIKey()
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidState, apperr.As(err).Code)
}

/*
TestApplication_CreateRole covers name uniqueness and the single-default
invariant on creation.
*/
func TestApplication_CreateRole(t *testing.T) {
	application := newTestApplication(t)

	member, err := application.CreateRole("Member", "", true)
	require.NoError(t, err)
	assert.True(t, member.IsDefault)
	assert.True(t, member.IsActive)

	// Case-insensitive duplicate name.
	_, err = application.CreateRole("MEMBER", "", false)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeDuplicate, apperr.As(err).Code)

	// Creating a second default demotes the first atomically.
	admin, err := application.CreateRole("Admin", "", true)
	require.NoError(t, err)
	assert.True(t, admin.IsDefault)
	assert.False(t, member.IsDefault)
	assert.Equal(t, admin.ID, application.DefaultRole().ID)
}

/*
TestApplication_SetDefaultRole verifies the atomic default swap and its
guards.
*/
func TestApplication_SetDefaultRole(t *testing.T) {
	application := newTestApplication(t)

	member, err := application.CreateRole("Member", "", true)
	require.NoError(t, err)
	admin, err := application.CreateRole("Admin", "", false)
	require.NoError(t, err)

	require.NoError(t, application.SetDefaultRole(admin.ID))
	assert.True(t, admin.IsDefault)
	assert.False(t, member.IsDefault)

	// Exactly one default at any observable point.
	defaults := 0
	for _, role := range application.Roles {
		if role.IsDefault {
			defaults++
		}
	}
	assert.Equal(t, 1, defaults)

	// Promoting the current default again is rejected.
	err = application.SetDefaultRole(admin.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidState, apperr.As(err).Code)

	// Inactive roles cannot become the default.
	guest, err := application.CreateRole("Guest", "", false)
	require.NoError(t, err)
	require.NoError(t, application.DeactivateRole(guest.ID))
	err = application.SetDefaultRole(guest.ID)
	require.Error(t, err)

	// Unknown role.
	err = application.SetDefaultRole("missing")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.As(err).Code)
}

/*
TestApplication_DeactivateRole checks that the default role is protected.
*/
func TestApplication_DeactivateRole(t *testing.T) {
	application := newTestApplication(t)

	member, err := application.CreateRole("Member", "", true)
	require.NoError(t, err)
	admin, err := application.CreateRole("Admin", "", false)
	require.NoError(t, err)

	err = application.DeactivateRole(member.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidState, apperr.As(err).Code)

	require.NoError(t, application.DeactivateRole(admin.ID))
	assert.False(t, admin.IsActive)

	err = application.DeactivateRole(admin.ID)
	require.Error(t, err)

	require.NoError(t, application.ActivateRole(admin.ID))
	assert.True(t, admin.IsActive)
}

/*
TestApplication_DeleteRole checks the default-role and member-count guards.
*/
func TestApplication_DeleteRole(t *testing.T) {
	application := newTestApplication(t)

	member, err := application.CreateRole("Member", "", true)
	require.NoError(t, err)
	admin, err := application.CreateRole("Admin", "", false)
	require.NoError(t, err)

	// The default role cannot be deleted.
	err = application.DeleteRole(member.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidState, apperr.As(err).Code)

	// A role with members cannot be deleted.
	_, err = application.AssignUser("user-1", admin.ID, "actor-1")
	require.NoError(t, err)
	err = application.DeleteRole(admin.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidState, apperr.As(err).Code)

	// After the member moves away, deletion succeeds.
	require.NoError(t, application.ChangeUserRole("user-1", member.ID))
	require.NoError(t, application.DeleteRole(admin.ID))
	_, err = application.RoleByID(admin.ID)
	require.Error(t, err)
}

/*
TestApplication_RolePermissions covers the per-role resource:action
uniqueness and key rendering.
*/
func TestApplication_RolePermissions(t *testing.T) {
	application := newTestApplication(t)
	role, err := application.CreateRole("Member", "", true)
	require.NoError(t, err)

	permission, err := application.AddPermissionToRole(role.ID, "orders", "read", "")
	require.NoError(t, err)
	assert.Equal(t, "orders:read", permission.Key())
	assert.Equal(t, "orders:read", permission.Name)

	_, err = application.AddPermissionToRole(role.ID, "orders", "read", "Read Orders")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeDuplicate, apperr.As(err).Code)

	_, err = application.AddPermissionToRole(role.ID, "orders", "write", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"orders:read", "orders:write"}, role.PermissionKeys())

	require.NoError(t, application.RemovePermissionFromRole(role.ID, permission.ID))
	assert.Equal(t, []string{"orders:write"}, role.PermissionKeys())

	err = application.RemovePermissionFromRole(role.ID, "missing")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.As(err).Code)
}

/*
TestApplication_AssignUser covers default-role fallback, duplicate
membership and role validity checks.
*/
func TestApplication_AssignUser(t *testing.T) {
	application := newTestApplication(t)

	// No default role configured yet.
	_, err := application.AssignUser("user-1", "", "actor-1")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidState, apperr.As(err).Code)

	member, err := application.CreateRole("Member", "", true)
	require.NoError(t, err)
	admin, err := application.CreateRole("Admin", "", false)
	require.NoError(t, err)

	// Empty roleID falls back to the default role.
	membership, err := application.AssignUser("user-1", "", "actor-1")
	require.NoError(t, err)
	assert.Equal(t, member.ID, membership.RoleID)
	assert.Equal(t, "actor-1", membership.AssignedBy)
	assert.True(t, membership.IsActive)

	// One membership per user, even with a different role.
	_, err = application.AssignUser("user-1", admin.ID, "actor-1")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidState, apperr.As(err).Code)

	// Explicit role assignment.
	membership2, err := application.AssignUser("user-2", admin.ID, "actor-1")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, membership2.RoleID)

	// Unknown or inactive roles are rejected.
	_, err = application.AssignUser("user-3", "missing", "actor-1")
	require.Error(t, err)

	require.NoError(t, application.DeactivateRole(admin.ID))
	_, err = application.AssignUser("user-3", admin.ID, "actor-1")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidState, apperr.As(err).Code)
}

/*
TestApplication_AssignUser_Deactivated rejects assignment into a
deactivated tenant.
*/
func TestApplication_AssignUser_Deactivated(t *testing.T) {
	application := newTestApplication(t)
	_, err := application.CreateRole("Member", "", true)
	require.NoError(t, err)

	require.NoError(t, application.Deactivate())
	_, err = application.AssignUser("user-1", "", "actor-1")
	require.Error(t, err)
}

/*
TestApplication_ChangeUserRole moves a member between roles in place.
*/
func TestApplication_ChangeUserRole(t *testing.T) {
	application := newTestApplication(t)
	member, err := application.CreateRole("Member", "", true)
	require.NoError(t, err)
	admin, err := application.CreateRole("Admin", "", false)
	require.NoError(t, err)

	_, err = application.AssignUser("user-1", member.ID, "actor-1")
	require.NoError(t, err)

	require.NoError(t, application.ChangeUserRole("user-1", admin.ID))
	assert.Equal(t, admin.ID, application.MembershipOf("user-1").RoleID)

	// Still exactly one membership row.
	assert.Len(t, application.Memberships, 1)

	// Same role again is an invariant violation.
	err = application.ChangeUserRole("user-1", admin.ID)
	require.Error(t, err)

	// Unknown member.
	err = application.ChangeUserRole("ghost", member.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.As(err).Code)
}

/*
TestApplication_RemoveUser deletes the membership row.
*/
func TestApplication_RemoveUser(t *testing.T) {
	application := newTestApplication(t)
	_, err := application.CreateRole("Member", "", true)
	require.NoError(t, err)

	_, err = application.AssignUser("user-1", "", "actor-1")
	require.NoError(t, err)

	require.NoError(t, application.RemoveUser("user-1"))
	assert.Nil(t, application.MembershipOf("user-1"))

	err = application.RemoveUser("user-1")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.As(err).Code)
}

/*
TestApplication_MembershipSuspension covers suspend/resume without removal.
*/
func TestApplication_MembershipSuspension(t *testing.T) {
	application := newTestApplication(t)
	member, err := application.CreateRole("Member", "", true)
	require.NoError(t, err)

	_, err = application.AssignUser("user-1", "", "actor-1")
	require.NoError(t, err)

	require.NoError(t, application.DeactivateMembership("user-1"))
	membership := application.MembershipOf("user-1")
	assert.False(t, membership.IsActive)
	assert.Equal(t, member.ID, membership.RoleID)

	require.Error(t, application.DeactivateMembership("user-1"))

	require.NoError(t, application.ActivateMembership("user-1"))
	assert.True(t, membership.IsActive)
}
