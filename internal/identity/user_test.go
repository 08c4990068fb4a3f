// Copyright (c) 2026 Veridian Labs. All rights reserved.

package identity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridianlabs/veridian/internal/identity"
	"github.com/veridianlabs/veridian/internal/platform/apperr"
)

func mustEmail(t *testing.T, raw string) identity.Email {
	t.Helper()
	email, err := identity.NewEmail(raw)
	require.NoError(t, err)
	return email
}

/*
TestNewUser verifies construction defaults and field validation.
*/
func TestNewUser(t *testing.T) {
	email := mustEmail(t, "alice@example.com")

	t.Run("valid_regular", func(t *testing.T) {
		user, err := identity.NewUser("Alice", "Doe", email, "pbkdf2-sha256$150000$salt$key")
		require.NoError(t, err)

		assert.NotEmpty(t, user.ID)
		assert.Equal(t, identity.UserTypeRegular, user.Type)
		assert.True(t, user.IsActive)
		assert.False(t, user.IsEmailConfirmed)
		assert.Nil(t, user.LastLoginAt)
		assert.False(t, user.IsAuthAdmin())
		assert.Equal(t, "Alice Doe", user.FullName())
	})

	t.Run("valid_auth_admin", func(t *testing.T) {
		admin, err := identity.NewAuthAdmin("Root", "Admin", email, "pbkdf2-sha256$150000$salt$key")
		require.NoError(t, err)
		assert.True(t, admin.IsAuthAdmin())
	})

	t.Run("missing_names", func(t *testing.T) {
		_, err := identity.NewUser("", "", email, "hash")
		require.Error(t, err)

		ae := apperr.As(err)
		require.NotNil(t, ae)
		assert.Equal(t, apperr.CodeValidation, ae.Code)
		assert.Len(t, ae.Details, 2)
	})

	t.Run("zero_email", func(t *testing.T) {
		_, err := identity.NewUser("Alice", "Doe", identity.Email{}, "hash")
		require.Error(t, err)
		assert.Equal(t, apperr.CodeInvalidFormat, apperr.As(err).Code)
	})

	t.Run("missing_hash", func(t *testing.T) {
		_, err := identity.NewUser("Alice", "Doe", email, "")
		require.Error(t, err)
	})
}

/*
TestUser_LifecycleTransitions covers the activate/deactivate state machine
and its idempotency guards.
*/
func TestUser_LifecycleTransitions(t *testing.T) {
	user, err := identity.NewUser("Alice", "Doe", mustEmail(t, "alice@example.com"), "hash")
	require.NoError(t, err)

	// Already active at creation.
	err = user.Activate()
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidState, apperr.As(err).Code)

	require.NoError(t, user.Deactivate())
	assert.False(t, user.IsActive)

	// Double deactivation is rejected.
	err = user.Deactivate()
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidState, apperr.As(err).Code)

	require.NoError(t, user.Activate())
	assert.True(t, user.IsActive)
}

/*
TestUser_ConfirmEmail checks the one-way confirmation flag.
*/
func TestUser_ConfirmEmail(t *testing.T) {
	user, err := identity.NewUser("Alice", "Doe", mustEmail(t, "alice@example.com"), "hash")
	require.NoError(t, err)

	require.NoError(t, user.ConfirmEmail())
	assert.True(t, user.IsEmailConfirmed)

	err = user.ConfirmEmail()
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidState, apperr.As(err).Code)
}

/*
TestUser_ChangePassword verifies hash replacement and the recorded event.
*/
func TestUser_ChangePassword(t *testing.T) {
	user, err := identity.NewUser("Alice", "Doe", mustEmail(t, "alice@example.com"), "old-hash")
	require.NoError(t, err)
	user.DrainEvents() // discard user.registered

	require.NoError(t, user.ChangePassword("new-hash"))
	assert.Equal(t, "new-hash", user.PasswordHash)

	drained := user.DrainEvents()
	require.Len(t, drained, 1)
	assert.Equal(t, "user.password_changed", drained[0].Name)

	// Draining clears the buffer.
	assert.Empty(t, user.DrainEvents())

	require.Error(t, user.ChangePassword(""))
}

/*
TestUser_RecordLogin checks the last-login stamp.
*/
func TestUser_RecordLogin(t *testing.T) {
	user, err := identity.NewUser("Alice", "Doe", mustEmail(t, "alice@example.com"), "hash")
	require.NoError(t, err)

	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	user.RecordLogin(at)

	require.NotNil(t, user.LastLoginAt)
	assert.Equal(t, at, *user.LastLoginAt)
}
