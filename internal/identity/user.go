// Copyright (c) 2026 Veridian Labs. All rights reserved.

package identity

import (
	"time"

	"github.com/veridianlabs/veridian/internal/platform/apperr"
	"github.com/veridianlabs/veridian/internal/platform/events"
	"github.com/veridianlabs/veridian/pkg/uuidv7"
)

// # Principal Kinds

// UserType distinguishes system administrators from tenant-scoped users.
//
// The rules are deliberately asymmetric: AuthAdmins hold zero tenant
// memberships and authenticate without an application context, while
// Regular users must hold at least one active membership to log in.
type UserType string

const (
	// UserTypeRegular is a tenant-scoped principal.
	UserTypeRegular UserType = "Regular"

	// UserTypeAuthAdmin is a system-level principal authorized across all tenants.
	UserTypeAuthAdmin UserType = "AuthAdmin"
)

// # User Aggregate

// User is the aggregate root for a registered principal.
//
// # Lifecycle
//
// Created by registration, mutated only through the methods below. Users are
// never physically deleted: deactivation is the terminal state.
type User struct {
	ID           string
	FirstName    string
	LastName     string
	Email        Email
	PasswordHash string // self-describing encoded hash, never plaintext
	Type         UserType

	IsActive         bool
	IsEmailConfirmed bool
	LastLoginAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	domainEvents []events.Event
}

// NewUser creates a Regular user. The password hash must already be derived
// by the credential service; the aggregate never sees plaintext.
func NewUser(firstName, lastName string, email Email, passwordHash string) (*User, error) {
	return newUser(firstName, lastName, email, passwordHash, UserTypeRegular)
}

// NewAuthAdmin creates a system-level administrator.
func NewAuthAdmin(firstName, lastName string, email Email, passwordHash string) (*User, error) {
	return newUser(firstName, lastName, email, passwordHash, UserTypeAuthAdmin)
}

func newUser(firstName, lastName string, email Email, passwordHash string, userType UserType) (*User, error) {
	var fieldErrors []apperr.FieldError
	if firstName == "" {
		fieldErrors = append(fieldErrors, apperr.FieldError{Field: "first_name", Message: "This field is required"})
	}
	if lastName == "" {
		fieldErrors = append(fieldErrors, apperr.FieldError{Field: "last_name", Message: "This field is required"})
	}
	if len(fieldErrors) > 0 {
		return nil, apperr.ValidationError("Validation failed", fieldErrors...)
	}
	if email.IsZero() {
		return nil, apperr.InvalidFormat("Email is required")
	}
	if passwordHash == "" {
		return nil, apperr.InvalidFormat("Password hash is required")
	}

	now := time.Now()
	user := &User{
		ID:           uuidv7.New(),
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		PasswordHash: passwordHash,
		Type:         userType,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	user.record("user.registered", map[string]any{
		"user_id":   user.ID,
		"email":     user.Email.String(),
		"user_type": string(userType),
	})

	return user, nil
}

// FullName joins first and last name for display purposes.
func (user *User) FullName() string {
	return user.FirstName + " " + user.LastName
}

// IsAuthAdmin reports whether the user is a system administrator.
func (user *User) IsAuthAdmin() bool {
	return user.Type == UserTypeAuthAdmin
}

// # State Transitions

// UpdateProfile replaces the user's display names.
func (user *User) UpdateProfile(firstName, lastName string) error {
	if firstName == "" || lastName == "" {
		return apperr.ValidationError("Validation failed",
			apperr.FieldError{Field: "first_name", Message: "This field is required"},
			apperr.FieldError{Field: "last_name", Message: "This field is required"},
		)
	}
	user.FirstName = firstName
	user.LastName = lastName
	user.touch()
	return nil
}

// ChangePassword replaces the stored hash. The caller is responsible for
// verifying the current password and deriving the new hash beforehand.
func (user *User) ChangePassword(newPasswordHash string) error {
	if newPasswordHash == "" {
		return apperr.InvalidFormat("Password hash is required")
	}
	user.PasswordHash = newPasswordHash
	user.touch()
	user.record("user.password_changed", map[string]any{"user_id": user.ID})
	return nil
}

// Activate re-enables a deactivated user.
// Activating an already-active user is an invariant violation.
func (user *User) Activate() error {
	if user.IsActive {
		return apperr.InvalidState("User is already active")
	}
	user.IsActive = true
	user.touch()
	user.record("user.activated", map[string]any{"user_id": user.ID})
	return nil
}

// Deactivate disables the user. This is the terminal lifecycle state; rows
// are never physically deleted.
func (user *User) Deactivate() error {
	if !user.IsActive {
		return apperr.InvalidState("User is already deactivated")
	}
	user.IsActive = false
	user.touch()
	user.record("user.deactivated", map[string]any{"user_id": user.ID})
	return nil
}

// ConfirmEmail marks the address as verified.
func (user *User) ConfirmEmail() error {
	if user.IsEmailConfirmed {
		return apperr.InvalidState("Email is already confirmed")
	}
	user.IsEmailConfirmed = true
	user.touch()
	return nil
}

// RecordLogin stamps LastLoginAt. For tenant logins the orchestration layer
// additionally touches the membership's LastAccessedAt through the owning
// Application aggregate.
func (user *User) RecordLogin(at time.Time) {
	stamp := at
	user.LastLoginAt = &stamp
	user.touch()
}

// # Domain Events

// DrainEvents returns and clears the recorded domain events. The
// orchestration layer calls this after a successful persistence and forwards
// the facts to the configured publisher.
func (user *User) DrainEvents() []events.Event {
	drained := user.domainEvents
	user.domainEvents = nil
	return drained
}

func (user *User) record(name string, payload map[string]any) {
	user.domainEvents = append(user.domainEvents, events.Event{
		Name:       name,
		OccurredAt: time.Now(),
		Payload:    payload,
	})
}

func (user *User) touch() {
	user.UpdatedAt = time.Now()
}
