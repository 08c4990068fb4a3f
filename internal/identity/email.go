// Copyright (c) 2026 Veridian Labs. All rights reserved.

/*
Package identity defines the domain model of the Veridian identity core.

It contains the value objects (Email, ApplicationCode) and aggregates (User,
Application, RefreshToken) that own every business rule of the multi-tenant
identity system.

# Architecture

This layer is the "Truth" of the system. Aggregates expose only
invariant-preserving methods; no field is ever mutated from outside the
owning aggregate. Persistence and transport know nothing about the rules
encoded here.
*/
package identity

import (
	"net/mail"
	"strings"

	"github.com/veridianlabs/veridian/internal/platform/apperr"
)

// # Email Value Object

// Email is a validated, case-normalized email address.
//
// The zero value is invalid; construct via [NewEmail].
type Email struct {
	value string
}

// NewEmail trims and validates the raw input and lower-cases it so storage
// and comparison are case-insensitive.
func NewEmail(raw string) (Email, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Email{}, apperr.InvalidFormat("Email is required")
	}

	address, err := mail.ParseAddress(trimmed)
	if err != nil || address.Address != trimmed {
		return Email{}, apperr.InvalidFormat("Email has an invalid format")
	}

	return Email{value: strings.ToLower(trimmed)}, nil
}

// String returns the normalized address.
func (e Email) String() string { return e.value }

// IsZero reports whether the value object was never constructed.
func (e Email) IsZero() bool { return e.value == "" }

// Equals compares two emails (both already normalized).
func (e Email) Equals(other Email) bool { return e.value == other.value }
