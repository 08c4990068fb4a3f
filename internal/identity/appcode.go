// Copyright (c) 2026 Veridian Labs. All rights reserved.

package identity

import (
	"regexp"
	"strings"

	"github.com/veridianlabs/veridian/internal/platform/apperr"
)

// # Application Code Value Object

const (
	applicationCodeMinLength = 3
	applicationCodeMaxLength = 50
)

// applicationCodeRegex matches the allowed charset BEFORE upper-casing, so
// both "acme-portal" and "ACME-PORTAL" normalize to the same code.
var applicationCodeRegex = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ApplicationCode is the globally unique, normalized identifier of a tenant.
//
// Codes are stored and compared uppercase. Construction is idempotent under
// re-normalization: NewApplicationCode(code.String()) yields the same value.
type ApplicationCode struct {
	value string
}

// NewApplicationCode validates length and charset, then upper-cases the code.
func NewApplicationCode(raw string) (ApplicationCode, error) {
	trimmed := strings.TrimSpace(raw)

	if len(trimmed) < applicationCodeMinLength || len(trimmed) > applicationCodeMaxLength {
		return ApplicationCode{}, apperr.InvalidFormat("Application code must be 3-50 characters")
	}

	if !applicationCodeRegex.MatchString(trimmed) {
		return ApplicationCode{}, apperr.InvalidFormat("Application code may only contain letters, digits, '.', '_' and '-'")
	}

	return ApplicationCode{value: strings.ToUpper(trimmed)}, nil
}

// String returns the normalized (uppercase) code.
func (c ApplicationCode) String() string { return c.value }

// IsZero reports whether the value object was never constructed.
func (c ApplicationCode) IsZero() bool { return c.value == "" }

// Equals compares two codes (both already normalized).
func (c ApplicationCode) Equals(other ApplicationCode) bool { return c.value == other.value }
