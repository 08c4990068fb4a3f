// Copyright (c) 2026 Veridian Labs. All rights reserved.

package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridianlabs/veridian/internal/identity"
	"github.com/veridianlabs/veridian/internal/platform/apperr"
)

/*
TestNewEmail verifies trimming, format validation and case normalization.
*/
func TestNewEmail(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		isValid bool
	}{
		{"valid", "alice@example.com", "alice@example.com", true},
		{"upper_cased", "Alice@Example.COM", "alice@example.com", true},
		{"surrounding_whitespace", "  alice@example.com  ", "alice@example.com", true},
		{"missing_at", "alice.example.com", "", false},
		{"missing_domain", "alice@", "", false},
		{"display_name_form", "Alice <alice@example.com>", "", false},
		{"empty", "", "", false},
		{"whitespace_only", "   ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email, err := identity.NewEmail(tt.raw)

			if tt.isValid {
				require.NoError(t, err)
				assert.Equal(t, tt.want, email.String())
				assert.False(t, email.IsZero())
			} else {
				require.Error(t, err)
				assert.Equal(t, apperr.CodeInvalidFormat, apperr.As(err).Code)
				assert.True(t, email.IsZero())
			}
		})
	}
}

/*
TestNewEmail_EqualsAfterNormalization checks that differently-cased inputs
compare equal once constructed.
*/
func TestNewEmail_EqualsAfterNormalization(t *testing.T) {
	a, err := identity.NewEmail("Bob@Example.com")
	require.NoError(t, err)
	b, err := identity.NewEmail("bob@example.com")
	require.NoError(t, err)

	assert.True(t, a.Equals(b))
}

/*
TestNewApplicationCode verifies length, charset and upper-casing rules.
*/
func TestNewApplicationCode(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		isValid bool
	}{
		{"simple", "acme", "ACME", true},
		{"already_upper", "ACME", "ACME", true},
		{"full_charset", "acme.portal_v2-eu", "ACME.PORTAL_V2-EU", true},
		{"min_length", "abc", "ABC", true},
		{"trimmed", "  acme  ", "ACME", true},
		{"too_short", "ab", "", false},
		{"too_long", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "", false},
		{"inner_space", "acme portal", "", false},
		{"illegal_char", "acme!", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := identity.NewApplicationCode(tt.raw)

			if tt.isValid {
				require.NoError(t, err)
				assert.Equal(t, tt.want, code.String())
			} else {
				require.Error(t, err)
				assert.Equal(t, apperr.CodeInvalidFormat, apperr.As(err).Code)
				assert.True(t, code.IsZero())
			}
		})
	}
}

/*
TestNewApplicationCode_Idempotent checks that re-normalizing an already
normalized code yields the same value.
*/
func TestNewApplicationCode_Idempotent(t *testing.T) {
	first, err := identity.NewApplicationCode("acme-portal")
	require.NoError(t, err)

	second, err := identity.NewApplicationCode(first.String())
	require.NoError(t, err)

	assert.True(t, first.Equals(second))
	assert.Equal(t, first.String(), second.String())
}
