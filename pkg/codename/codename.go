// Copyright (c) 2026 Veridian Labs. All rights reserved.

// Package codename derives ASCII application-code candidates from arbitrary
// Unicode display names.
//
// # Usage
//
// When a tenant is created without an explicit code, the service suggests one
// from the application name (e.g., "Acmé Corp" → "ACME_CORP"). The result
// still passes through the ApplicationCode value object for final validation.
package codename

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// nonCode matches any character outside the application-code charset.
	nonCode = regexp.MustCompile(`[^A-Z0-9._-]+`)
	// multiUnderscore collapses consecutive underscores into one.
	multiUnderscore = regexp.MustCompile(`_{2,}`)
)

// From converts an arbitrary Unicode string into an application-code candidate.
//
// # Transformation Pipeline
//
// 1. Normalizes to NFD (decomposes accented chars: é → e + combining acute).
// 2. Removes combining marks (accents).
// 3. Converts to uppercase.
// 4. Replaces whitespace and disallowed characters with underscores.
// 5. Collapses repeated underscores and trims leading/trailing separators.
//
// The result may still be too short for a valid code (e.g. an all-symbol
// name); callers must validate it through the ApplicationCode value object.
func From(s string) string {
	// 1. Normalize and remove accents
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)

	// 2. Uppercase
	result = strings.ToUpper(result)

	// 3. Replace anything outside the charset with underscores
	result = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, result)

	// 4. Clean up separators
	result = nonCode.ReplaceAllString(result, "_")
	result = multiUnderscore.ReplaceAllString(result, "_")
	result = strings.Trim(result, "._-")
	result = strings.Trim(result, "_")

	return result
}
