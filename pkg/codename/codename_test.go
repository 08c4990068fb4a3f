// Copyright (c) 2026 Veridian Labs. All rights reserved.

package codename_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veridianlabs/veridian/pkg/codename"
)

/*
TestFrom covers the display-name to code-candidate pipeline.
*/
func TestFrom(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", "Acme Portal", "ACME_PORTAL"},
		{"accents", "Café Zürich App", "CAFE_ZURICH_APP"},
		{"kept_separators", "acme.portal-v2", "ACME.PORTAL-V2"},
		{"collapsed_spaces", "Acme    Portal", "ACME_PORTAL"},
		{"symbols", "Acme! (Staging)", "ACME_STAGING"},
		{"trimmed_edges", "  --Acme--  ", "ACME"},
		{"already_code", "ACME_PORTAL", "ACME_PORTAL"},
		{"empty", "", ""},
		{"only_symbols", "!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codename.From(tt.input))
		})
	}
}
