// Copyright (c) 2026 Veridian Labs. All rights reserved.

/*
Package request provides utilities for extracting data from HTTP requests.

It abstracts away the underlying router's parameter extraction and common
body decoding patterns, ensuring consistent error handling and type safety.
*/
package requestutil

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/veridianlabs/veridian/internal/platform/apperr"
	"github.com/veridianlabs/veridian/internal/platform/ctxutil"
	"github.com/veridianlabs/veridian/internal/platform/sec"
	"github.com/veridianlabs/veridian/internal/platform/validate"
)

// DecodeJSON reads the request body and decodes it into the target structure.
// It returns [validate.ErrInvalidJSON] if decoding fails.
func DecodeJSON(request *http.Request, target interface{}) error {
	if err := json.NewDecoder(request.Body).Decode(target); err != nil {
		return validate.ErrInvalidJSON
	}
	return nil
}

// Param retrieves a named URL parameter from the request.
func Param(request *http.Request, name string) string {
	return chi.URLParam(request, name)
}

// Principal extracts the authenticated principal claims from the request context.
// Returns nil if the request is not authenticated.
func Principal(request *http.Request) *sec.AccessClaims {
	return ctxutil.GetPrincipal(request.Context())
}

// RequiredPrincipal ensures the request is authenticated and returns the claims.
func RequiredPrincipal(request *http.Request) (*sec.AccessClaims, error) {
	claims := ctxutil.GetPrincipal(request.Context())
	if claims == nil {
		return nil, apperr.Unauthorized("Authentication required")
	}
	return claims, nil
}

// RequiredAdmin ensures the request is authenticated as a system administrator.
func RequiredAdmin(request *http.Request) (*sec.AccessClaims, error) {
	claims, err := RequiredPrincipal(request)
	if err != nil {
		return nil, err
	}
	if claims.UserType != sec.UserTypeAuthAdmin {
		return nil, apperr.Forbidden("System administrator access required")
	}
	return claims, nil
}
