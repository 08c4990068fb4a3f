// Copyright (c) 2026 Veridian Labs. All rights reserved.

// Package dberr provides a bridge between low-level database errors and
// higher-level application errors.
package dberr

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/veridianlabs/veridian/internal/platform/apperr"
)

var (
	// ErrNotFound is a standard error returned when a queried row doesn't exist.
	ErrNotFound = apperr.NotFound("Resource")
)

// Wrap inspects a database error and wraps it into a meaningful [apperr.AppError].
// It hides internal database details from the client while classifying the error type.
func Wrap(err error, conflictMessage string) error {
	if err == nil {
		return nil
	}

	// 1. Not Found mapping
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}

	// 2. Unique-constraint violations become client-safe Duplicate errors.
	// The unique indexes guard Email, ApplicationCode, (ApplicationID, RoleName)
	// and (UserID, ApplicationID) membership rows.
	var pgError *pgconn.PgError
	if errors.As(err, &pgError) && pgError.Code == pgerrcode.UniqueViolation {
		return apperr.Wrapf(apperr.Duplicate(conflictMessage), "unique violation on %s: %w", pgError.ConstraintName, err)
	}

	// 3. Unknown query errors become Internal Server Errors
	return apperr.Internal(err)
}
