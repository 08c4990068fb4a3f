// Copyright (c) 2026 Veridian Labs. All rights reserved.

package authn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridianlabs/veridian/internal/identity"
	"github.com/veridianlabs/veridian/internal/platform/apperr"
	"github.com/veridianlabs/veridian/internal/platform/dberr"
)

// # User Repository

// PostgresUserRepository implements [UserRepository] using pgx.
//
// # Error Mapping
//
// Storage-specific errors (pgx.ErrNoRows, unique violations) are mapped to
// domain-friendly [apperr.AppError] values so nothing storage-shaped leaks
// out of this layer.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresUserRepository creates the PostgreSQL [UserRepository].
func NewPostgresUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

const userColumns = `
	id, firstname, lastname, email, passwordhash, usertype,
	isactive, isemailconfirmed, lastloginat, createdat, updatedat`

// scanUser hydrates a domain user from one row, reconstructing the email
// value object from its already-normalized stored form.
func scanUser(row pgx.Row) (*identity.User, error) {
	user := &identity.User{}
	var rawEmail string

	err := row.Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&rawEmail,
		&user.PasswordHash,
		&user.Type,
		&user.IsActive,
		&user.IsEmailConfirmed,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	email, err := identity.NewEmail(rawEmail)
	if err != nil {
		return nil, fmt.Errorf("postgres_user_repo_corrupt_email for %s: %w", user.ID, err)
	}
	user.Email = email

	return user, nil
}

// Create persists a new user into identity.account.
func (repository *PostgresUserRepository) Create(ctx context.Context, user *identity.User) error {
	const query = `
		INSERT INTO identity.account (
			id, firstname, lastname, email, passwordhash, usertype,
			isactive, isemailconfirmed, lastloginat, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := repository.pool.Exec(ctx, query,
		user.ID,
		user.FirstName,
		user.LastName,
		user.Email.String(),
		user.PasswordHash,
		user.Type,
		user.IsActive,
		user.IsEmailConfirmed,
		user.LastLoginAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return dberr.Wrap(err, "Email is already registered")
	}

	return nil
}

// FindByID retrieves a user by primary key.
func (repository *PostgresUserRepository) FindByID(ctx context.Context, id string) (*identity.User, error) {
	const query = `SELECT` + userColumns + ` FROM identity.account WHERE id = $1`

	user, err := scanUser(repository.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User")
		}
		return nil, fmt.Errorf("postgres_user_repo_find_by_id_failed: %w", err)
	}
	return user, nil
}

// FindByEmail retrieves a user by their normalized email address.
func (repository *PostgresUserRepository) FindByEmail(ctx context.Context, email identity.Email) (*identity.User, error) {
	const query = `SELECT` + userColumns + ` FROM identity.account WHERE email = $1`

	user, err := scanUser(repository.pool.QueryRow(ctx, query, email.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User")
		}
		return nil, fmt.Errorf("postgres_user_repo_find_by_email_failed: %w", err)
	}
	return user, nil
}

// Update persists mutable profile and lifecycle fields. The password hash is
// deliberately excluded; see [PostgresUserRepository.UpdatePassword].
func (repository *PostgresUserRepository) Update(ctx context.Context, user *identity.User) error {
	const query = `
		UPDATE identity.account
		SET firstname = $2, lastname = $3, isactive = $4, isemailconfirmed = $5,
		    lastloginat = $6, updatedat = $7
		WHERE id = $1`

	_, err := repository.pool.Exec(ctx, query,
		user.ID,
		user.FirstName,
		user.LastName,
		user.IsActive,
		user.IsEmailConfirmed,
		user.LastLoginAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_user_repo_update_failed: %w", err)
	}
	return nil
}

// UpdatePassword replaces only the stored password hash.
func (repository *PostgresUserRepository) UpdatePassword(ctx context.Context, userID, newHash string) error {
	const query = `
		UPDATE identity.account
		SET passwordhash = $2, updatedat = $3
		WHERE id = $1`

	_, err := repository.pool.Exec(ctx, query, userID, newHash, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_user_repo_update_password_failed: %w", err)
	}
	return nil
}

// # Refresh Token Repository

// PostgresRefreshTokenRepository implements [RefreshTokenRepository].
type PostgresRefreshTokenRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRefreshTokenRepository creates the PostgreSQL [RefreshTokenRepository].
func NewPostgresRefreshTokenRepository(pool *pgxpool.Pool) *PostgresRefreshTokenRepository {
	return &PostgresRefreshTokenRepository{pool: pool}
}

const refreshTokenColumns = `
	id, userid, tokenhash, applicationid, expiresat, revoked, revokedat, replacedbyid, createdat`

func scanRefreshToken(row pgx.Row) (*identity.RefreshToken, error) {
	token := &identity.RefreshToken{}
	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ApplicationID,
		&token.ExpiresAt,
		&token.Revoked,
		&token.RevokedAt,
		&token.ReplacedByID,
		&token.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// Create persists a rotation-chain head.
func (repository *PostgresRefreshTokenRepository) Create(ctx context.Context, token *identity.RefreshToken) error {
	const query = `
		INSERT INTO identity.refresh_token (
			id, userid, tokenhash, applicationid, expiresat, revoked, revokedat, replacedbyid, createdat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := repository.pool.Exec(ctx, query,
		token.ID,
		token.UserID,
		token.TokenHash,
		token.ApplicationID,
		token.ExpiresAt,
		token.Revoked,
		token.RevokedAt,
		token.ReplacedByID,
		token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_refresh_repo_create_failed: %w", err)
	}
	return nil
}

// FindByHash retrieves a token by digest, including revoked and expired rows.
func (repository *PostgresRefreshTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*identity.RefreshToken, error) {
	const query = `SELECT` + refreshTokenColumns + ` FROM identity.refresh_token WHERE tokenhash = $1`

	token, err := scanRefreshToken(repository.pool.QueryRow(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Refresh token")
		}
		return nil, fmt.Errorf("postgres_refresh_repo_find_failed: %w", err)
	}
	return token, nil
}

// Rotate claims the presented token and inserts its successor atomically.
//
// The claim is a conditional revoke: UPDATE ... WHERE revoked = FALSE. Under
// concurrent rotation of the same token exactly one transaction updates the
// row; the loser observes zero affected rows and gets [apperr.InvalidToken].
func (repository *PostgresRefreshTokenRepository) Rotate(ctx context.Context, presented, successor *identity.RefreshToken) error {
	tx, err := repository.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres_refresh_repo_rotate_begin_failed: %w", err)
	}
	defer tx.Rollback(ctx)

	const claimQuery = `
		UPDATE identity.refresh_token
		SET revoked = TRUE, revokedat = $2, replacedbyid = $3
		WHERE id = $1 AND revoked = FALSE`

	claimed, err := tx.Exec(ctx, claimQuery, presented.ID, time.Now(), successor.ID)
	if err != nil {
		return fmt.Errorf("postgres_refresh_repo_rotate_claim_failed: %w", err)
	}
	if claimed.RowsAffected() == 0 {
		return apperr.InvalidToken()
	}

	const insertQuery = `
		INSERT INTO identity.refresh_token (
			id, userid, tokenhash, applicationid, expiresat, revoked, revokedat, replacedbyid, createdat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = tx.Exec(ctx, insertQuery,
		successor.ID,
		successor.UserID,
		successor.TokenHash,
		successor.ApplicationID,
		successor.ExpiresAt,
		successor.Revoked,
		successor.RevokedAt,
		successor.ReplacedByID,
		successor.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_refresh_repo_rotate_insert_failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres_refresh_repo_rotate_commit_failed: %w", err)
	}
	return nil
}

// Revoke marks one token unusable. Already-revoked rows are left untouched.
func (repository *PostgresRefreshTokenRepository) Revoke(ctx context.Context, tokenID string, at time.Time) error {
	const query = `
		UPDATE identity.refresh_token
		SET revoked = TRUE, revokedat = $2
		WHERE id = $1 AND revoked = FALSE`

	_, err := repository.pool.Exec(ctx, query, tokenID, at)
	if err != nil {
		return fmt.Errorf("postgres_refresh_repo_revoke_failed: %w", err)
	}
	return nil
}

// RevokeChain revokes the token and every successor reachable through the
// replacedbyid links in a single recursive statement.
func (repository *PostgresRefreshTokenRepository) RevokeChain(ctx context.Context, tokenID string, at time.Time) error {
	const query = `
		WITH RECURSIVE chain AS (
			SELECT id, replacedbyid FROM identity.refresh_token WHERE id = $1
			UNION ALL
			SELECT t.id, t.replacedbyid
			FROM identity.refresh_token t
			JOIN chain c ON t.id = c.replacedbyid
		)
		UPDATE identity.refresh_token
		SET revoked = TRUE, revokedat = $2
		WHERE id IN (SELECT id FROM chain) AND revoked = FALSE`

	_, err := repository.pool.Exec(ctx, query, tokenID, at)
	if err != nil {
		return fmt.Errorf("postgres_refresh_repo_revoke_chain_failed: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every live token of the user.
func (repository *PostgresRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time) error {
	const query = `
		UPDATE identity.refresh_token
		SET revoked = TRUE, revokedat = $2
		WHERE userid = $1 AND revoked = FALSE`

	_, err := repository.pool.Exec(ctx, query, userID, at)
	if err != nil {
		return fmt.Errorf("postgres_refresh_repo_revoke_all_failed: %w", err)
	}
	return nil
}

// DeleteExpired physically removes rows past their expiry. Called by the
// periodic cleanup worker.
func (repository *PostgresRefreshTokenRepository) DeleteExpired(ctx context.Context) error {
	const query = `DELETE FROM identity.refresh_token WHERE expiresat <= NOW()`

	_, err := repository.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("postgres_refresh_repo_delete_expired_failed: %w", err)
	}
	return nil
}
