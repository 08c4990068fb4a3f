// Copyright (c) 2026 Veridian Labs. All rights reserved.

package tenant

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

// PostgresApplicationRepository implements [ApplicationRepository] using pgx.
//
// It also satisfies the authentication flow's read-only application contract,
// so one repository serves both orchestration layers.
type PostgresApplicationRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresApplicationRepository creates the PostgreSQL [ApplicationRepository].
func NewPostgresApplicationRepository(pool *pgxpool.Pool) *PostgresApplicationRepository {
	return &PostgresApplicationRepository{pool: pool}
}

const applicationColumns = `
	id, name, code, description, apikeyhash, isactive, createdat, updatedat`

func scanApplication(row pgx.Row) (*identity.Application, error) {
	application := &identity.Application{}
	var rawCode string

	err := row.Scan(
		&application.ID,
		&application.Name,
		&rawCode,
		&application.Description,
		&application.APIKeyHash,
		&application.IsActive,
		&application.CreatedAt,
		&application.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	code, err := identity.NewApplicationCode(rawCode)
	if err != nil {
		return nil, fmt.Errorf("postgres_application_repo_corrupt_code for %s: %w", application.ID, err)
	}
	application.Code = code

	return application, nil
}

// Create persists a freshly registered application row.
func (repository *PostgresApplicationRepository) Create(ctx context.Context, application *identity.Application) error {
	const query = `
		INSERT INTO identity.application (
			id, name, code, description, apikeyhash, isactive, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := repository.pool.Exec(ctx, query,
		application.ID,
		application.Name,
		application.Code.String(),
		application.Description,
		application.APIKeyHash,
		application.IsActive,
		application.CreatedAt,
		application.UpdatedAt,
	)
	if err != nil {
		return dberr.Wrap(err, "Application code is already registered")
	}
	return nil
}

// FindByID loads the full aggregate by primary key.
func (repository *PostgresApplicationRepository) FindByID(ctx context.Context, id string) (*identity.Application, error) {
	const query = `SELECT` + applicationColumns + ` FROM identity.application WHERE id = $1`
	return repository.loadAggregate(ctx, repository.pool.QueryRow(ctx, query, id))
}

// FindByCode loads the full aggregate by its normalized code.
func (repository *PostgresApplicationRepository) FindByCode(ctx context.Context, code identity.ApplicationCode) (*identity.Application, error) {
	const query = `SELECT` + applicationColumns + ` FROM identity.application WHERE code = $1`
	return repository.loadAggregate(ctx, repository.pool.QueryRow(ctx, query, code.String()))
}

// loadAggregate hydrates the application row plus its roles, permissions,
// and memberships.
func (repository *PostgresApplicationRepository) loadAggregate(ctx context.Context, row pgx.Row) (*identity.Application, error) {
	application, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Application")
		}
		return nil, fmt.Errorf("postgres_application_repo_find_failed: %w", err)
	}

	if err := repository.loadRoles(ctx, application); err != nil {
		return nil, err
	}
	if err := repository.loadMemberships(ctx, application); err != nil {
		return nil, err
	}

	return application, nil
}

func (repository *PostgresApplicationRepository) loadRoles(ctx context.Context, application *identity.Application) error {
	const roleQuery = `
		SELECT id, applicationid, name, description, isactive, isdefault, createdat, updatedat
		FROM identity.application_role
		WHERE applicationid = $1
		ORDER BY createdat`

	rows, err := repository.pool.Query(ctx, roleQuery, application.ID)
	if err != nil {
		return fmt.Errorf("postgres_application_repo_load_roles_failed: %w", err)
	}
	defer rows.Close()

	rolesByID := map[string]*identity.ApplicationRole{}
	for rows.Next() {
		role := &identity.ApplicationRole{}
		err := rows.Scan(
			&role.ID,
			&role.ApplicationID,
			&role.Name,
			&role.Description,
			&role.IsActive,
			&role.IsDefault,
			&role.CreatedAt,
			&role.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("postgres_application_repo_scan_role_failed: %w", err)
		}
		application.Roles = append(application.Roles, role)
		rolesByID[role.ID] = role
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres_application_repo_load_roles_failed: %w", err)
	}

	const permissionQuery = `
		SELECT p.id, p.roleid, p.resource, p.action, p.name
		FROM identity.role_permission p
		JOIN identity.application_role r ON r.id = p.roleid
		WHERE r.applicationid = $1
		ORDER BY p.resource, p.action`

	permissionRows, err := repository.pool.Query(ctx, permissionQuery, application.ID)
	if err != nil {
		return fmt.Errorf("postgres_application_repo_load_permissions_failed: %w", err)
	}
	defer permissionRows.Close()

	for permissionRows.Next() {
		var permission identity.Permission
		var roleID string
		err := permissionRows.Scan(&permission.ID, &roleID, &permission.Resource, &permission.Action, &permission.Name)
		if err != nil {
			return fmt.Errorf("postgres_application_repo_scan_permission_failed: %w", err)
		}
		if role, ok := rolesByID[roleID]; ok {
			role.Permissions = append(role.Permissions, permission)
		}
	}
	if err := permissionRows.Err(); err != nil {
		return fmt.Errorf("postgres_application_repo_load_permissions_failed: %w", err)
	}

	return nil
}

func (repository *PostgresApplicationRepository) loadMemberships(ctx context.Context, application *identity.Application) error {
	const query = `
		SELECT userid, applicationid, roleid, isactive, assignedat, assignedby, lastaccessedat
		FROM identity.user_application
		WHERE applicationid = $1
		ORDER BY assignedat`

	rows, err := repository.pool.Query(ctx, query, application.ID)
	if err != nil {
		return fmt.Errorf("postgres_application_repo_load_memberships_failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		membership := &identity.UserApplication{}
		err := rows.Scan(
			&membership.UserID,
			&membership.ApplicationID,
			&membership.RoleID,
			&membership.IsActive,
			&membership.AssignedAt,
			&membership.AssignedBy,
			&membership.LastAccessedAt,
		)
		if err != nil {
			return fmt.Errorf("postgres_application_repo_scan_membership_failed: %w", err)
		}
		application.Memberships = append(application.Memberships, membership)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres_application_repo_load_memberships_failed: %w", err)
	}

	return nil
}

// List returns shallow application records ordered by creation time.
func (repository *PostgresApplicationRepository) List(ctx context.Context) ([]*identity.Application, error) {
	const query = `SELECT` + applicationColumns + ` FROM identity.application ORDER BY createdat`

	rows, err := repository.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres_application_repo_list_failed: %w", err)
	}
	defer rows.Close()

	var applications []*identity.Application
	for rows.Next() {
		application, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres_application_repo_list_scan_failed: %w", err)
		}
		applications = append(applications, application)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_application_repo_list_failed: %w", err)
	}

	return applications, nil
}

// Save writes the full aggregate back in one transaction.
//
// # Strategy
//
// The child tables are rewritten from the aggregate state (delete, then
// re-insert with their preserved IDs). The aggregate is small and always
// loaded whole, so reconciling row diffs would buy nothing but complexity.
func (repository *PostgresApplicationRepository) Save(ctx context.Context, application *identity.Application) error {
	tx, err := repository.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres_application_repo_save_begin_failed: %w", err)
	}
	defer tx.Rollback(ctx)

	const updateQuery = `
		UPDATE identity.application
		SET name = $2, description = $3, apikeyhash = $4, isactive = $5, updatedat = $6
		WHERE id = $1`

	updated, err := tx.Exec(ctx, updateQuery,
		application.ID,
		application.Name,
		application.Description,
		application.APIKeyHash,
		application.IsActive,
		application.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_application_repo_save_update_failed: %w", err)
	}
	if updated.RowsAffected() == 0 {
		return apperr.NotFound("Application")
	}

	// Children go in FK order: memberships reference roles.
	deletes := []string{
		`DELETE FROM identity.user_application WHERE applicationid = $1`,
		`DELETE FROM identity.role_permission p USING identity.application_role r
			WHERE p.roleid = r.id AND r.applicationid = $1`,
		`DELETE FROM identity.application_role WHERE applicationid = $1`,
	}
	for _, query := range deletes {
		if _, err := tx.Exec(ctx, query, application.ID); err != nil {
			return fmt.Errorf("postgres_application_repo_save_clear_failed: %w", err)
		}
	}

	const insertRoleQuery = `
		INSERT INTO identity.application_role (
			id, applicationid, name, description, isactive, isdefault, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	const insertPermissionQuery = `
		INSERT INTO identity.role_permission (id, roleid, resource, action, name)
		VALUES ($1, $2, $3, $4, $5)`

	for _, role := range application.Roles {
		_, err := tx.Exec(ctx, insertRoleQuery,
			role.ID,
			role.ApplicationID,
			role.Name,
			role.Description,
			role.IsActive,
			role.IsDefault,
			role.CreatedAt,
			role.UpdatedAt,
		)
		if err != nil {
			return dberr.Wrap(err, "Role name already exists in this application")
		}

		for _, permission := range role.Permissions {
			_, err := tx.Exec(ctx, insertPermissionQuery,
				permission.ID, role.ID, permission.Resource, permission.Action, permission.Name)
			if err != nil {
				return dberr.Wrap(err, "Permission already granted to this role")
			}
		}
	}

	const insertMembershipQuery = `
		INSERT INTO identity.user_application (
			userid, applicationid, roleid, isactive, assignedat, assignedby, lastaccessedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for _, membership := range application.Memberships {
		_, err := tx.Exec(ctx, insertMembershipQuery,
			membership.UserID,
			membership.ApplicationID,
			membership.RoleID,
			membership.IsActive,
			membership.AssignedAt,
			membership.AssignedBy,
			membership.LastAccessedAt,
		)
		if err != nil {
			return dberr.Wrap(err, "User is already a member of this application")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres_application_repo_save_commit_failed: %w", err)
	}
	return nil
}

// TouchMembership stamps a membership's last-accessed time in place.
func (repository *PostgresApplicationRepository) TouchMembership(ctx context.Context, applicationID, userID string, at time.Time) error {
	const query = `
		UPDATE identity.user_application
		SET lastaccessedat = $3
		WHERE applicationid = $1 AND userid = $2`

	_, err := repository.pool.Exec(ctx, query, applicationID, userID, at)
	if err != nil {
		return fmt.Errorf("postgres_application_repo_touch_failed: %w", err)
	}
	return nil
}
