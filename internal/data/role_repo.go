package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/siprak/portal/internal/data/pgxutil"
	domainauth "github.com/siprak/portal/internal/domain/auth"
)

const roleColumns = `id, role_code, role_name, description, is_active, created_at`

const (
	roleGetByCodeQuery = `SELECT ` + roleColumns + ` FROM roles WHERE role_code = $1`

	// LEFT JOIN keeps assignments whose role definition is gone so callers can see them.
	roleActiveAssignmentsQuery = `
		SELECT ur.id, ur.role_id,
		       r.id, r.role_code, r.role_name, r.description, r.is_active, r.created_at
		FROM user_roles ur
		LEFT JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1 AND ur.is_active
		ORDER BY ur.assigned_at, ur.id`

	permissionGrantsQuery = `
		SELECT rp.role_id, p.permission_code
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = ANY($1::uuid[])
		ORDER BY p.permission_code`
)

// RoleRepo provides database operations for roles and user_roles.
type RoleRepo struct {
	DB *sql.DB
}

// NewRoleRepo creates a new RoleRepo.
func NewRoleRepo(db *sql.DB) *RoleRepo {
	return &RoleRepo{DB: db}
}

// ListActiveAssignments returns the subject's active assignments with their role definitions.
func (r *RoleRepo) ListActiveAssignments(ctx context.Context, subjectID string) ([]domainauth.RoleAssignment, error) {
	var out []domainauth.RoleAssignment
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, roleActiveAssignmentsQuery, subjectID)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, scanAssignment)
		return err
	})
	if isInvalidUUID(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list role assignments: %w", err)
	}
	return out, nil
}

func scanAssignment(row pgx.CollectableRow) (domainauth.RoleAssignment, error) {
	var (
		a           domainauth.RoleAssignment
		roleRef     *string
		id          *string
		code        *string
		name        *string
		description *string
		active      *bool
		createdAt   *time.Time
	)
	if err := row.Scan(&a.ID, &roleRef, &id, &code, &name, &description, &active, &createdAt); err != nil {
		return a, err
	}
	if roleRef != nil {
		a.RoleID = *roleRef
	}
	if id == nil {
		return a, nil
	}
	a.Role = &domainauth.Role{
		ID:          *id,
		Code:        domainauth.RoleCode(deref(code)),
		Name:        deref(name),
		Description: description,
		Active:      active != nil && *active,
	}
	if createdAt != nil {
		a.Role.CreatedAt = *createdAt
	}
	return a, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// GetByCode retrieves a role definition by its code.
func (r *RoleRepo) GetByCode(ctx context.Context, code domainauth.RoleCode) (*domainauth.Role, error) {
	var out domainauth.Role
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, roleGetByCodeQuery, string(code))
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.Role])
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role by code: %w", err)
	}
	return &out, nil
}

// Assign creates an active assignment of roleID to subjectID. Re-activates an inactive one.
func (r *RoleRepo) Assign(ctx context.Context, subjectID, roleID string) error {
	if strings.TrimSpace(subjectID) == "" {
		return ErrSubjectIDRequired
	}
	err := pgxutil.WithPgxTx(ctx, r.DB, func(tx pgx.Tx) error {
		var existingID string
		var active bool
		err := tx.QueryRow(ctx,
			`SELECT id, is_active FROM user_roles WHERE user_id = $1 AND role_id = $2 FOR UPDATE`,
			subjectID, roleID,
		).Scan(&existingID, &active)
		switch {
		case err == nil && active:
			return ErrRoleAlreadyHeld
		case err == nil:
			_, err = tx.Exec(ctx,
				`UPDATE user_roles SET is_active = TRUE, assigned_at = now() WHERE id = $1`, existingID)
			return err
		case errors.Is(err, pgx.ErrNoRows):
			_, err = tx.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)`, subjectID, roleID)
			return err
		default:
			return err
		}
	})
	if errors.Is(err, ErrRoleAlreadyHeld) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

// PermissionRepo reads role-permission grants.
type PermissionRepo struct {
	DB *sql.DB
}

// NewPermissionRepo creates a new PermissionRepo.
func NewPermissionRepo(db *sql.DB) *PermissionRepo {
	return &PermissionRepo{DB: db}
}

// ListCodesByRoleIDs loads the grants of all given roles in one query.
func (r *PermissionRepo) ListCodesByRoleIDs(ctx context.Context, roleIDs []string) ([]domainauth.PermissionGrant, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	var out []domainauth.PermissionGrant
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, permissionGrantsQuery, roleIDs)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[domainauth.PermissionGrant])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list permission grants: %w", err)
	}
	return out, nil
}
