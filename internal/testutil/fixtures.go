package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubjectFixture describes a subject seeded straight into the portal tables.
type SubjectFixture struct {
	Email       string
	FullName    string
	Roles       []string            // role codes assigned as active
	Permissions map[string][]string // role code -> permission codes granted to that role
}

// SeedSubject inserts a profile, its role assignments and the given grants.
// Returns the new subject id.
func SeedSubject(t TestingTB, db *sql.DB, f SubjectFixture) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id := uuid.NewString()
	if f.Email == "" {
		f.Email = fmt.Sprintf("%s@example.test", id[:8])
	}
	if f.FullName == "" {
		f.FullName = "Test Subject"
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO users_profile (id, email, full_name) VALUES ($1, $2, $3)`,
		id, f.Email, f.FullName,
	); err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	for _, code := range f.Roles {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO user_roles (user_id, role_id)
			SELECT $1, id FROM roles WHERE role_code = $2`, id, code,
		); err != nil {
			t.Fatalf("seed role %s: %v", code, err)
		}
	}

	for code, perms := range f.Permissions {
		for _, perm := range perms {
			GrantPermission(t, db, code, perm)
		}
	}
	return id
}

// GrantPermission grants permission code perm to the role with roleCode, creating the permission if needed.
func GrantPermission(t TestingTB, db *sql.DB, roleCode, perm string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, `
		INSERT INTO permissions (permission_name, permission_code)
		VALUES ($1, $1)
		ON CONFLICT (permission_code) DO NOTHING`, perm,
	); err != nil {
		t.Fatalf("seed permission %s: %v", perm, err)
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO role_permissions (role_id, permission_id)
		SELECT r.id, p.id FROM roles r, permissions p
		WHERE r.role_code = $1 AND p.permission_code = $2
		ON CONFLICT DO NOTHING`, roleCode, perm,
	); err != nil {
		t.Fatalf("grant %s to %s: %v", perm, roleCode, err)
	}
}

// SetRoleActive toggles a role definition's active flag.
func SetRoleActive(t TestingTB, db *sql.DB, roleCode string, active bool) {
	t.Helper()
	if _, err := db.ExecContext(context.Background(),
		`UPDATE roles SET is_active = $2 WHERE role_code = $1`, roleCode, active,
	); err != nil {
		t.Fatalf("set role %s active=%v: %v", roleCode, active, err)
	}
}
