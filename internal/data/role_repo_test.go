package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/siprak/portal/internal/domain/auth"
	"github.com/siprak/portal/internal/testutil"
)

func TestRoleRepo_AssignmentsAndGrants(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()
		roles := NewRoleRepo(db)
		perms := NewPermissionRepo(db)

		subject := testutil.SeedSubject(t, db, testutil.SubjectFixture{
			Roles: []string{"STUDENT"},
			Permissions: map[string][]string{
				"STUDENT":  {"course.read", "quiz.read"},
				"LECTURER": {"quiz.create"},
			},
		})

		assignments, err := roles.ListActiveAssignments(ctx, subject)
		require.NoError(t, err)
		require.Len(t, assignments, 1)
		require.NotNil(t, assignments[0].Role)
		assert.Equal(t, domainauth.RoleStudent, assignments[0].Role.Code)
		assert.True(t, assignments[0].Role.Active)

		grants, err := perms.ListCodesByRoleIDs(ctx, []string{assignments[0].RoleID})
		require.NoError(t, err)
		codes := make([]string, 0, len(grants))
		for _, g := range grants {
			codes = append(codes, g.Code)
		}
		assert.Equal(t, []string{"course.read", "quiz.read"}, codes)

		lecturer, err := roles.GetByCode(ctx, domainauth.RoleLecturer)
		require.NoError(t, err)
		require.NoError(t, roles.Assign(ctx, subject, lecturer.ID))
		require.ErrorIs(t, roles.Assign(ctx, subject, lecturer.ID), ErrRoleAlreadyHeld)

		assignments, err = roles.ListActiveAssignments(ctx, subject)
		require.NoError(t, err)
		assert.Len(t, assignments, 2)
	})
}

func TestRoleRepo_DanglingAssignmentHasNilRole(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewRoleRepo(db)
		subject := testutil.SeedSubject(t, db, testutil.SubjectFixture{})

		_, err := db.ExecContext(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, NULL)`, subject)
		require.NoError(t, err)

		assignments, err := repo.ListActiveAssignments(ctx, subject)
		require.NoError(t, err)
		require.Len(t, assignments, 1)
		assert.Nil(t, assignments[0].Role)
	})
}

func TestRoleRepo_GetByCodeMissing(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		_, err := NewRoleRepo(db).GetByCode(context.Background(), domainauth.RoleCode("DEAN"))
		require.ErrorIs(t, err, ErrRoleNotFound)
	})
}

func TestPermissionRepo_EmptyRoleIDs(t *testing.T) {
	grants, err := NewPermissionRepo(nil).ListCodesByRoleIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, grants)
}
