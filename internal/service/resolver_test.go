package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/siprak/portal/internal/data"
	domainauth "github.com/siprak/portal/internal/domain/auth"
	apperrors "github.com/siprak/portal/internal/errors"
	"github.com/siprak/portal/internal/mocks"
	"go.uber.org/mock/gomock"
)

const testSubject = "7a4b6a39-3f0e-4d8a-9a55-0c1d9d0c5b11"

type resolverMocks struct {
	profiles    *mocks.MockProfileRepository
	roles       *mocks.MockRoleRepository
	permissions *mocks.MockPermissionRepository
}

func newTestResolver(t *testing.T) (*Resolver, resolverMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := resolverMocks{
		profiles:    mocks.NewMockProfileRepository(ctrl),
		roles:       mocks.NewMockRoleRepository(ctrl),
		permissions: mocks.NewMockPermissionRepository(ctrl),
	}
	r, err := NewResolver(ResolverOptions{Profiles: m.profiles, Roles: m.roles, Permissions: m.permissions})
	require.NoError(t, err)
	return r, m
}

func testProfile(id string) *domainauth.Profile {
	return &domainauth.Profile{ID: id, Email: "mhs@kampus.ac.id", FullName: "Siti Mahasiswa", Active: true}
}

func testRole(id string, code domainauth.RoleCode, active bool) *domainauth.Role {
	return &domainauth.Role{ID: id, Code: code, Name: string(code), Active: active}
}

func TestNewResolver_RequiresRepositories(t *testing.T) {
	_, err := NewResolver(ResolverOptions{})
	assert.Error(t, err)
}

func TestResolver_Resolve_Student(t *testing.T) {
	r, m := newTestResolver(t)
	ctx := context.Background()

	m.profiles.EXPECT().GetByID(gomock.Any(), testSubject).Return(testProfile(testSubject), nil)
	m.roles.EXPECT().ListActiveAssignments(gomock.Any(), testSubject).Return([]domainauth.RoleAssignment{
		{ID: "a1", RoleID: "r-student", Role: testRole("r-student", domainauth.RoleStudent, true)},
	}, nil)
	m.permissions.EXPECT().ListCodesByRoleIDs(gomock.Any(), []string{"r-student"}).Return([]domainauth.PermissionGrant{
		{RoleID: "r-student", Code: "view_schedule"},
		{RoleID: "r-student", Code: "submit_report"},
	}, nil)

	snap, err := r.Resolve(ctx, testSubject)
	require.NoError(t, err)
	assert.Equal(t, testSubject, snap.SubjectID())
	assert.Equal(t, "mhs@kampus.ac.id", snap.Email())
	assert.True(t, snap.HasRole(domainauth.RoleStudent))
	assert.Equal(t, []string{"submit_report", "view_schedule"}, snap.Permissions())
	assert.False(t, snap.HasPermission("manage_users"))
}

func TestResolver_Resolve_NoRolesSkipsPermissionQuery(t *testing.T) {
	r, m := newTestResolver(t)

	m.profiles.EXPECT().GetByID(gomock.Any(), testSubject).Return(testProfile(testSubject), nil)
	m.roles.EXPECT().ListActiveAssignments(gomock.Any(), testSubject).Return(nil, nil)
	// No ListCodesByRoleIDs expectation: gomock fails the test if it is called.

	snap, err := r.Resolve(context.Background(), testSubject)
	require.NoError(t, err)
	assert.Empty(t, snap.Roles())
	assert.Empty(t, snap.Permissions())
}

func TestResolver_Resolve_InactiveRoleGrantsNothing(t *testing.T) {
	r, m := newTestResolver(t)

	m.profiles.EXPECT().GetByID(gomock.Any(), testSubject).Return(testProfile(testSubject), nil)
	m.roles.EXPECT().ListActiveAssignments(gomock.Any(), testSubject).Return([]domainauth.RoleAssignment{
		{ID: "a1", RoleID: "r-lab", Role: testRole("r-lab", domainauth.RoleLabStaff, false)},
		{ID: "a2", RoleID: "r-lect", Role: testRole("r-lect", domainauth.RoleLecturer, true)},
	}, nil)
	m.permissions.EXPECT().ListCodesByRoleIDs(gomock.Any(), []string{"r-lect"}).Return([]domainauth.PermissionGrant{
		{RoleID: "r-lect", Code: "grade_reports"},
	}, nil)

	snap, err := r.Resolve(context.Background(), testSubject)
	require.NoError(t, err)
	assert.Len(t, snap.Roles(), 2)
	assert.False(t, snap.HasRole(domainauth.RoleLabStaff))
	assert.True(t, snap.HasRole(domainauth.RoleLecturer))
	assert.Equal(t, []string{"grade_reports"}, snap.Permissions())
}

func TestResolver_Resolve_DropsDanglingAndDuplicateAssignments(t *testing.T) {
	r, m := newTestResolver(t)

	student := testRole("r-student", domainauth.RoleStudent, true)
	m.profiles.EXPECT().GetByID(gomock.Any(), testSubject).Return(testProfile(testSubject), nil)
	m.roles.EXPECT().ListActiveAssignments(gomock.Any(), testSubject).Return([]domainauth.RoleAssignment{
		{ID: "a1", RoleID: "r-gone", Role: nil},
		{ID: "a2", RoleID: "r-student", Role: student},
		{ID: "a3", RoleID: "r-student", Role: student},
	}, nil)
	m.permissions.EXPECT().ListCodesByRoleIDs(gomock.Any(), []string{"r-student"}).Return(nil, nil)

	snap, err := r.Resolve(context.Background(), testSubject)
	require.NoError(t, err)
	require.Len(t, snap.Roles(), 1)
	assert.Equal(t, domainauth.RoleStudent, snap.Roles()[0].Code)
}

func TestResolver_Resolve_ProfileNotFound(t *testing.T) {
	tests := []struct {
		name    string
		profile *domainauth.Profile
		err     error
	}{
		{name: "sentinel", err: data.ErrProfileNotFound},
		{name: "wrapped sentinel", err: errors.Join(errors.New("select"), data.ErrProfileNotFound)},
		{name: "nil profile"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, m := newTestResolver(t)
			m.profiles.EXPECT().GetByID(gomock.Any(), testSubject).Return(tt.profile, tt.err)
			m.roles.EXPECT().ListActiveAssignments(gomock.Any(), testSubject).Return(nil, nil).AnyTimes()

			_, err := r.Resolve(context.Background(), testSubject)
			require.Error(t, err)
			assert.True(t, apperrors.IsProfileNotFound(err), "got %v", err)
		})
	}
}

func TestResolver_Resolve_ReadFailures(t *testing.T) {
	boom := errors.New("connection reset")

	t.Run("profile", func(t *testing.T) {
		r, m := newTestResolver(t)
		m.profiles.EXPECT().GetByID(gomock.Any(), testSubject).Return(nil, boom)
		m.roles.EXPECT().ListActiveAssignments(gomock.Any(), testSubject).Return(nil, nil).AnyTimes()

		_, err := r.Resolve(context.Background(), testSubject)
		require.Error(t, err)
		assert.True(t, apperrors.IsResolution(err))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, "failed to load user profile", apperrors.Message(err, ""))
	})

	t.Run("roles", func(t *testing.T) {
		r, m := newTestResolver(t)
		m.profiles.EXPECT().GetByID(gomock.Any(), testSubject).Return(testProfile(testSubject), nil).AnyTimes()
		m.roles.EXPECT().ListActiveAssignments(gomock.Any(), testSubject).Return(nil, boom)

		_, err := r.Resolve(context.Background(), testSubject)
		require.Error(t, err)
		assert.True(t, apperrors.IsResolution(err))
		assert.Equal(t, "failed to load user roles", apperrors.Message(err, ""))
	})

	t.Run("permissions", func(t *testing.T) {
		r, m := newTestResolver(t)
		m.profiles.EXPECT().GetByID(gomock.Any(), testSubject).Return(testProfile(testSubject), nil)
		m.roles.EXPECT().ListActiveAssignments(gomock.Any(), testSubject).Return([]domainauth.RoleAssignment{
			{ID: "a1", RoleID: "r-admin", Role: testRole("r-admin", domainauth.RoleAdmin, true)},
		}, nil)
		m.permissions.EXPECT().ListCodesByRoleIDs(gomock.Any(), gomock.Any()).Return(nil, boom)

		_, err := r.Resolve(context.Background(), testSubject)
		require.Error(t, err)
		assert.True(t, apperrors.IsResolution(err))
		assert.Equal(t, "failed to load permissions", apperrors.Message(err, ""))
	})
}

func TestResolver_Resolve_EmptySubject(t *testing.T) {
	r, _ := newTestResolver(t)
	_, err := r.Resolve(context.Background(), "  ")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}
