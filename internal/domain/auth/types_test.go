package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProfile() *Profile {
	return &Profile{ID: "u-1", Email: "a@x.com", FullName: "A", Active: true}
}

func TestNewSnapshot_StudentScenario(t *testing.T) {
	student, err := NewRole("r-student", RoleStudent, "Mahasiswa", true)
	require.NoError(t, err)

	snap, err := NewSnapshot(SnapshotInput{
		SubjectID: "u-1",
		Profile:   testProfile(),
		Roles:     []Role{student},
		Grants: []PermissionGrant{
			{RoleID: "r-student", Code: "course.read"},
			{RoleID: "r-student", Code: "quiz.read"},
			{RoleID: "r-student", Code: "course.read"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"course.read", "quiz.read"}, snap.Permissions())
	assert.True(t, snap.HasRole(RoleStudent))
	assert.False(t, snap.HasRole(RoleAdmin))
	assert.Equal(t, "a@x.com", snap.Email())
}

func TestNewSnapshot_NoRolesMeansNoPermissions(t *testing.T) {
	snap, err := NewSnapshot(SnapshotInput{SubjectID: "u-1", Profile: testProfile()})
	require.NoError(t, err)

	assert.Empty(t, snap.Permissions())
	for _, code := range RolePrecedence {
		assert.False(t, snap.HasRole(code))
	}
	_, ok := snap.PrimaryRole()
	assert.False(t, ok)
}

func TestNewSnapshot_InactiveRoleGrantsNothing(t *testing.T) {
	lecturer := Role{ID: "r-lect", Code: RoleLecturer, Active: true}
	staff := Role{ID: "r-staff", Code: RoleLabStaff, Active: false}

	snap, err := NewSnapshot(SnapshotInput{
		SubjectID: "u-1",
		Profile:   testProfile(),
		Roles:     []Role{lecturer, staff},
		Grants: []PermissionGrant{
			{RoleID: "r-lect", Code: "quiz.create"},
			{RoleID: "r-staff", Code: "inventory.update"},
			{RoleID: "r-staff", Code: "quiz.create"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"quiz.create"}, snap.Permissions())
	assert.False(t, snap.HasPermission("inventory.update"))
	assert.False(t, snap.HasRole(RoleLabStaff))
}

func TestNewSnapshot_RequiresProfile(t *testing.T) {
	_, err := NewSnapshot(SnapshotInput{SubjectID: "u-1"})
	require.Error(t, err)

	_, err = NewSnapshot(SnapshotInput{Profile: testProfile()})
	require.Error(t, err)
}

func TestSnapshot_RolesAreCopied(t *testing.T) {
	snap, err := NewSnapshot(SnapshotInput{
		SubjectID: "u-1",
		Profile:   testProfile(),
		Roles:     []Role{{ID: "r-1", Code: RoleAdmin, Active: true}},
	})
	require.NoError(t, err)

	roles := snap.Roles()
	roles[0].Code = RoleStudent
	assert.True(t, snap.HasRole(RoleAdmin))
}

func TestSnapshot_PrimaryRolePrecedence(t *testing.T) {
	snap, err := NewSnapshot(SnapshotInput{
		SubjectID: "u-1",
		Profile:   testProfile(),
		Roles: []Role{
			{ID: "r-3", Code: RoleLabStaff, Active: true},
			{ID: "r-2", Code: RoleStudent, Active: true},
			{ID: "r-1", Code: RoleLecturer, Active: true},
		},
	})
	require.NoError(t, err)

	code, ok := snap.PrimaryRole()
	require.True(t, ok)
	assert.Equal(t, RoleLecturer, code)
}

func TestParseRoleCode(t *testing.T) {
	code, ok := ParseRoleCode(" lab_staff ")
	assert.True(t, ok)
	assert.Equal(t, RoleLabStaff, code)

	_, ok = ParseRoleCode("DOSEN")
	assert.False(t, ok)

	var c RoleCode
	require.NoError(t, c.UnmarshalText([]byte("admin")))
	assert.Equal(t, RoleAdmin, c)
	require.Error(t, c.UnmarshalText([]byte("root")))
}

func TestNewRole_Validation(t *testing.T) {
	_, err := NewRole("", RoleAdmin, "Admin", true)
	require.Error(t, err)
	_, err = NewRole("r", RoleCode("ROOT"), "Root", true)
	require.Error(t, err)
}

func TestCredentials_Validate(t *testing.T) {
	require.NoError(t, Credentials{Email: "a@x.com", Password: "pw"}.Validate())
	require.Error(t, Credentials{Email: "not-an-email", Password: "pw"}.Validate())
	require.Error(t, Credentials{Email: "a@x.com"}.Validate())
	require.NoError(t, Credentials{Email: " mhs@kampus.ac.id ", Password: "pw"}.Validate())
	require.Error(t, Credentials{Email: "Siti <mhs@kampus.ac.id>", Password: "pw"}.Validate())
	require.Error(t, Credentials{Email: "mhs@kampus_lab.ac.id", Password: "pw"}.Validate())
}

func TestRegisterData_Validate(t *testing.T) {
	ok := RegisterData{
		Credentials: Credentials{Email: "a@x.com", Password: "pw"},
		FullName:    "A",
		Role:        RoleStudent,
	}
	require.NoError(t, ok.Validate())

	missingName := ok
	missingName.FullName = " "
	require.Error(t, missingName.Validate())

	badRole := ok
	badRole.Role = "DOSEN"
	require.Error(t, badRole.Validate())
}

func TestProfilePatch_Validate(t *testing.T) {
	require.Error(t, ProfilePatch{}.Validate())

	blank := ""
	require.Error(t, ProfilePatch{FullName: &blank}.Validate())

	phone := "0812"
	require.NoError(t, ProfilePatch{Phone: &phone}.Validate())
}

func TestSessionState_Variants(t *testing.T) {
	assert.False(t, Anonymous().IsAuthenticated())
	assert.False(t, Loading().IsAuthenticated())
	assert.Equal(t, "", Loading().SubjectID())

	snap, err := NewSnapshot(SnapshotInput{SubjectID: "u-1", Profile: testProfile()})
	require.NoError(t, err)
	st := Authenticated(snap).WithError("boom")
	assert.True(t, st.IsAuthenticated())
	assert.Equal(t, "u-1", st.SubjectID())
	assert.Equal(t, "boom", st.Error)

	e := Errored("authentication error")
	assert.Equal(t, StateErrored, e.Kind)
	assert.Equal(t, "errored", e.Kind.String())
}
