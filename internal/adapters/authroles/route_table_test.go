package authroles

import (
	"testing"

	domainauth "github.com/siprak/portal/internal/domain/auth"
)

func snapshotWith(t *testing.T, roles ...domainauth.Role) domainauth.Snapshot {
	t.Helper()
	snap, err := domainauth.NewSnapshot(domainauth.SnapshotInput{
		SubjectID: "u-1",
		Profile:   &domainauth.Profile{ID: "u-1", Email: "a@kampus.ac.id", FullName: "A", Active: true},
		Roles:     roles,
	})
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	return snap
}

func TestRouteTable_Map(t *testing.T) {
	table := DefaultRouteTable()
	role := func(id string, code domainauth.RoleCode, active bool) domainauth.Role {
		return domainauth.Role{ID: id, Code: code, Active: active}
	}

	tests := []struct {
		name  string
		roles []domainauth.Role
		want  string
	}{
		{"student", []domainauth.Role{role("r1", domainauth.RoleStudent, true)}, "/mahasiswa"},
		{"admin beats lecturer", []domainauth.Role{role("r1", domainauth.RoleLecturer, true), role("r2", domainauth.RoleAdmin, true)}, "/admin"},
		{"student beats lab staff", []domainauth.Role{role("r1", domainauth.RoleLabStaff, true), role("r2", domainauth.RoleStudent, true)}, "/mahasiswa"},
		{"inactive role ignored", []domainauth.Role{role("r1", domainauth.RoleAdmin, false), role("r2", domainauth.RoleLabStaff, true)}, "/laboran"},
		{"no roles", nil, DefaultFallbackRoute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := table.Map(snapshotWith(t, tt.roles...)); got != tt.want {
				t.Errorf("Map() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRouteTable_MissingPrimaryEntryUsesFallback(t *testing.T) {
	table := RouteTable{
		Routes:   map[domainauth.RoleCode]string{domainauth.RoleStudent: "/mhs"},
		Fallback: "/beranda",
	}
	snap := snapshotWith(t,
		domainauth.Role{ID: "r1", Code: domainauth.RoleLecturer, Active: true},
		domainauth.Role{ID: "r2", Code: domainauth.RoleStudent, Active: true},
	)
	if got := table.Map(snap); got != "/beranda" {
		t.Errorf("Map() = %q, want /beranda", got)
	}

	admin := DefaultRouteTable()
	delete(admin.Routes, domainauth.RoleAdmin)
	adminAndLecturer := snapshotWith(t,
		domainauth.Role{ID: "r1", Code: domainauth.RoleAdmin, Active: true},
		domainauth.Role{ID: "r2", Code: domainauth.RoleLecturer, Active: true},
	)
	if got := admin.Map(adminAndLecturer); got != DefaultFallbackRoute {
		t.Errorf("admin without route Map() = %q, want %q", got, DefaultFallbackRoute)
	}

	if got := (RouteTable{}).Map(snap); got != DefaultFallbackRoute {
		t.Errorf("empty table Map() = %q, want %q", got, DefaultFallbackRoute)
	}
}
