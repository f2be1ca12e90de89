package authroles

import (
	domainauth "github.com/siprak/portal/internal/domain/auth"
	"github.com/siprak/portal/internal/ports"
)

var _ ports.RouteMapper = RouteTable{}

// Default landing routes.
const (
	DefaultLoginRoute    = "/login"
	DefaultFallbackRoute = "/dashboard"
)

// RouteTable maps the primary role of a snapshot to its landing route.
// A primary role without an entry, and a snapshot without active roles, land on Fallback.
type RouteTable struct {
	Routes   map[domainauth.RoleCode]string
	Fallback string
}

// DefaultRouteTable returns the stock landing routes.
func DefaultRouteTable() RouteTable {
	return RouteTable{
		Routes: map[domainauth.RoleCode]string{
			domainauth.RoleAdmin:    "/admin",
			domainauth.RoleLecturer: "/dosen",
			domainauth.RoleStudent:  "/mahasiswa",
			domainauth.RoleLabStaff: "/laboran",
		},
		Fallback: DefaultFallbackRoute,
	}
}

// Map routes by the first held role in precedence order. Lower roles are never consulted.
func (t RouteTable) Map(snap domainauth.Snapshot) string {
	for _, code := range domainauth.RolePrecedence {
		if !snap.HasRole(code) {
			continue
		}
		if route := t.Routes[code]; route != "" {
			return route
		}
		break
	}
	return t.fallback()
}

func (t RouteTable) fallback() string {
	if t.Fallback == "" {
		return DefaultFallbackRoute
	}
	return t.Fallback
}
