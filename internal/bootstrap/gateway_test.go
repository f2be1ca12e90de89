package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/siprak/portal/config"
	"github.com/siprak/portal/internal/adapters/devauth"
	domainauth "github.com/siprak/portal/internal/domain/auth"
)

func defaultRouteConfig() config.RouteConfig {
	return config.RouteConfig{
		Admin:    "/admin",
		Lecturer: "/dosen",
		Student:  "/mahasiswa",
		LabStaff: "/laboran",
		Fallback: "/dashboard",
	}
}

func TestBuildGateway_Mock(t *testing.T) {
	gw, err := BuildGateway(context.Background(), GatewayDeps{
		Auth: config.AuthConfig{
			Mode: config.AuthModeMock,
			DevAuth: config.DevAuthConfig{
				UserID: "00000000-0000-4000-8000-000000000001",
				Email:  "dev@siprak.local",
			},
		},
	})
	require.NoError(t, err)
	assert.IsType(t, &devauth.Gateway{}, gw)
}

func TestBuildGateway_Errors(t *testing.T) {
	tests := []struct {
		name string
		auth config.AuthConfig
	}{
		{name: "local without database", auth: config.AuthConfig{Mode: config.AuthModeLocal}},
		{name: "mock with bad user id", auth: config.AuthConfig{
			Mode:    config.AuthModeMock,
			DevAuth: config.DevAuthConfig{UserID: "dev", Email: "dev@siprak.local"},
		}},
		{name: "oidc without client", auth: config.AuthConfig{Mode: config.AuthModeOIDC}},
		{name: "unknown mode", auth: config.AuthConfig{Mode: "saml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildGateway(context.Background(), GatewayDeps{Auth: tt.auth})
			assert.Error(t, err)
		})
	}
}

func TestRouteTable(t *testing.T) {
	cfg := defaultRouteConfig()
	cfg.LabStaff = "/lab"
	cfg.Admin = ""
	cfg.Fallback = "/beranda"

	table := RouteTable(cfg)

	assert.Equal(t, "/lab", table.Routes[domainauth.RoleLabStaff])
	assert.Equal(t, "/admin", table.Routes[domainauth.RoleAdmin], "empty override keeps the default")
	assert.Equal(t, "/beranda", table.Fallback)
}
