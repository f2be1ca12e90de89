package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/siprak/portal/config"
	"github.com/siprak/portal/internal/adapters/authroles"
	"github.com/siprak/portal/internal/adapters/console"
	"github.com/siprak/portal/internal/adapters/devauth"
	"github.com/siprak/portal/internal/adapters/localauth"
	"github.com/siprak/portal/internal/adapters/oidc"
	redisadapter "github.com/siprak/portal/internal/adapters/redis"
	"github.com/siprak/portal/internal/data"
	domainauth "github.com/siprak/portal/internal/domain/auth"
	"github.com/siprak/portal/internal/ports"
)

// GatewayDeps contains what the credential gateways may need.
type GatewayDeps struct {
	Auth        config.AuthConfig
	RedisConfig config.RedisConfig
	DB          *sql.DB               // local mode: credential table
	RedisClient redis.UniversalClient // local mode: session store
	Logger      *slog.Logger
}

// BuildGateway creates the credential gateway for the configured auth mode.
//
//nolint:ireturn // the concrete gateway is selected at runtime.
func BuildGateway(ctx context.Context, deps GatewayDeps) (ports.CredentialGateway, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch deps.Auth.Mode {
	case config.AuthModeLocal:
		return buildLocalGateway(deps, logger)
	case config.AuthModeOIDC:
		gw, err := oidc.NewGateway(ctx, oidc.ProviderConfig{
			ClientID:     deps.Auth.OAuth.ClientID,
			ClientSecret: deps.Auth.OAuth.ClientSecret,
			Scope:        deps.Auth.OAuth.Scope,
			DiscoveryURL: deps.Auth.OAuth.DiscoveryURL,
			SubjectClaim: deps.Auth.OAuth.SubjectClaim,
			EmailClaim:   deps.Auth.OAuth.EmailClaim,
			Logger:       logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build oidc gateway: %w", err)
		}
		return gw, nil
	case config.AuthModeMock:
		logger.Warn("dev auth mode enabled; only the configured identity can sign in",
			"user_id", deps.Auth.DevAuth.UserID, "email", deps.Auth.DevAuth.Email)
		gw, err := devauth.NewGateway(devauth.Config{
			UserID:   deps.Auth.DevAuth.UserID,
			Email:    deps.Auth.DevAuth.Email,
			Password: deps.Auth.DevAuth.Password,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build dev gateway: %w", err)
		}
		return gw, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", deps.Auth.Mode)
	}
}

func buildLocalGateway(deps GatewayDeps, logger *slog.Logger) (*localauth.Gateway, error) {
	if deps.DB == nil {
		return nil, errors.New("local auth requires a database")
	}
	if deps.RedisClient == nil {
		return nil, errors.New("local auth requires redis for sessions")
	}
	sessions := redisadapter.NewSessionStoreWithPrefix(deps.RedisClient, deps.RedisConfig.SessionPrefix)
	gw, err := localauth.NewGateway(
		data.NewCredentialRepo(deps.DB),
		sessions,
		console.NewResetLogger(logger),
		localauth.Config{
			Secret:     []byte(deps.Auth.Local.JWTSecret),
			Issuer:     deps.Auth.Local.Issuer,
			SessionTTL: deps.Auth.Local.SessionTTL,
			ResetTTL:   deps.Auth.Local.ResetTTL,
			BcryptCost: deps.Auth.Local.BcryptCost,
			Logger:     logger,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("build local gateway: %w", err)
	}
	return gw, nil
}

// RouteTable builds the landing route table from configuration.
func RouteTable(cfg config.RouteConfig) authroles.RouteTable {
	table := authroles.DefaultRouteTable()
	set := func(code domainauth.RoleCode, route string) {
		if route != "" {
			table.Routes[code] = route
		}
	}
	set(domainauth.RoleAdmin, cfg.Admin)
	set(domainauth.RoleLecturer, cfg.Lecturer)
	set(domainauth.RoleStudent, cfg.Student)
	set(domainauth.RoleLabStaff, cfg.LabStaff)
	if cfg.Fallback != "" {
		table.Fallback = cfg.Fallback
	}
	return table
}
