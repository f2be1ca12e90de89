package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/siprak/portal/internal/adapters/console"
	"github.com/siprak/portal/internal/bootstrap"
	domainauth "github.com/siprak/portal/internal/domain/auth"
	"github.com/siprak/portal/internal/observability/statsd"
)

const defaultMigrationTimeout = 5 * time.Minute

// passwordEnv lets scripts avoid passing passwords on the command line.
const passwordEnv = "PORTAL_PASSWORD"

// session is an opened portal plus the connections backing it.
type session struct {
	*bootstrap.Portal

	db      *sql.DB
	redis   redis.UniversalClient
	metrics *statsd.Client
}

func (s *session) shutdown(cmdCtx *commandContext) {
	s.Portal.Close()
	if s.metrics != nil {
		if err := s.metrics.Close(); err != nil {
			cmdCtx.Logger.Warn("statsd close failed", "error", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", err)
		}
	}
	if err := s.db.Close(); err != nil {
		cmdCtx.Logger.Warn("db close failed", "error", err)
	}
}

// connectInfra opens Postgres, and Redis when the configuration needs it.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func connectInfra(cmdCtx *commandContext) (*sql.DB, redis.UniversalClient, error) {
	deps := bootstrap.DatabaseConfig{
		DBConfig:    cmdCtx.Config.Postgres,
		RedisConfig: cmdCtx.Config.Redis,
		Logger:      cmdCtx.Logger,
	}
	db, err := bootstrap.ConnectDB(deps)
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}
	if !cmdCtx.Config.NeedsRedis() {
		return db, nil, nil
	}
	client, err := bootstrap.ConnectRedis(deps)
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close database: %w", cerr))
		}
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return db, client, nil
}

// openSession connects infrastructure, builds the portal and restores any session.
func openSession(cmdCtx *commandContext) (*session, error) {
	db, client, err := connectInfra(cmdCtx)
	if err != nil {
		return nil, err
	}
	s := &session{
		db:      db,
		redis:   client,
		metrics: bootstrap.BuildMetrics(cmdCtx.Config.Observability.Metrics, cmdCtx.Config.Auth.Mode, cmdCtx.Logger),
	}
	var sink statsd.Sink
	if s.metrics != nil {
		sink = s.metrics
	}

	portal, err := bootstrap.BuildPortal(cmdCtx.Ctx, bootstrap.PortalDeps{
		Config:      &cmdCtx.Config,
		DB:          db,
		RedisClient: client,
		Navigator:   console.NewNavigator(cmdCtx.Out),
		Alerter:     console.NewAlerter(cmdCtx.Out),
		Metrics:     sink,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		s.closeInfra(cmdCtx)
		return nil, err
	}
	s.Portal = portal
	if err := portal.Start(cmdCtx.Ctx); err != nil {
		s.shutdown(cmdCtx)
		return nil, fmt.Errorf("initialize session: %w", err)
	}
	return s, nil
}

func (s *session) closeInfra(cmdCtx *commandContext) {
	if s.metrics != nil {
		_ = s.metrics.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if err := s.db.Close(); err != nil {
		cmdCtx.Logger.Warn("db close failed", "error", err)
	}
}

// credentialFlags registers --email and --password on fs.
type credentialFlags struct {
	email    *string
	password *string
}

func addCredentialFlags(fs *flag.FlagSet) credentialFlags {
	return credentialFlags{
		email:    fs.String("email", "", "Account email"),
		password: fs.String("password", "", "Account password (or set "+passwordEnv+")"),
	}
}

func (c credentialFlags) credentials() (domainauth.Credentials, error) {
	password := *c.password
	if password == "" {
		password = os.Getenv(passwordEnv)
	}
	creds := domainauth.Credentials{Email: strings.TrimSpace(*c.email), Password: password}
	if creds.Email == "" {
		return creds, errors.New("--email is required")
	}
	return creds, nil
}

// signedIn opens a session and signs in with the parsed credentials.
func signedIn(cmdCtx *commandContext, creds credentialFlags) (*session, error) {
	c, err := creds.credentials()
	if err != nil {
		return nil, err
	}
	s, err := openSession(cmdCtx)
	if err != nil {
		return nil, err
	}
	if err := s.Session.Login(cmdCtx.Ctx, c); err != nil {
		s.shutdown(cmdCtx)
		return nil, err
	}
	return s, nil
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	timeout := fs.Duration("timeout", defaultMigrationTimeout, "Maximum time to wait for migrations")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, *timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cmdCtx.Config.Postgres, Logger: cmdCtx.Logger})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()
	return bootstrap.RunMigrations(ctx, db, cmdCtx.Logger)
}
