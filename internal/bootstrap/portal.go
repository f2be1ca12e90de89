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
	"github.com/siprak/portal/internal/data"
	"github.com/siprak/portal/internal/observability/statsd"
	"github.com/siprak/portal/internal/ports"
	"github.com/siprak/portal/internal/service"
)

// PortalComponents groups the collaborators the portal core is assembled from.
type PortalComponents struct {
	Gateway          ports.CredentialGateway    // Required
	Profiles         ports.ProfileRepository    // Required
	Roles            ports.RoleRepository       // Required
	Permissions      ports.PermissionRepository // Required unless Resolver is set
	Resolver         ports.SnapshotResolver     // Optional: defaults to service.Resolver over the repositories
	Notifications    NotificationBackend        // Required
	Navigator        ports.Navigator            // Optional
	Alerter          ports.Alerter              // Optional
	Routes           ports.RouteMapper          // Optional: defaults to authroles.DefaultRouteTable
	LoginRoute       string                     // Optional
	ResetRedirectURL string
	FetchLimit       int
	Metrics          statsd.Sink
	Logger           *slog.Logger
}

// Portal is the assembled core: the session machine drives the notification store and
// push manager through its subject listener.
type Portal struct {
	Session       *service.SessionMachine
	Notifications *service.NotificationStore
	Push          *service.PushManager
	Gateway       ports.CredentialGateway

	logger  *slog.Logger
	subject ports.Subscription
}

// NewPortal wires the session machine, notification store and push manager.
func NewPortal(c PortalComponents) (*Portal, error) {
	if c.Gateway == nil {
		return nil, errors.New("credential gateway is required")
	}
	if c.Notifications.Repo == nil || c.Notifications.Channel == nil {
		return nil, errors.New("notification repository and push channel are required")
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	resolver := c.Resolver
	if resolver == nil {
		r, err := service.NewResolver(service.ResolverOptions{
			Profiles:    c.Profiles,
			Roles:       c.Roles,
			Permissions: c.Permissions,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build resolver: %w", err)
		}
		resolver = r
	}
	routes := c.Routes
	if routes == nil {
		routes = authroles.DefaultRouteTable()
	}

	session, err := service.NewSessionMachine(service.SessionMachineOptions{
		Gateway:          c.Gateway,
		Resolver:         resolver,
		Profiles:         c.Profiles,
		Roles:            c.Roles,
		Navigator:        c.Navigator,
		Routes:           routes,
		LoginRoute:       c.LoginRoute,
		ResetRedirectURL: c.ResetRedirectURL,
		Logger:           logger,
		Metrics:          c.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("build session machine: %w", err)
	}
	store, err := service.NewNotificationStore(service.NotificationStoreOptions{
		Repo:       c.Notifications.Repo,
		Alerter:    c.Alerter,
		FetchLimit: c.FetchLimit,
		Logger:     logger,
		Metrics:    c.Metrics,
	})
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("build notification store: %w", err)
	}
	push, err := service.NewPushManager(service.PushManagerOptions{
		Channel: c.Notifications.Channel,
		Sink:    store,
		Logger:  logger,
		Metrics: c.Metrics,
	})
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("build push manager: %w", err)
	}

	p := &Portal{
		Session:       session,
		Notifications: store,
		Push:          push,
		Gateway:       c.Gateway,
		logger:        logger.With("component", "portal"),
	}
	p.subject = session.Subscribe(p.onSubject)
	return p, nil
}

// Start restores any existing session.
func (p *Portal) Start(ctx context.Context) error {
	return p.Session.Initialize(ctx)
}

// Refresh renews the current session when the gateway supports it.
func (p *Portal) Refresh(ctx context.Context) error {
	r, ok := p.Gateway.(ports.SessionRefresher)
	if !ok {
		return errors.ErrUnsupported
	}
	return r.Refresh(ctx)
}

// Close stops the subject listener, the push channel and the session machine, and waits
// for in-flight notification inserts.
func (p *Portal) Close() {
	p.subject.Close()
	p.Push.Close()
	p.Notifications.Wait()
	p.Session.Close()
}

// onSubject rescopes notifications to the new subject. An empty subject clears them.
func (p *Portal) onSubject(ctx context.Context, subjectID string) {
	p.Notifications.SetSubject(subjectID)
	if err := p.Push.Open(ctx, subjectID); err != nil {
		p.logger.WarnContext(ctx, "push channel unavailable; notifications will refresh on fetch only",
			"subject_id", subjectID, "error", err)
	}
	if subjectID == "" {
		return
	}
	if err := p.Notifications.FetchAll(ctx); err != nil {
		p.logger.WarnContext(ctx, "initial notification fetch failed", "subject_id", subjectID, "error", err)
	}
}

// PortalDeps contains the infrastructure BuildPortal assembles the core from.
type PortalDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient // Optional unless local auth or the redis push backend is selected
	Navigator   ports.Navigator
	Alerter     ports.Alerter
	Metrics     statsd.Sink
	Logger      *slog.Logger
}

// BuildPortal builds the gateway, repositories and push backend from configuration and
// wires them into a Portal.
func BuildPortal(ctx context.Context, deps PortalDeps) (*Portal, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	if deps.DB == nil {
		return nil, errors.New("database is required")
	}
	cfg := deps.Config

	gateway, err := BuildGateway(ctx, GatewayDeps{
		Auth:        cfg.Auth,
		RedisConfig: cfg.Redis,
		DB:          deps.DB,
		RedisClient: deps.RedisClient,
		Logger:      deps.Logger,
	})
	if err != nil {
		return nil, err
	}
	backend, err := BuildNotificationBackend(NotificationDeps{
		Config:      cfg.Notifications,
		DB:          deps.DB,
		RedisClient: deps.RedisClient,
		Logger:      deps.Logger,
	})
	if err != nil {
		return nil, err
	}

	return NewPortal(PortalComponents{
		Gateway:          gateway,
		Profiles:         data.NewProfileRepo(deps.DB),
		Roles:            data.NewRoleRepo(deps.DB),
		Permissions:      data.NewPermissionRepo(deps.DB),
		Notifications:    backend,
		Navigator:        deps.Navigator,
		Alerter:          deps.Alerter,
		Routes:           RouteTable(cfg.Auth.Routes),
		LoginRoute:       cfg.Auth.LoginRoute,
		ResetRedirectURL: cfg.Auth.ResetRedirectURL,
		FetchLimit:       cfg.Notifications.FetchLimit,
		Metrics:          deps.Metrics,
		Logger:           deps.Logger,
	})
}
