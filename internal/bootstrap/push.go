package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/siprak/portal/config"
	redisadapter "github.com/siprak/portal/internal/adapters/redis"
	"github.com/siprak/portal/internal/data"
	"github.com/siprak/portal/internal/ports"
)

// NotificationDeps contains what the notification backends may need.
type NotificationDeps struct {
	Config      config.NotificationConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient // redis backend only
	Logger      *slog.Logger
}

// NotificationBackend pairs the repository with the push channel that echoes its inserts.
type NotificationBackend struct {
	Repo    ports.NotificationRepository
	Channel ports.PushChannel
}

// BuildNotificationBackend selects the push backend. The postgres backend relies on the
// insert trigger; the redis backend publishes from the repository after each insert.
func BuildNotificationBackend(deps NotificationDeps) (NotificationBackend, error) {
	if deps.DB == nil {
		return NotificationBackend{}, errors.New("notifications require a database")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	repo := data.NewNotificationRepo(deps.DB)

	switch deps.Config.PushBackend {
	case config.PushBackendPostgres, "":
		return NotificationBackend{
			Repo: repo,
			Channel: data.NewNotificationListener(deps.DB, data.NotificationListenerOptions{
				WaitWindow: deps.Config.ListenWindow,
				Backoff:    deps.Config.ReconnectWait,
				Buffer:     deps.Config.Buffer,
				Logger:     logger,
			}),
		}, nil
	case config.PushBackendRedis:
		if deps.RedisClient == nil {
			return NotificationBackend{}, errors.New("redis push backend requires a redis client")
		}
		return NotificationBackend{
			Repo: redisadapter.NewPublishingRepository(repo, deps.RedisClient, deps.Config.RedisPrefix, logger),
			Channel: redisadapter.NewPushChannel(deps.RedisClient, redisadapter.PushChannelOptions{
				Prefix: deps.Config.RedisPrefix,
				Buffer: deps.Config.Buffer,
				Logger: logger,
			}),
		}, nil
	default:
		return NotificationBackend{}, fmt.Errorf("unsupported push backend %q", deps.Config.PushBackend)
	}
}
