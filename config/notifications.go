package config

import (
	"fmt"
	"strings"
	"time"
)

// PushBackend selects the realtime transport for notification inserts.
type PushBackend string

const (
	// PushBackendPostgres listens on the notify trigger of the notifications table.
	PushBackendPostgres PushBackend = "postgres"
	// PushBackendRedis uses Redis pub/sub; inserts are published by the repository.
	PushBackendRedis PushBackend = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for PushBackend.
func (b *PushBackend) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "postgres", "redis":
		*b = PushBackend(v)
		return nil
	default:
		return fmt.Errorf("invalid PushBackend: %q (valid options: postgres, redis)", v)
	}
}

// NotificationConfig controls the notification store and its push channel.
type NotificationConfig struct {
	FetchLimit    int           `env:"NOTIFICATIONS_FETCH_LIMIT"    envDefault:"50"`
	PushBackend   PushBackend   `env:"NOTIFICATIONS_PUSH_BACKEND"   envDefault:"postgres"`
	ListenWindow  time.Duration `env:"NOTIFICATIONS_LISTEN_WINDOW"  envDefault:"30s"`
	ReconnectWait time.Duration `env:"NOTIFICATIONS_RECONNECT_WAIT" envDefault:"250ms"`
	Buffer        int           `env:"NOTIFICATIONS_BUFFER"         envDefault:"16"`
	RedisPrefix   string        `env:"NOTIFICATIONS_REDIS_PREFIX"   envDefault:"portal:push:"`
}

// Sanitize applies guardrails to notification settings.
func (c *NotificationConfig) Sanitize() {
	if c.FetchLimit <= 0 || c.FetchLimit > 500 {
		c.FetchLimit = 50
	}
	if c.PushBackend == "" {
		c.PushBackend = PushBackendPostgres
	}
	if c.ListenWindow <= 0 {
		c.ListenWindow = 30 * time.Second
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 250 * time.Millisecond
	}
	if c.Buffer <= 0 {
		c.Buffer = 16
	}
	if c.RedisPrefix = strings.TrimSpace(c.RedisPrefix); c.RedisPrefix == "" {
		c.RedisPrefix = "portal:push:"
	}
}
