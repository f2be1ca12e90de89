package ports

import (
	"context"

	"github.com/siprak/portal/internal/domain/notification"
)

// NotificationRepository persists notifications. Every mutation is scoped by subject id.
type NotificationRepository interface {
	// ListBySubject returns up to limit notifications, newest first.
	ListBySubject(ctx context.Context, subjectID string, limit int) ([]notification.Notification, error)
	MarkRead(ctx context.Context, id, subjectID string) error
	MarkAllRead(ctx context.Context, subjectID string) error
	Delete(ctx context.Context, id, subjectID string) error
	DeleteAll(ctx context.Context, subjectID string) error
	Insert(ctx context.Context, p notification.Payload) (*notification.Notification, error)
}

// PushSubscription is an open push channel. Events is closed after Close returns.
type PushSubscription interface {
	Events() <-chan notification.Notification
	Close()
}

// PushChannel opens realtime insert streams scoped by channel key and filter.
type PushChannel interface {
	Open(ctx context.Context, channelKey, filter string) (PushSubscription, error)
}

// AlertLevel classifies a transient user-facing alert.
type AlertLevel string

const (
	AlertInfo    AlertLevel = "info"
	AlertSuccess AlertLevel = "success"
	AlertError   AlertLevel = "error"
)

// Alert is a transient message for the user.
type Alert struct {
	Level   AlertLevel
	Title   string
	Message string
}

// Alerter raises transient alerts.
type Alerter interface {
	Alert(ctx context.Context, a Alert)
}
