package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/siprak/portal/internal/data/pgxutil"
	"github.com/siprak/portal/internal/domain/notification"
)

const notificationColumns = `id, user_id, title, message, type, priority, related_table, related_id,
	is_read, read_at, created_at`

const (
	notificationListQuery = `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`

	notificationGetQuery = `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE id = $1 AND user_id = $2`

	notificationInsertQuery = `
		INSERT INTO notifications (user_id, title, message, type, priority, related_table, related_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + notificationColumns
)

// DefaultNotificationLimit caps a notification list fetch.
const DefaultNotificationLimit = 50

// NotificationRepo provides database operations for notifications. Every statement is
// scoped by user_id so one subject can never touch another's rows.
type NotificationRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewNotificationRepo creates a new NotificationRepo with real time provider.
func NewNotificationRepo(db *sql.DB) *NotificationRepo {
	return &NotificationRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// NewNotificationRepoWithTimeProvider creates a NotificationRepo with a custom time provider.
func NewNotificationRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *NotificationRepo {
	return &NotificationRepo{DB: db, timeProvider: tp}
}

// ListBySubject returns up to limit notifications, newest first.
func (r *NotificationRepo) ListBySubject(
	ctx context.Context,
	subjectID string,
	limit int,
) ([]notification.Notification, error) {
	if limit <= 0 {
		limit = DefaultNotificationLimit
	}
	var out []notification.Notification
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, notificationListQuery, subjectID, limit)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[notification.Notification])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return out, nil
}

// GetByID returns one notification of the subject, or ErrNotificationNotFound.
func (r *NotificationRepo) GetByID(ctx context.Context, id, subjectID string) (*notification.Notification, error) {
	var out notification.Notification
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, notificationGetQuery, id, subjectID)
		if err != nil {
			return err
		}
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[notification.Notification])
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &out, nil
}

// MarkRead flags one notification as read and stamps read_at.
func (r *NotificationRepo) MarkRead(ctx context.Context, id, subjectID string) error {
	affected, err := r.exec(ctx,
		`UPDATE notifications SET is_read = TRUE, read_at = $3 WHERE id = $1 AND user_id = $2`,
		id, subjectID, r.timeProvider.Now())
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if affected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead flags every unread notification of the subject.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, subjectID string) error {
	if _, err := r.exec(ctx,
		`UPDATE notifications SET is_read = TRUE, read_at = $2 WHERE user_id = $1 AND is_read = FALSE`,
		subjectID, r.timeProvider.Now()); err != nil {
		return fmt.Errorf("failed to mark all notifications read: %w", err)
	}
	return nil
}

// Delete removes one notification.
func (r *NotificationRepo) Delete(ctx context.Context, id, subjectID string) error {
	affected, err := r.exec(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, subjectID)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if affected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// DeleteAll removes every notification of the subject.
func (r *NotificationRepo) DeleteAll(ctx context.Context, subjectID string) error {
	if _, err := r.exec(ctx, `DELETE FROM notifications WHERE user_id = $1`, subjectID); err != nil {
		return fmt.Errorf("failed to clear notifications: %w", err)
	}
	return nil
}

// Insert creates a notification. The insert trigger announces its id on the recipient's channel.
func (r *NotificationRepo) Insert(ctx context.Context, p notification.Payload) (*notification.Notification, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	priority := p.Priority
	if priority == "" {
		priority = notification.PriorityNormal
	}

	var out notification.Notification
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, notificationInsertQuery,
			p.SubjectID, p.Title, p.Message, string(p.Kind), string(priority), p.RelatedTable, p.RelatedID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[notification.Notification])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert notification: %w", err)
	}
	return &out, nil
}

func (r *NotificationRepo) exec(ctx context.Context, query string, args ...any) (int64, error) {
	var affected int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, query, args...)
		affected = tag.RowsAffected()
		return err
	})
	return affected, err
}
