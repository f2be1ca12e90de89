package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/siprak/portal/internal/data/pgxutil"
	"github.com/siprak/portal/internal/domain/notification"
	"github.com/siprak/portal/internal/ports"
)

var _ ports.PushChannel = (*NotificationListener)(nil)

// NotificationListenerOptions configures a NotificationListener.
type NotificationListenerOptions struct {
	// WaitWindow bounds each WaitForNotification call so cancellation is observed promptly.
	WaitWindow time.Duration
	// Backoff is the delay before reconnecting after a connection failure.
	Backoff time.Duration
	// Buffer is the capacity of each subscription's event channel.
	Buffer int
	Logger *slog.Logger
}

// NotificationListener is a push channel backed by Postgres LISTEN/NOTIFY. The insert trigger
// on notifications announces {"id","user_id"} on "notifications-channel-for-<user_id>" and
// the listener loads the row before delivering it.
type NotificationListener struct {
	DB         *sql.DB
	repo       *NotificationRepo
	waitWindow time.Duration
	backoff    time.Duration
	buffer     int
	logger     *slog.Logger
}

// NewNotificationListener constructs a NotificationListener with defaults applied.
func NewNotificationListener(db *sql.DB, opts NotificationListenerOptions) *NotificationListener {
	if opts.WaitWindow <= 0 {
		opts.WaitWindow = 30 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 250 * time.Millisecond
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 16
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &NotificationListener{
		DB:         db,
		repo:       NewNotificationRepo(db),
		waitWindow: opts.WaitWindow,
		backoff:    opts.Backoff,
		buffer:     opts.Buffer,
		logger:     opts.Logger.With("component", "notification_listener"),
	}
}

// Open subscribes to channelKey. The first LISTEN happens before Open returns, so inserts
// committed after Open are delivered.
func (l *NotificationListener) Open(ctx context.Context, channelKey, filter string) (ports.PushSubscription, error) {
	subjectID, err := notification.ParseFilter(filter)
	if err != nil {
		return nil, err
	}
	if channelKey != notification.ChannelKey(subjectID) {
		return nil, fmt.Errorf("channel %q does not match filter %q", channelKey, filter)
	}

	conn, err := l.listen(ctx, channelKey)
	if err != nil {
		return nil, err
	}

	// The loop outlives the Open call; only Close stops it.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &pgSubscription{
		events: make(chan notification.Notification, l.buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go l.loop(loopCtx, sub, conn, channelKey, subjectID)
	return sub, nil
}

func (l *NotificationListener) listen(ctx context.Context, channel string) (*sql.Conn, error) {
	conn, err := l.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("get conn from pool: %w", err)
	}
	if _, execErr := conn.ExecContext(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); execErr != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("listen %s: %w", channel, execErr)
	}
	return conn, nil
}

func (l *NotificationListener) unlisten(conn *sql.Conn, channel string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := conn.ExecContext(ctx, "UNLISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		// The connection may already be broken; closing it discards the LISTEN anyway.
		_ = err
	}
	_ = conn.Close()
}

func (l *NotificationListener) loop(
	ctx context.Context,
	sub *pgSubscription,
	conn *sql.Conn,
	channel, subjectID string,
) {
	defer close(sub.done)
	defer close(sub.events)

	for ctx.Err() == nil {
		if conn == nil {
			var err error
			if conn, err = l.listen(ctx, channel); err != nil {
				l.logger.WarnContext(ctx, "relisten failed", "channel", channel, "error", err)
				if !sleepCtx(ctx, l.backoff) {
					return
				}
				continue
			}
			// Rows inserted while disconnected are not replayed.
			l.logger.InfoContext(ctx, "relistening", "channel", channel)
		}

		payload, err := l.wait(ctx, conn)
		switch {
		case err == nil:
			l.deliver(ctx, sub, payload, subjectID)
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			// wait window elapsed; poll again
		case ctx.Err() != nil:
			l.unlisten(conn, channel)
			return
		default:
			l.logger.WarnContext(ctx, "wait for notification failed", "channel", channel, "error", err)
			_ = conn.Close()
			conn = nil
			if !sleepCtx(ctx, l.backoff) {
				return
			}
		}
	}
	if conn != nil {
		l.unlisten(conn, channel)
	}
}

func (l *NotificationListener) wait(ctx context.Context, conn *sql.Conn) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.waitWindow)
	defer cancel()

	var payload string
	err := pgxutil.Raw(conn, func(pc *pgx.Conn) error {
		n, err := pc.WaitForNotification(waitCtx)
		if err != nil {
			return err
		}
		payload = n.Payload
		return nil
	})
	return payload, err
}

// insertEvent is the NOTIFY payload written by the notifications insert trigger.
type insertEvent struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
}

func parseInsertEvent(payload string) (insertEvent, error) {
	var ev insertEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return insertEvent{}, fmt.Errorf("decode insert event: %w", err)
	}
	if ev.ID == "" || ev.UserID == "" {
		return insertEvent{}, errors.New("insert event without id or user_id")
	}
	return ev, nil
}

func (l *NotificationListener) deliver(ctx context.Context, sub *pgSubscription, payload, subjectID string) {
	ev, err := parseInsertEvent(payload)
	if err != nil {
		l.logger.WarnContext(ctx, "dropping malformed notification payload", "error", err)
		return
	}
	if ev.UserID != subjectID {
		return
	}
	row, err := l.repo.GetByID(ctx, ev.ID, subjectID)
	if errors.Is(err, ErrNotificationNotFound) {
		// Deleted before it could be loaded.
		l.logger.DebugContext(ctx, "announced notification is gone", "notification_id", ev.ID)
		return
	}
	if err != nil {
		l.logger.WarnContext(ctx, "load announced notification failed", "notification_id", ev.ID, "error", err)
		return
	}
	n, err := notification.NewNotification(*row)
	if err != nil {
		l.logger.WarnContext(ctx, "dropping invalid notification row", "notification_id", ev.ID, "error", err)
		return
	}
	select {
	case sub.events <- n:
	case <-ctx.Done():
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

type pgSubscription struct {
	events chan notification.Notification
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *pgSubscription) Events() <-chan notification.Notification { return s.events }

// Close stops the listen loop and waits for it to release its connection.
func (s *pgSubscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}
