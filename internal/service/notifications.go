package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/siprak/portal/internal/domain/notification"
	apperrors "github.com/siprak/portal/internal/errors"
	"github.com/siprak/portal/internal/observability/metrics"
	"github.com/siprak/portal/internal/observability/statsd"
	"github.com/siprak/portal/internal/ports"
)

// DefaultFetchLimit caps how many notifications FetchAll loads.
const DefaultFetchLimit = 50

// Alert texts raised by NotificationStore.
const (
	alertTitle        = "Notifications"
	alertLoadFailed   = "failed to load notifications"
	alertUpdateFailed = "failed to update notification"
	alertDeleteFailed = "failed to delete notification"
	alertSendFailed   = "failed to send notification"
	alertAllRead      = "all notifications marked as read"
	alertDeleted      = "notification deleted"
	alertAllCleared   = "all notifications cleared"
)

// NotificationStoreOptions groups dependencies for NotificationStore.
type NotificationStoreOptions struct {
	Repo       ports.NotificationRepository // Required
	Alerter    ports.Alerter                // Optional: transient user alerts
	FetchLimit int                          // Optional: defaults to DefaultFetchLimit
	Logger     *slog.Logger                 // Optional: structured logger
	Metrics    statsd.Sink                  // Optional: metrics sink (StatsD-compatible)
}

// NotificationStore owns the notification list and unread counter of one subject.
// The counter is recomputed from the list after every mutation and never adjusted on its own.
//
// Every operation is a silent no-op while the subject id is empty or not a UUID.
// Read and delete mutations are applied locally first; a failing remote write is reported
// through the alerter and never rolled back.
type NotificationStore struct {
	repo    ports.NotificationRepository
	alerter ports.Alerter
	limit   int
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time

	mu         sync.Mutex
	subject    string
	generation uint64
	items      []notification.Notification
	unread     int
	loading    bool

	pending sync.WaitGroup
}

// NewNotificationStore constructs an empty NotificationStore with no subject.
func NewNotificationStore(opts NotificationStoreOptions) (*NotificationStore, error) {
	if opts.Repo == nil {
		return nil, errors.New("notification repository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := opts.FetchLimit
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	return &NotificationStore{
		repo:    opts.Repo,
		alerter: opts.Alerter,
		limit:   limit,
		logger:  logger.With("component", "notification_store"),
		metrics: opts.Metrics,
		now:     time.Now,
		loading: true,
	}, nil
}

// SetSubject scopes the store to subjectID. A different subject evicts the list.
func (s *NotificationStore) SetSubject(subjectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if subjectID == s.subject {
		return
	}
	s.subject = subjectID
	s.generation++
	s.items = nil
	s.unread = 0
	s.loading = notification.ValidSubjectID(subjectID)
}

// Subject returns the current subject id.
func (s *NotificationStore) Subject() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subject
}

// FetchAll replaces the list with the newest notifications of the subject.
func (s *NotificationStore) FetchAll(ctx context.Context) error {
	subject, ticket, ok := s.begin()
	s.mu.Lock()
	s.loading = ok
	s.mu.Unlock()
	if !ok {
		return nil
	}

	list, err := s.repo.ListBySubject(ctx, subject, s.limit)

	s.mu.Lock()
	if s.generation != ticket {
		s.mu.Unlock()
		return nil
	}
	s.loading = false
	if err != nil {
		s.mu.Unlock()
		s.logger.ErrorContext(ctx, "fetch notifications failed", "subject_id", subject, "error", err)
		s.alert(ctx, ports.AlertError, alertTitle, alertLoadFailed)
		s.emit("fetch", metrics.ResultError, err, 1)
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, alertLoadFailed)
	}
	if len(list) > s.limit {
		list = list[:s.limit]
	}
	s.items = append([]notification.Notification(nil), list...)
	unread := s.recount()
	s.mu.Unlock()

	s.emit("fetch", metrics.ResultSuccess, nil, int64(len(list)))
	metrics.EmitUnread(s.metrics, unread)
	return nil
}

// MarkRead flips one notification to read, then writes the change remotely.
func (s *NotificationStore) MarkRead(ctx context.Context, id string) error {
	subject, _, ok := s.begin()
	if !ok {
		return nil
	}
	now := s.now().UTC()
	s.mu.Lock()
	for i := range s.items {
		if s.items[i].ID == id && !s.items[i].Read {
			s.items[i].Read = true
			s.items[i].ReadAt = &now
		}
	}
	unread := s.recount()
	s.mu.Unlock()
	metrics.EmitUnread(s.metrics, unread)

	if err := s.repo.MarkRead(ctx, id, subject); err != nil {
		return s.remoteFailure(ctx, "mark_read", alertUpdateFailed, err)
	}
	s.emit("mark_read", metrics.ResultSuccess, nil, 1)
	return nil
}

// MarkAllRead flips every notification to read, then writes the change remotely.
func (s *NotificationStore) MarkAllRead(ctx context.Context) error {
	subject, _, ok := s.begin()
	if !ok {
		return nil
	}
	now := s.now().UTC()
	s.mu.Lock()
	changed := 0
	for i := range s.items {
		if !s.items[i].Read {
			s.items[i].Read = true
			s.items[i].ReadAt = &now
			changed++
		}
	}
	unread := s.recount()
	s.mu.Unlock()
	metrics.EmitUnread(s.metrics, unread)

	if err := s.repo.MarkAllRead(ctx, subject); err != nil {
		return s.remoteFailure(ctx, "mark_all_read", alertUpdateFailed, err)
	}
	s.alert(ctx, ports.AlertSuccess, alertTitle, alertAllRead)
	s.emit("mark_all_read", metrics.ResultSuccess, nil, int64(changed))
	return nil
}

// Delete removes one notification locally and remotely.
func (s *NotificationStore) Delete(ctx context.Context, id string) error {
	subject, _, ok := s.begin()
	if !ok {
		return nil
	}
	s.mu.Lock()
	kept := s.items[:0]
	for _, n := range s.items {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	clear(s.items[len(kept):])
	s.items = kept
	unread := s.recount()
	s.mu.Unlock()
	metrics.EmitUnread(s.metrics, unread)

	if err := s.repo.Delete(ctx, id, subject); err != nil {
		return s.remoteFailure(ctx, "delete", alertDeleteFailed, err)
	}
	s.alert(ctx, ports.AlertSuccess, alertTitle, alertDeleted)
	s.emit("delete", metrics.ResultSuccess, nil, 1)
	return nil
}

// ClearAll removes every notification of the subject locally and remotely.
func (s *NotificationStore) ClearAll(ctx context.Context) error {
	subject, _, ok := s.begin()
	if !ok {
		return nil
	}
	s.mu.Lock()
	removed := len(s.items)
	s.items = nil
	s.recount()
	s.mu.Unlock()
	metrics.EmitUnread(s.metrics, 0)

	if err := s.repo.DeleteAll(ctx, subject); err != nil {
		return s.remoteFailure(ctx, "clear_all", alertDeleteFailed, err)
	}
	s.alert(ctx, ports.AlertSuccess, alertTitle, alertAllCleared)
	s.emit("clear_all", metrics.ResultSuccess, nil, int64(removed))
	return nil
}

// Notify inserts p remotely on its own goroutine and returns immediately. The list only
// changes when the insert comes back through Ingest. Failures are alerted.
func (s *NotificationStore) Notify(ctx context.Context, p notification.Payload) {
	ctx = context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		_, _ = s.NotifySync(ctx, p)
	}()
}

// NotifySync inserts p remotely and waits for the result. An empty payload subject means
// the store's subject. It returns nil, nil when the subject is not a valid id.
func (s *NotificationStore) NotifySync(ctx context.Context, p notification.Payload) (*notification.Notification, error) {
	subject, _, ok := s.begin()
	if !ok {
		return nil, nil
	}
	if p.SubjectID == "" {
		p.SubjectID = subject
	}
	if !notification.ValidSubjectID(p.SubjectID) {
		return nil, nil
	}
	if p.Kind == "" {
		p.Kind = notification.KindInfo
	}
	if p.Priority == "" {
		p.Priority = notification.PriorityNormal
	}
	if err := p.Validate(); err != nil {
		s.alert(ctx, ports.AlertError, alertTitle, alertSendFailed)
		return nil, apperrors.ValidationField("notification", err.Error())
	}

	n, err := s.repo.Insert(ctx, p)
	if err != nil {
		return nil, s.remoteFailure(ctx, "notify", alertSendFailed, err)
	}
	s.emit("notify", metrics.ResultSuccess, nil, 1)
	return n, nil
}

// Wait blocks until every Notify started so far has finished.
func (s *NotificationStore) Wait() {
	s.pending.Wait()
}

// Ingest prepends a pushed notification and raises an info alert when it is unread.
// Notifications for another subject are dropped. Redelivered ids are not deduplicated.
func (s *NotificationStore) Ingest(ctx context.Context, n notification.Notification) {
	s.mu.Lock()
	if !notification.ValidSubjectID(s.subject) {
		s.mu.Unlock()
		return
	}
	if n.SubjectID != "" && n.SubjectID != s.subject {
		subject := s.subject
		s.mu.Unlock()
		s.logger.DebugContext(ctx, "dropping notification for another subject",
			"subject_id", subject, "notification_id", n.ID)
		return
	}
	s.items = append([]notification.Notification{n}, s.items...)
	unread := s.recount()
	s.mu.Unlock()

	if !n.Read {
		s.alert(ctx, ports.AlertInfo, n.Title, n.Message)
	}
	s.emit("ingest", metrics.ResultSuccess, nil, 1)
	metrics.EmitUnread(s.metrics, unread)
}

// Notifications returns a copy of the list, newest first.
func (s *NotificationStore) Notifications() []notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notification.Notification(nil), s.items...)
}

// UnreadCount returns the number of unread notifications in the list.
func (s *NotificationStore) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Loading reports whether the list is still being loaded. It starts true and turns false
// once a fetch completes or is skipped for lack of a valid subject.
func (s *NotificationStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// begin applies the validity gate and returns the subject and generation to work with.
func (s *NotificationStore) begin() (string, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !notification.ValidSubjectID(s.subject) {
		return "", 0, false
	}
	return s.subject, s.generation, true
}

// recount must be called with mu held.
func (s *NotificationStore) recount() int {
	s.unread = notification.UnreadCount(s.items)
	return s.unread
}

func (s *NotificationStore) remoteFailure(ctx context.Context, op, msg string, err error) error {
	s.logger.WarnContext(ctx, "notification remote write failed", "op", op, "error", err)
	s.alert(ctx, ports.AlertError, alertTitle, msg)
	s.emit(op, metrics.ResultError, err, 1)
	return apperrors.RemoteWrite(err, msg)
}

func (s *NotificationStore) alert(ctx context.Context, level ports.AlertLevel, title, msg string) {
	if s.alerter == nil {
		return
	}
	s.alerter.Alert(ctx, ports.Alert{Level: level, Title: title, Message: msg})
}

func (s *NotificationStore) emit(op, result string, err error, count int64) {
	metrics.EmitNotification(s.metrics, metrics.NotificationMetric{
		Op:     op,
		Result: result,
		Err:    err,
		Count:  count,
	})
}
