package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/siprak/portal/internal/domain/notification"
	"github.com/siprak/portal/internal/observability/metrics"
	"github.com/siprak/portal/internal/observability/statsd"
	"github.com/siprak/portal/internal/ports"
)

// Ingester receives pushed notifications.
type Ingester interface {
	Ingest(ctx context.Context, n notification.Notification)
}

// PushManagerOptions groups dependencies for PushManager.
type PushManagerOptions struct {
	Channel ports.PushChannel // Required
	Sink    Ingester          // Required: usually the NotificationStore
	Logger  *slog.Logger      // Optional: structured logger
	Metrics statsd.Sink       // Optional: metrics sink (StatsD-compatible)
}

// PushManager keeps at most one push subscription open, scoped to the current subject,
// and pumps its insert events into the sink.
type PushManager struct {
	channel ports.PushChannel
	sink    Ingester
	logger  *slog.Logger
	metrics statsd.Sink

	mu         sync.Mutex
	generation uint64
	subject    string
	sub        ports.PushSubscription
	done       chan struct{}
}

// NewPushManager constructs a closed PushManager.
func NewPushManager(opts PushManagerOptions) (*PushManager, error) {
	if opts.Channel == nil {
		return nil, errors.New("push channel is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("push sink is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PushManager{
		channel: opts.Channel,
		sink:    opts.Sink,
		logger:  logger.With("component", "push_manager"),
		metrics: opts.Metrics,
	}, nil
}

// Open closes any open subscription, then subscribes to inserts for subjectID.
// An empty or malformed subject id leaves the manager closed.
func (m *PushManager) Open(ctx context.Context, subjectID string) error {
	m.mu.Lock()
	m.generation++
	ticket := m.generation
	prevSub, prevDone := m.detach()
	m.mu.Unlock()
	closeSubscription(prevSub, prevDone)

	if !notification.ValidSubjectID(subjectID) {
		if subjectID != "" {
			m.logger.DebugContext(ctx, "not opening push channel for malformed subject", "subject_id", subjectID)
		}
		return nil
	}

	key := notification.ChannelKey(subjectID)
	sub, err := m.channel.Open(ctx, key, notification.Filter(subjectID))
	if err != nil {
		m.emit("push_open", metrics.ResultError, err)
		return fmt.Errorf("open push channel %s: %w", key, err)
	}

	m.mu.Lock()
	if m.generation != ticket {
		// A newer Open or Close won.
		m.mu.Unlock()
		sub.Close()
		return nil
	}
	done := make(chan struct{})
	m.subject = subjectID
	m.sub = sub
	m.done = done
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "push channel opened", "subject_id", subjectID, "channel", key)
	m.emit("push_open", metrics.ResultSuccess, nil)
	go m.pump(context.WithoutCancel(ctx), ticket, sub, done)
	return nil
}

// Close tears down the open subscription, if any, and waits for its pump to stop.
// Events that arrive afterwards are dropped.
func (m *PushManager) Close() {
	m.mu.Lock()
	m.generation++
	sub, done := m.detach()
	m.mu.Unlock()
	closeSubscription(sub, done)
}

// Subject returns the subject of the open subscription and whether one is open.
func (m *PushManager) Subject() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subject, m.sub != nil
}

// detach must be called with mu held.
func (m *PushManager) detach() (ports.PushSubscription, chan struct{}) {
	sub, done := m.sub, m.done
	m.sub, m.done, m.subject = nil, nil, ""
	return sub, done
}

func (m *PushManager) pump(ctx context.Context, ticket uint64, sub ports.PushSubscription, done chan struct{}) {
	defer close(done)
	for n := range sub.Events() {
		if !m.current(ticket) {
			continue
		}
		m.sink.Ingest(ctx, n)
		m.emit("push_event", metrics.ResultSuccess, nil)
	}
}

func (m *PushManager) current(ticket uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation == ticket
}

func (m *PushManager) emit(op, result string, err error) {
	metrics.EmitNotification(m.metrics, metrics.NotificationMetric{Op: op, Result: result, Err: err})
}

func closeSubscription(sub ports.PushSubscription, done chan struct{}) {
	if sub == nil {
		return
	}
	sub.Close()
	if done != nil {
		<-done
	}
}
