package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/siprak/portal/internal/domain/notification"
	"github.com/siprak/portal/internal/ports"
)

// DefaultChannelPrefix namespaces portal pub/sub channels.
const DefaultChannelPrefix = "portal:"

var (
	_ ports.PushChannel            = (*PushChannel)(nil)
	_ ports.NotificationRepository = (*PublishingRepository)(nil)
)

// PushChannel is a push channel over Redis pub/sub. Rows are published by PublishingRepository.
type PushChannel struct {
	client redis.UniversalClient
	prefix string
	buffer int
	logger *slog.Logger
}

// PushChannelOptions configures a PushChannel.
type PushChannelOptions struct {
	Prefix string
	Buffer int
	Logger *slog.Logger
}

// NewPushChannel constructs a Redis pub/sub push channel.
func NewPushChannel(client redis.UniversalClient, opts PushChannelOptions) *PushChannel {
	if opts.Prefix == "" {
		opts.Prefix = DefaultChannelPrefix
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 16
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &PushChannel{
		client: client,
		prefix: opts.Prefix,
		buffer: opts.Buffer,
		logger: opts.Logger.With("component", "redis_push_channel"),
	}
}

// Open subscribes to channelKey and waits for the subscription to be confirmed.
func (c *PushChannel) Open(ctx context.Context, channelKey, filter string) (ports.PushSubscription, error) {
	subjectID, err := notification.ParseFilter(filter)
	if err != nil {
		return nil, err
	}
	if channelKey != notification.ChannelKey(subjectID) {
		return nil, fmt.Errorf("channel %q does not match filter %q", channelKey, filter)
	}

	ps := c.client.Subscribe(ctx, c.prefix+channelKey)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channelKey, err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &redisSubscription{
		ps:     ps,
		events: make(chan notification.Notification, c.buffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.pump(loopCtx, sub, subjectID)
	return sub, nil
}

func (c *PushChannel) pump(ctx context.Context, sub *redisSubscription, subjectID string) {
	defer close(sub.done)
	defer close(sub.events)

	msgs := sub.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			n, err := notification.Decode([]byte(msg.Payload))
			if err != nil {
				c.logger.WarnContext(ctx, "dropping malformed notification payload", "channel", msg.Channel, "error", err)
				continue
			}
			if n.SubjectID != subjectID {
				continue
			}
			select {
			case sub.events <- n:
			case <-ctx.Done():
				return
			}
		}
	}
}

type redisSubscription struct {
	ps     *redis.PubSub
	events chan notification.Notification
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) Events() <-chan notification.Notification { return s.events }

// Close unsubscribes and waits for the pump goroutine to exit.
func (s *redisSubscription) Close() {
	s.once.Do(func() {
		s.cancel()
		_ = s.ps.Close()
	})
	<-s.done
}

// PublishingRepository decorates a NotificationRepository so each inserted row is also
// published on the recipient's Redis channel.
type PublishingRepository struct {
	ports.NotificationRepository

	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// NewPublishingRepository wraps inner. prefix must match the PushChannel's prefix.
func NewPublishingRepository(
	inner ports.NotificationRepository,
	client redis.UniversalClient,
	prefix string,
	logger *slog.Logger,
) *PublishingRepository {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishingRepository{
		NotificationRepository: inner,
		client:                 client,
		prefix:                 prefix,
		logger:                 logger.With("component", "notification_publisher"),
	}
}

// Insert writes the row, then publishes it. A publish failure is logged, not returned,
// because the row is already stored and will show up on the next fetch.
func (r *PublishingRepository) Insert(
	ctx context.Context,
	p notification.Payload,
) (*notification.Notification, error) {
	row, err := r.NotificationRepository.Insert(ctx, p)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(row)
	if err != nil {
		r.logger.ErrorContext(ctx, "marshal notification for publish", "error", err, "notification_id", row.ID)
		return row, nil
	}
	channel := r.prefix + notification.ChannelKey(row.SubjectID)
	if pubErr := r.client.Publish(ctx, channel, body).Err(); pubErr != nil {
		r.logger.WarnContext(ctx, "publish notification failed", "error", pubErr, "notification_id", row.ID)
	}
	return row, nil
}
