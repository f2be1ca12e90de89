package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/siprak/portal/internal/domain/notification"
	"github.com/siprak/portal/internal/ports"
)

// stubRepo returns the inserted payload as a row without touching a database.
type stubRepo struct {
	ports.NotificationRepository
	inserted []notification.Payload
}

func (s *stubRepo) Insert(_ context.Context, p notification.Payload) (*notification.Notification, error) {
	s.inserted = append(s.inserted, p)
	return &notification.Notification{
		ID:        uuid.NewString(),
		SubjectID: p.SubjectID,
		Title:     p.Title,
		Message:   p.Message,
		Kind:      p.Kind,
		Priority:  notification.PriorityNormal,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func TestPushChannel_RoundTripThroughPublisher(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	subject := uuid.NewString()
	channel := NewPushChannel(client, PushChannelOptions{})
	sub, err := channel.Open(ctx, notification.ChannelKey(subject), notification.Filter(subject))
	require.NoError(t, err)
	defer sub.Close()

	repo := NewPublishingRepository(&stubRepo{}, client, "", nil)
	p, err := notification.NewPayload(subject, "Maintenance", "Lab closed Friday", notification.KindMaintenance)
	require.NoError(t, err)
	row, err := repo.Insert(ctx, p)
	require.NoError(t, err)

	select {
	case got := <-sub.Events():
		assert.Equal(t, row.ID, got.ID)
		assert.Equal(t, notification.KindMaintenance, got.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for push event")
	}
}

func TestPushChannel_DropsForeignAndMalformed(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	subject := uuid.NewString()
	key := notification.ChannelKey(subject)
	sub, err := NewPushChannel(client, PushChannelOptions{}).Open(ctx, key, notification.Filter(subject))
	require.NoError(t, err)

	foreign, err := json.Marshal(notification.Notification{ID: "x", SubjectID: uuid.NewString(), Title: "t"})
	require.NoError(t, err)
	require.NoError(t, client.Publish(ctx, DefaultChannelPrefix+key, foreign).Err())
	require.NoError(t, client.Publish(ctx, DefaultChannelPrefix+key, "{not json").Err())

	select {
	case n := <-sub.Events():
		t.Fatalf("unexpected event %+v", n)
	case <-time.After(300 * time.Millisecond):
	}

	sub.Close()
	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestPushChannel_OpenValidatesFilter(t *testing.T) {
	c := NewPushChannel(nil, PushChannelOptions{})
	id := uuid.NewString()

	_, err := c.Open(context.Background(), notification.ChannelKey(id), "user_id=eq.bad")
	require.Error(t, err)
	_, err = c.Open(context.Background(), "other-channel", notification.Filter(id))
	require.Error(t, err)
}
