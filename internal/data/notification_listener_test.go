package data

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/siprak/portal/internal/domain/notification"
	"github.com/siprak/portal/internal/testutil"
)

func TestNotificationListener_RejectsMismatchedChannel(t *testing.T) {
	l := NewNotificationListener(nil, NotificationListenerOptions{})
	id := uuid.NewString()

	_, err := l.Open(context.Background(), notification.ChannelKey(uuid.NewString()), notification.Filter(id))
	require.Error(t, err)

	_, err = l.Open(context.Background(), notification.ChannelKey(id), "user_id=neq."+id)
	require.Error(t, err)
}

func TestParseInsertEvent(t *testing.T) {
	ev, err := parseInsertEvent(`{"id":"n-1","user_id":"u-1"}`)
	require.NoError(t, err)
	assert.Equal(t, insertEvent{ID: "n-1", UserID: "u-1"}, ev)

	for _, payload := range []string{`not json`, `{"id":"n-1"}`, `{"user_id":"u-1"}`} {
		_, err := parseInsertEvent(payload)
		assert.Error(t, err, payload)
	}
}

func TestNotificationListener_DeliversInsertsForSubject(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewNotificationRepo(db)
		l := NewNotificationListener(db, NotificationListenerOptions{WaitWindow: 200 * time.Millisecond})

		subject := uuid.NewString()
		sub, err := l.Open(ctx, notification.ChannelKey(subject), notification.Filter(subject))
		require.NoError(t, err)

		other, err := notification.NewPayload(uuid.NewString(), "not yours", "", notification.KindInfo)
		require.NoError(t, err)
		_, err = repo.Insert(ctx, other)
		require.NoError(t, err)

		mine, err := notification.NewPayload(subject, "Booking approved", "Lab 2, 10:00", notification.KindBooking)
		require.NoError(t, err)
		inserted, err := repo.Insert(ctx, mine)
		require.NoError(t, err)

		select {
		case got := <-sub.Events():
			assert.Equal(t, inserted.ID, got.ID)
			assert.Equal(t, "Booking approved", got.Title)
			assert.Equal(t, notification.KindBooking, got.Kind)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for push event")
		}

		long, err := notification.NewPayload(subject, "Rekap nilai", strings.Repeat("x", 10*1024), notification.KindInfo)
		require.NoError(t, err)
		insertedLong, err := repo.Insert(ctx, long)
		require.NoError(t, err)

		select {
		case got := <-sub.Events():
			assert.Equal(t, insertedLong.ID, got.ID)
			assert.Len(t, got.Message, 10*1024)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for large push event")
		}

		sub.Close()
		_, open := <-sub.Events()
		assert.False(t, open, "events channel must be closed after Close")
		sub.Close()
	})
}
