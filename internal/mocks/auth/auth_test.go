package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/siprak/portal/internal/domain/auth"
	"github.com/siprak/portal/internal/domain/notification"
)

func TestMockGateway_DefaultSignInEmits(t *testing.T) {
	gw := NewMockGateway("subject-1")
	ctx := context.Background()

	var events []domainauth.SessionEvent
	sub := gw.OnSessionChange(func(_ context.Context, ev domainauth.SessionEvent) { events = append(events, ev) })
	defer sub.Close()

	sess, err := gw.SignIn(ctx, domainauth.Credentials{Email: "a@b.c", Password: "x"})
	require.NoError(t, err)
	assert.Equal(t, "subject-1", sess.SubjectID)

	cur, ok, err := gw.CurrentSession(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, sess.ID, cur.ID)

	require.NoError(t, gw.SignOut(ctx))
	assert.Equal(t, []domainauth.SessionEvent{domainauth.SignedIn("subject-1"), domainauth.SignedOut()}, events)
	assert.Equal(t, []string{"SignIn", "CurrentSession", "SignOut"}, gw.Calls())
}

func TestMockGateway_FailuresDoNotEmit(t *testing.T) {
	gw := NewMockGateway("subject-1")
	gw.SignInFunc = func(context.Context, domainauth.Credentials) (domainauth.Session, error) {
		return domainauth.Session{}, domainauth.ErrInvalidCredentials
	}
	gw.SignOutFunc = func(context.Context) error { return errors.New("offline") }

	calls := 0
	gw.OnSessionChange(func(context.Context, domainauth.SessionEvent) { calls++ })

	_, err := gw.SignIn(context.Background(), domainauth.Credentials{})
	require.ErrorIs(t, err, domainauth.ErrInvalidCredentials)
	require.Error(t, gw.SignOut(context.Background()))
	assert.Zero(t, calls)
}

func TestMemorySessionStore(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	require.Error(t, store.Save(ctx, domainauth.Session{}))
	require.NoError(t, store.Save(ctx, domainauth.Session{ID: "a", SubjectID: "s1", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, store.Save(ctx, domainauth.Session{ID: "b", SubjectID: "s1"}))
	require.NoError(t, store.Save(ctx, domainauth.Session{ID: "c", SubjectID: "s2"}))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SubjectID)

	require.NoError(t, store.DeleteBySubject(ctx, "s1"))
	_, err = store.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryPushChannel(t *testing.T) {
	ch := NewMemoryPushChannel()
	subject := uuid.NewString()
	key := notification.ChannelKey(subject)

	assert.False(t, ch.Push(key, notification.Notification{ID: "n0"}))

	sub, err := ch.Open(context.Background(), key, notification.Filter(subject))
	require.NoError(t, err)
	assert.True(t, ch.Active(key))
	assert.True(t, ch.Push(key, notification.Notification{ID: "n1"}))
	assert.Equal(t, "n1", (<-sub.Events()).ID)

	sub.Close()
	sub.Close()
	assert.False(t, ch.Active(key))
	assert.False(t, ch.Push(key, notification.Notification{ID: "n2"}))
	assert.Equal(t, []string{key}, ch.Opened())

	_, err = ch.Open(context.Background(), key, "user_id=eq.nope")
	assert.Error(t, err)
}
