package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/siprak/portal/internal/domain/auth"
	"github.com/siprak/portal/internal/domain/notification"
)

func TestPrintUsageListsEveryCommand(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))

	out := buf.String()
	for name := range commands() {
		assert.Contains(t, out, "  "+name)
	}
	assert.True(t, strings.HasPrefix(out, "Usage: portal"))
}

func TestPrintNotifications(t *testing.T) {
	list := []notification.Notification{
		{ID: "n2", Title: "Nilai keluar", Message: "Modul 2: A", Kind: notification.KindSuccess, Priority: notification.PriorityHigh},
		{ID: "n1", Title: "Jadwal praktikum", Kind: notification.KindInfo, Priority: notification.PriorityNormal, Read: true},
	}

	var all bytes.Buffer
	require.NoError(t, printNotifications(&all, list, false))
	assert.Contains(t, all.String(), "2 notifications, 1 unread")
	assert.Contains(t, all.String(), "Nilai keluar: Modul 2: A")
	assert.Contains(t, all.String(), "Jadwal praktikum")

	var unread bytes.Buffer
	require.NoError(t, printNotifications(&unread, list, true))
	assert.Contains(t, unread.String(), "n2")
	assert.NotContains(t, unread.String(), "Jadwal praktikum")
}

func TestFormatNotificationRowMarksUnread(t *testing.T) {
	row := formatNotificationRow(notification.Notification{ID: "n1", Title: "Hai", Kind: notification.KindQuiz})
	assert.True(t, strings.HasPrefix(row, "*\tn1\tquiz"))

	row = formatNotificationRow(notification.Notification{ID: "n1", Title: "Hai", Read: true})
	assert.True(t, strings.HasPrefix(row, " \t"))
}

func TestCredentialFlags(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	creds := addCredentialFlags(fs)
	require.NoError(t, fs.Parse([]string{"--email", " mhs@kampus.ac.id "}))
	t.Setenv(passwordEnv, "dari-env")

	c, err := creds.credentials()
	require.NoError(t, err)
	assert.Equal(t, domainauth.Credentials{Email: "mhs@kampus.ac.id", Password: "dari-env"}, c)

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	creds = addCredentialFlags(fs)
	require.NoError(t, fs.Parse(nil))
	_, err = creds.credentials()
	assert.Error(t, err)
}

func TestProfileFlagsPatch(t *testing.T) {
	parse := func(args ...string) (domainauth.ProfilePatch, error) {
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		var p profileFlags
		p.register(fs)
		require.NoError(t, fs.Parse(args))
		return p.patch(fs)
	}

	patch, err := parse("--phone", "0812", "--birth-date", "2003-04-05")
	require.NoError(t, err)
	require.NotNil(t, patch.Phone)
	assert.Equal(t, "0812", *patch.Phone)
	require.NotNil(t, patch.BirthDate)
	assert.Equal(t, time.Date(2003, 4, 5, 0, 0, 0, 0, time.UTC), *patch.BirthDate)
	assert.Nil(t, patch.FullName)

	patch, err = parse("--address", "")
	require.NoError(t, err, "an explicitly empty value is still an edit")
	require.NotNil(t, patch.Address)

	_, err = parse()
	assert.Error(t, err)

	_, err = parse("--birth-date", "05/04/2003")
	assert.Error(t, err)
}

func TestEvery(t *testing.T) {
	require.NoError(t, every(context.Background(), 0, func() error {
		t.Fatal("zero interval must not tick")
		return nil
	}))

	calls := 0
	err := every(context.Background(), time.Millisecond, func() error {
		calls++
		if calls == 3 {
			return errStopLoop
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	boom := errors.New("boom")
	err = every(context.Background(), time.Millisecond, func() error { return boom })
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, every(ctx, time.Hour, func() error { return boom }))
}
