package console

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/siprak/portal/internal/ports"
)

func TestNavigator_PrintsRouteChanges(t *testing.T) {
	var buf bytes.Buffer
	nav := NewNavigator(&buf)
	ctx := context.Background()

	nav.Navigate(ctx, "/login")
	nav.Navigate(ctx, "/login")
	nav.Navigate(ctx, "/mahasiswa")

	assert.Equal(t, "→ /login\n→ /mahasiswa\n", buf.String())
	assert.Equal(t, "/mahasiswa", nav.Current())
}

func TestAlerter_Format(t *testing.T) {
	var buf bytes.Buffer
	a := NewAlerter(&buf)
	ctx := context.Background()

	a.Alert(ctx, ports.Alert{Level: ports.AlertSuccess, Title: "All notifications marked as read"})
	a.Alert(ctx, ports.Alert{Level: ports.AlertInfo, Title: "Booking approved", Message: "Lab 2, Friday"})

	assert.Equal(t, "[SUCCESS] All notifications marked as read\n[INFO] Booking approved: Lab 2, Friday\n", buf.String())
}

func TestResetLogger_LogsLink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	require.NoError(t, NewResetLogger(logger).SendReset(context.Background(), "a@kampus.ac.id", "https://x/reset?token=t"))
	assert.Contains(t, buf.String(), `"link":"https://x/reset?token=t"`)
	assert.Contains(t, buf.String(), `"component":"reset_sender"`)
}
