package ports_test

import (
	"testing"

	"github.com/siprak/portal/internal/adapters/authroles"
	"github.com/siprak/portal/internal/adapters/console"
	mocks "github.com/siprak/portal/internal/mocks/auth"
	"github.com/siprak/portal/internal/ports"
)

// This test only verifies that our doubles conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.CredentialGateway = (*mocks.MockGateway)(nil)
	var _ ports.SessionStore = (*mocks.MemorySessionStore)(nil)
	var _ ports.SnapshotResolver = (*mocks.MockResolver)(nil)
	var _ ports.Navigator = (*mocks.RecordingNavigator)(nil)
	var _ ports.Alerter = (*mocks.RecordingAlerter)(nil)
	var _ ports.PushChannel = (*mocks.MemoryPushChannel)(nil)
	var _ ports.RouteMapper = authroles.RouteTable{}
	var _ ports.Navigator = (*console.Navigator)(nil)
	var _ ports.Alerter = (*console.Alerter)(nil)
}
