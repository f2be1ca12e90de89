package migrate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiles_SortedAndEmbedded(t *testing.T) {
	files, err := Files()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "0001_portal_schema.sql", files[0])

	for i := 1; i < len(files); i++ {
		assert.Less(t, files[i-1], files[i])
	}
}

func TestSchema_DeclaresNotifyTrigger(t *testing.T) {
	body, err := migrationsFS.ReadFile("migrations/0001_portal_schema.sql")
	require.NoError(t, err)

	sql := string(body)
	assert.True(t, strings.Contains(sql, "'notifications-channel-for-' || NEW.user_id::text"))
	for _, table := range []string{"users_profile", "roles", "user_roles", "permissions", "role_permissions", "credentials", "notifications"} {
		assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
}
