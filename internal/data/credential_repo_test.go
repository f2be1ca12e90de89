package data

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/siprak/portal/internal/testutil"
)

func TestCredentialRepo_CreateLookupUpdate(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewCredentialRepo(db)

		cred, err := repo.Create(ctx, "Budi@Kampus.ac.id", "hash-1")
		require.NoError(t, err)
		require.NotEmpty(t, cred.ID)

		_, err = repo.Create(ctx, "budi@kampus.ac.id", "hash-2")
		require.ErrorIs(t, err, ErrEmailTaken)

		got, err := repo.GetByEmail(ctx, "budi@KAMPUS.ac.id")
		require.NoError(t, err)
		assert.Equal(t, cred.ID, got.ID)
		assert.Equal(t, "hash-1", got.PasswordHash)

		require.NoError(t, repo.UpdatePassword(ctx, cred.ID, "hash-3"))
		got, err = repo.GetByID(ctx, cred.ID)
		require.NoError(t, err)
		assert.Equal(t, "hash-3", got.PasswordHash)

		_, err = repo.GetByEmail(ctx, "nobody@kampus.ac.id")
		require.ErrorIs(t, err, ErrCredentialNotFound)
		require.ErrorIs(t, repo.UpdatePassword(ctx, uuid.NewString(), "x"), ErrCredentialNotFound)
	})
}
