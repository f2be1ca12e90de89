package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/siprak/portal/internal/domain/auth"
	"github.com/siprak/portal/internal/testutil"
)

func TestProfileRepo_Create_Get_Update_TouchLastLogin(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()
		clock := NewFixedTimeProvider(testutil.TestTime())
		repo := NewProfileRepoWithTimeProvider(db, clock)

		id := uuid.NewString()
		created, err := repo.Create(ctx, domainauth.CreateProfileRequest{
			ID:       id,
			Email:    "siti@kampus.ac.id",
			FullName: "Siti Aminah",
			NimNip:   "2201001",
		})
		require.NoError(t, err)
		assert.Equal(t, id, created.ID)
		assert.True(t, created.Active)
		assert.False(t, created.EmailVerified)
		require.NotNil(t, created.NimNip)
		assert.Equal(t, "2201001", *created.NimNip)

		_, err = repo.Create(ctx, domainauth.CreateProfileRequest{ID: id, Email: "x@y.z", FullName: "Dup"})
		require.ErrorIs(t, err, ErrProfileExists)

		got, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Siti Aminah", got.FullName)
		assert.Nil(t, got.LastLogin)

		clock.AddTime(time.Hour)
		updated, err := repo.Update(ctx, id, domainauth.ProfilePatch{
			Phone:    testutil.StringPtr("0812-555"),
			FullName: testutil.StringPtr("Siti A."),
		})
		require.NoError(t, err)
		assert.Equal(t, "Siti A.", updated.FullName)
		require.NotNil(t, updated.Phone)
		assert.True(t, updated.UpdatedAt.Equal(testutil.TestTime().Add(time.Hour)))

		require.NoError(t, repo.TouchLastLogin(ctx, id))
		got, err = repo.GetByID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got.LastLogin)
	})
}

func TestProfileRepo_NotFound(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := NewProfileRepo(db)

		_, err := repo.GetByID(ctx, uuid.NewString())
		require.ErrorIs(t, err, ErrProfileNotFound)

		_, err = repo.GetByID(ctx, "not-a-uuid")
		require.ErrorIs(t, err, ErrProfileNotFound)

		require.ErrorIs(t, repo.TouchLastLogin(ctx, uuid.NewString()), ErrProfileNotFound)

		_, err = repo.Update(ctx, uuid.NewString(), domainauth.ProfilePatch{Address: testutil.StringPtr("Jl. Merdeka")})
		require.ErrorIs(t, err, ErrProfileNotFound)
	})
}
