package data

import (
	"context"
	"database/sql"

	"github.com/siprak/portal/internal/migrate"
)

// RunMigrations applies the portal schema by delegating to the migrate package.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrate.Run(ctx, db)
}

// PendingMigrations lists migration files not applied yet.
func PendingMigrations(ctx context.Context, db *sql.DB) ([]string, error) {
	return migrate.Pending(ctx, db)
}
