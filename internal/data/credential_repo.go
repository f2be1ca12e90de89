package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/siprak/portal/internal/data/pgxutil"
)

// Credential is a locally managed email/password login.
type Credential struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

const credentialColumns = `id, email, password_hash, created_at, updated_at`

// CredentialRepo stores password hashes for the local credential gateway.
type CredentialRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewCredentialRepo creates a new CredentialRepo.
func NewCredentialRepo(db *sql.DB) *CredentialRepo {
	return &CredentialRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// Create stores a new credential and returns its id, which becomes the subject id.
func (r *CredentialRepo) Create(ctx context.Context, email, passwordHash string) (*Credential, error) {
	email = strings.TrimSpace(email)
	if email == "" || passwordHash == "" {
		return nil, errors.New("email and password hash are required")
	}
	now := r.timeProvider.Now()

	var out Credential
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO credentials (email, password_hash, created_at, updated_at)
			VALUES ($1, $2, $3, $3)
			RETURNING `+credentialColumns, email, passwordHash, now)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[Credential])
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}
	return &out, nil
}

// GetByEmail looks a credential up case-insensitively.
func (r *CredentialRepo) GetByEmail(ctx context.Context, email string) (*Credential, error) {
	return r.getOne(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE lower(email) = lower($1)`,
		strings.TrimSpace(email))
}

// GetByID looks a credential up by id.
func (r *CredentialRepo) GetByID(ctx context.Context, id string) (*Credential, error) {
	return r.getOne(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE id = $1`, id)
}

func (r *CredentialRepo) getOne(ctx context.Context, query string, arg any) (*Credential, error) {
	var out Credential
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, arg)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[Credential])
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &out, nil
}

// UpdatePassword replaces the stored hash.
func (r *CredentialRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	var affected int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx,
			`UPDATE credentials SET password_hash = $2, updated_at = $3 WHERE id = $1`,
			id, passwordHash, r.timeProvider.Now())
		affected = tag.RowsAffected()
		return err
	})
	if isInvalidUUID(err) {
		return ErrCredentialNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if affected == 0 {
		return ErrCredentialNotFound
	}
	return nil
}
