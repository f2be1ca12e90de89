package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/siprak/portal/internal/data/pgxutil"
	domainauth "github.com/siprak/portal/internal/domain/auth"
)

const profileColumns = `id, email, username, full_name, nim_nip, phone, avatar_url, birth_date, address,
	is_active, email_verified, last_login, created_at, updated_at`

const profileGetByIDQuery = `SELECT ` + profileColumns + ` FROM users_profile WHERE id = $1`

// ProfileRepo provides database operations for users_profile.
type ProfileRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewProfileRepo creates a new ProfileRepo with real time provider.
func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// NewProfileRepoWithTimeProvider creates a ProfileRepo with a custom time provider (useful for tests).
func NewProfileRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *ProfileRepo {
	return &ProfileRepo{DB: db, timeProvider: tp}
}

// GetByID retrieves a profile by subject id.
func (r *ProfileRepo) GetByID(ctx context.Context, subjectID string) (*domainauth.Profile, error) {
	var out domainauth.Profile
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, profileGetByIDQuery, subjectID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.Profile])
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &out, nil
}

// Create inserts the profile row written during registration.
func (r *ProfileRepo) Create(ctx context.Context, req domainauth.CreateProfileRequest) (*domainauth.Profile, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var nimNip *string
	if v := strings.TrimSpace(req.NimNip); v != "" {
		nimNip = &v
	}
	now := r.timeProvider.Now()

	var out domainauth.Profile
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO users_profile (id, email, full_name, nim_nip, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
			RETURNING `+profileColumns,
			req.ID, strings.TrimSpace(req.Email), strings.TrimSpace(req.FullName), nimNip, now,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.Profile])
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrProfileExists
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return &out, nil
}

// Update applies a partial patch and stamps updated_at.
func (r *ProfileRepo) Update(
	ctx context.Context,
	subjectID string,
	patch domainauth.ProfilePatch,
) (*domainauth.Profile, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	setClause, args := r.buildUpdateClause(patch)
	args = append(args, subjectID)
	query := "UPDATE users_profile SET " + setClause +
		" WHERE id = $" + strconv.Itoa(len(args)) + " RETURNING " + profileColumns

	var out domainauth.Profile
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.Profile])
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return &out, nil
}

// buildUpdateClause builds the SET clause for the non-nil patch fields plus updated_at.
func (r *ProfileRepo) buildUpdateClause(p domainauth.ProfilePatch) (string, []any) {
	setParts := make([]string, 0, 8)
	args := make([]any, 0, 9)
	add := func(col string, v any) {
		args = append(args, v)
		setParts = append(setParts, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if p.Username != nil {
		add("username", nullIfBlank(*p.Username))
	}
	if p.FullName != nil {
		add("full_name", strings.TrimSpace(*p.FullName))
	}
	if p.NimNip != nil {
		add("nim_nip", nullIfBlank(*p.NimNip))
	}
	if p.Phone != nil {
		add("phone", nullIfBlank(*p.Phone))
	}
	if p.AvatarURL != nil {
		add("avatar_url", nullIfBlank(*p.AvatarURL))
	}
	if p.BirthDate != nil {
		add("birth_date", *p.BirthDate)
	}
	if p.Address != nil {
		add("address", nullIfBlank(*p.Address))
	}
	add("updated_at", r.timeProvider.Now())

	return strings.Join(setParts, ", "), args
}

// TouchLastLogin records a successful sign-in.
func (r *ProfileRepo) TouchLastLogin(ctx context.Context, subjectID string) error {
	var affected int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx,
			`UPDATE users_profile SET last_login = $2 WHERE id = $1`, subjectID, r.timeProvider.Now())
		affected = tag.RowsAffected()
		return err
	})
	if isInvalidUUID(err) {
		return ErrProfileNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	if affected == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func nullIfBlank(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// isInvalidUUID reports a malformed id passed to a uuid column; such ids cannot match any row.
func isInvalidUUID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.InvalidTextRepresentation
}
