// Package pg implements the persistence interfaces on Postgres via the
// pgx stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"covena.org/internal/auth"
	"covena.org/internal/directory"
	"covena.org/internal/ids"
	"covena.org/internal/violation"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

type Store struct {
	db *sql.DB
}

var (
	_ auth.IdentityStore     = (*Store)(nil)
	_ auth.RefreshTokenStore = (*Store)(nil)
	_ directory.Store        = (*Store)(nil)
	_ violation.Store        = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection, used by sqlmock tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// --- auth.IdentityStore ---

func (s *Store) CreateIdentity(ctx context.Context, email, passwordHash, status string) (auth.Identity, error) {
	var ident auth.Identity
	row := s.db.QueryRowContext(ctx, `
		insert into identities (id, email, password_hash, status)
		values ($1, $2, $3, $4)
		returning id, email, password_hash, status, created_at, updated_at
	`, ids.New(), email, passwordHash, status)
	if err := row.Scan(&ident.ID, &ident.Email, &ident.PasswordHash, &ident.Status, &ident.CreatedAt, &ident.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.Identity{}, auth.ErrConflict
		}
		return auth.Identity{}, err
	}
	return ident, nil
}

func (s *Store) GetIdentity(ctx context.Context, id string) (auth.Identity, error) {
	return s.identityBy(ctx, `id = $1`, id)
}

func (s *Store) GetIdentityByEmail(ctx context.Context, email string) (auth.Identity, error) {
	return s.identityBy(ctx, `email = $1`, email)
}

func (s *Store) identityBy(ctx context.Context, where, arg string) (auth.Identity, error) {
	var ident auth.Identity
	err := s.db.QueryRowContext(ctx, `
		select id, email, password_hash, status, created_at, updated_at
		from identities
		where `+where, arg).Scan(&ident.ID, &ident.Email, &ident.PasswordHash, &ident.Status, &ident.CreatedAt, &ident.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Identity{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Identity{}, err
	}
	return ident, nil
}

func (s *Store) DeleteIdentity(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from identities where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

// --- auth.RefreshTokenStore ---

func (s *Store) CreateRefreshToken(ctx context.Context, tok *auth.RefreshToken) error {
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens (id, identity_id, token_hash, expires_at, revoked)
		values ($1, $2, $3, $4, $5)
	`, tok.ID, tok.IdentityID, tok.TokenHash, tok.ExpiresAt, tok.Revoked)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return auth.ErrNotFound
	}
	return err
}

func (s *Store) GetRefreshToken(ctx context.Context, id string) (*auth.RefreshToken, error) {
	var tok auth.RefreshToken
	err := s.db.QueryRowContext(ctx, `
		select id, identity_id, token_hash, expires_at, created_at, revoked
		from refresh_tokens
		where id = $1
	`, id).Scan(&tok.ID, &tok.IdentityID, &tok.TokenHash, &tok.ExpiresAt, &tok.CreatedAt, &tok.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `update refresh_tokens set revoked = true where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) RevokeRefreshTokensByIdentity(ctx context.Context, identityID string) error {
	_, err := s.db.ExecContext(ctx, `update refresh_tokens set revoked = true where identity_id = $1`, identityID)
	return err
}

// --- helpers ---

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
