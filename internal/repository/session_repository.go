package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/iliyamo/storefront/internal/database"
	"github.com/iliyamo/storefront/internal/model"
)

// SessionRepo persists admin sessions in the `sessions` table, keyed by the
// SHA-256 hash of the raw token.  Timestamps are stored as Unix
// milliseconds so every engine round-trips them identically.
type SessionRepo struct{ db *database.DB }

func NewSessionRepo(db *database.DB) *SessionRepo { return &SessionRepo{db: db} }

// Save inserts or replaces the session row.
func (r *SessionRepo) Save(ctx context.Context, s *model.Session) error {
	if _, err := r.db.ExecContext(ctx, r.db.Dialect.Rebind("DELETE FROM sessions WHERE token_hash = ?"), s.TokenHash); err != nil {
		return errors.Wrap(err, "replace session")
	}
	_, err := r.db.ExecContext(ctx,
		r.db.Dialect.Rebind("INSERT INTO sessions (token_hash, is_admin, ip_address, user_agent, created_at, expires_at) VALUES (?,?,?,?,?,?)"),
		s.TokenHash, s.IsAdmin, s.IPAddress, s.UserAgent, s.CreatedAt.UnixMilli(), s.ExpiresAt.UnixMilli())
	return errors.Wrap(err, "insert session")
}

// Find returns the session stored under tokenHash or ErrNotFound.
func (r *SessionRepo) Find(ctx context.Context, tokenHash string) (*model.Session, error) {
	var (
		s                  model.Session
		created, expiresAt int64
	)
	err := r.db.QueryRowContext(ctx,
		r.db.Dialect.Rebind("SELECT token_hash, is_admin, ip_address, user_agent, created_at, expires_at FROM sessions WHERE token_hash = ?"),
		tokenHash).Scan(&s.TokenHash, &s.IsAdmin, &s.IPAddress, &s.UserAgent, &created, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "select session")
	}
	s.CreatedAt = time.UnixMilli(created).UTC()
	s.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	return &s, nil
}

// Delete removes the session; deleting an unknown hash is not an error.
func (r *SessionRepo) Delete(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, r.db.Dialect.Rebind("DELETE FROM sessions WHERE token_hash = ?"), tokenHash)
	return errors.Wrap(err, "delete session")
}

// DeleteExpired removes every session whose expiry is at or before now.
func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Dialect.Rebind("DELETE FROM sessions WHERE expires_at <= ?"), now.UnixMilli())
	if err != nil {
		return 0, errors.Wrap(err, "prune sessions")
	}
	n, _ := res.RowsAffected()
	return n, nil
}
