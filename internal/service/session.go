package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/repository"
	"github.com/iliyamo/storefront/internal/utils"
)

// SessionStore is the keyed persistent table behind admin sessions.
// Find returns repository.ErrNotFound for unknown hashes.
type SessionStore interface {
	Save(ctx context.Context, s *model.Session) error
	Find(ctx context.Context, tokenHash string) (*model.Session, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ClientMeta is recorded on a session for the admin's own reference.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// AdminContext is what the authorization gate hands to admin handlers.
type AdminContext struct {
	Token   string
	Session *model.Session
}

// SessionAuthority issues, validates and revokes admin sessions.
type SessionAuthority struct {
	store  SessionStore
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

func NewSessionAuthority(store SessionStore, ttl time.Duration, logger *zap.Logger) *SessionAuthority {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionAuthority{store: store, ttl: ttl, now: time.Now, logger: logger}
}

// TTL is the lifetime given to new sessions.
func (a *SessionAuthority) TTL() time.Duration { return a.ttl }

// Issue creates a fresh admin session and returns its raw token.  Every
// call yields a new random token.
func (a *SessionAuthority) Issue(ctx context.Context, meta ClientMeta) (string, *model.Session, error) {
	token, err := utils.NewSessionToken()
	if err != nil {
		return "", nil, err
	}
	now := a.now().UTC()
	s := &model.Session{
		TokenHash: utils.HashToken(token),
		IsAdmin:   true,
		IPAddress: meta.IP,
		UserAgent: truncate(meta.UserAgent, 512),
		CreatedAt: now,
		ExpiresAt: now.Add(a.ttl),
	}
	if err := a.store.Save(ctx, s); err != nil {
		return "", nil, err
	}
	return token, s, nil
}

// Validate resolves a raw token.  Empty, unknown, revoked and expired
// tokens all yield a nil session and no error; only store failures error.
func (a *SessionAuthority) Validate(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, nil
	}
	hash := utils.HashToken(token)
	s, err := a.store.Find(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.Expired(a.now()) {
		// the session is dead either way; the cron prune retries the delete
		if err := a.store.Delete(ctx, hash); err != nil {
			a.logger.Warn("expired session delete failed", zap.Error(err))
		}
		return nil, nil
	}
	return s, nil
}

// Authorize is the single admin predicate: it succeeds only for a live
// session with IsAdmin set.
func (a *SessionAuthority) Authorize(ctx context.Context, token string) (AdminContext, error) {
	s, err := a.Validate(ctx, token)
	if err != nil {
		return AdminContext{}, err
	}
	if s == nil || !s.IsAdmin {
		return AdminContext{}, ErrUnauthorized
	}
	return AdminContext{Token: token, Session: s}, nil
}

// Revoke destroys the session behind token.  Revoking twice is harmless.
func (a *SessionAuthority) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return a.store.Delete(ctx, utils.HashToken(token))
}

// Prune deletes expired sessions and reports how many were removed.
func (a *SessionAuthority) Prune(ctx context.Context) (int64, error) {
	return a.store.DeleteExpired(ctx, a.now())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
