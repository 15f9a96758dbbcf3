package model

import "time"

// Session is the server side record behind an admin cookie.  The client
// only ever holds the raw token; the store keeps its SHA-256 hash.
type Session struct {
    TokenHash string    `json:"-"`
    IsAdmin   bool      `json:"is_admin"`
    IPAddress string    `json:"ip_address"`
    UserAgent string    `json:"user_agent"`
    CreatedAt time.Time `json:"created_at"`
    ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
    return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
