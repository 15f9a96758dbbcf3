package utils // package utils provides helpers for session tokens and hashing

import (
	"crypto/rand"   // secure random number generation
	"crypto/sha256" // SHA-256 hashing for stored session tokens
	"encoding/hex"  // hex encoding and decoding functions
	"errors"        // sentinel for malformed cookies
	"time"          // expiry of the signed cookie

	"github.com/golang-jwt/jwt/v5" // JWT library used to sign the session cookie
)

// ErrInvalidCookie is returned for cookies that are unsigned, signed with a
// different secret, expired or missing the session id.
var ErrInvalidCookie = errors.New("invalid session cookie")

// NewSessionToken returns a random 32-byte hex token.  The raw value goes to
// the client (inside the signed cookie); only HashToken(raw) is stored.
func NewSessionToken() (string, error) {
	return randomHex(32)
}

// HashToken returns the SHA-256 hash of a raw token as a hex string.
// Storing only the hash keeps a leaked session table from being replayed.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// SignSessionCookie wraps the raw session token into an HS256 JWT so the
// cookie cannot be forged or altered without the session secret.  The sid
// claim carries the token; exp mirrors the server side expiry.
func SignSessionCookie(secret, token string, exp time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sid": token,
		"iat": time.Now().UTC().Unix(),
		"exp": exp.UTC().Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}

// ParseSessionCookie verifies a cookie produced by SignSessionCookie and
// returns the raw session token.
func ParseSessionCookie(secret, value string) (string, error) {
	if value == "" {
		return "", ErrInvalidCookie
	}
	tok, err := jwt.Parse(value, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return "", ErrInvalidCookie
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidCookie
	}
	sid, _ := claims["sid"].(string)
	if sid == "" {
		return "", ErrInvalidCookie
	}
	return sid, nil
}

// randomHex returns a hex string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
