// Package service holds the request level operations of the storefront:
// the catalog rules, the admin session authority and the login throttle.
package service

import "errors"

// ErrUnauthorized means the caller has no live admin session.
var ErrUnauthorized = errors.New("unauthorized")

// ValidationError reports a missing or malformed input field.  Its message
// is safe to show to the client.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(msg string) error { return &ValidationError{Msg: msg} }
