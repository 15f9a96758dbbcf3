// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios without
// inspecting driver specific errors.
package repository

import "errors"

// ErrNotFound is returned when the addressed row does not exist.
// Handlers translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert or update would break a unique
// constraint, such as a second product with the same slug. Handlers
// translate it into an HTTP 409 response.
var ErrConflict = errors.New("conflict")
