package session

import "errors"

var (
	// ErrNotFound is returned when a token has no active row. Revoked and unknown
	// tokens are reported identically.
	ErrNotFound = errors.New("session not found")

	// ErrDuplicate is returned when a token digest is already persisted.
	ErrDuplicate = errors.New("session token already exists")

	// ErrInvalidInput is returned for empty user ids or tokens.
	ErrInvalidInput = errors.New("invalid session input")
)
