package flow

import (
	"errors"
	"fmt"
	"time"
)

// Failure kinds returned by Service. None of them are retried.
var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingToken       = errors.New("missing refresh token")
	ErrInvalidToken       = errors.New("invalid refresh token")
	ErrExpired            = errors.New("expired refresh token")
	ErrRateLimited        = errors.New("too many login attempts")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

func (e ValidationError) Unwrap() error { return ErrValidation }

// RateLimitError carries the suggested wait before retrying.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e RateLimitError) Error() string { return ErrRateLimited.Error() }

func (e RateLimitError) Unwrap() error { return ErrRateLimited }

// outcome maps an operation result to a stable label for metrics and spans.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrMissingToken):
		return "missing_token"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}
