package session

import (
	"context"
	"strings"
	"time"
)

// Revocation reasons recorded alongside the revoked flag.
const (
	ReasonLogout     = "logout"
	ReasonSuperseded = "superseded"
	ReasonExpired    = "expired"
)

// Device is the client context captured when a session is created.
type Device struct {
	UserAgent string
	IP        string
}

// Row mirrors a refresh_tokens row.
type Row struct {
	ID               string
	UserID           string
	TokenHash        string
	ExpiresAt        time.Time
	Revoked          bool
	RevokedAt        *time.Time
	RevocationReason string
	UserAgent        string
	IP               string
	CreatedAt        time.Time
}

// ActiveAt reports whether the row is usable at now.
func (r Row) ActiveAt(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

// Store abstracts persistence for refresh tokens.
type Store interface {
	// Persist inserts a new unrevoked row.
	Persist(ctx context.Context, now time.Time, userID, token string, expiresAt time.Time, dev Device) (Row, error)

	// FindActive returns the row for token if it is not revoked. Expiry is not checked.
	FindActive(ctx context.Context, token string) (Row, error)

	// Lookup returns the row for token regardless of revocation.
	Lookup(ctx context.Context, token string) (Row, error)

	// RevokeAllForUser revokes every active row for userID and reports how many flipped.
	RevokeAllForUser(ctx context.Context, now time.Time, userID, reason string) (int64, error)

	// Revoke revokes a single row. Absent or already revoked tokens are not an error;
	// the bool reports whether a row flipped.
	Revoke(ctx context.Context, now time.Time, token, reason string) (bool, error)

	// ReplaceForUser revokes all of userID's rows and persists token in one transaction.
	ReplaceForUser(ctx context.Context, now time.Time, userID, token string, expiresAt time.Time, dev Device) (Row, int64, error)

	Close() error
}

func validate(userID, token string) error {
	if strings.TrimSpace(userID) == "" || token == "" {
		return ErrInvalidInput
	}
	return nil
}

func trimTo(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n]
	}
	return s
}
