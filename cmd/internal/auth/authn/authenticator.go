package authn

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"community/cmd/identity"
	"community/cmd/internal/auth/session"
	"community/cmd/internal/auth/token"
)

var (
	// ErrNoCredentials means the request carried nothing to verify.
	ErrNoCredentials = errors.New("authn: no credentials")
	// ErrRejected means credentials were present but did not verify.
	ErrRejected = errors.New("authn: credentials rejected")
)

// Cookie names shared with the HTTP auth boundary.
const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// Authenticator resolves a request to an Identity.
type Authenticator interface {
	Authenticate(r *http.Request) (Identity, error)
}

// AccessToken extracts a bearer token from the Authorization header, falling back
// to the access cookie.
func AccessToken(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		scheme, rest, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			if v := strings.TrimSpace(rest); v != "" {
				return v
			}
		}
	}
	return cookieValue(r, AccessCookie)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

// TokenAuthenticator verifies a stateless access token. It performs no I/O.
type TokenAuthenticator struct {
	Issuer token.Issuer
}

func (a TokenAuthenticator) Authenticate(r *http.Request) (Identity, error) {
	raw := AccessToken(r)
	if raw == "" {
		return Identity{}, ErrNoCredentials
	}
	c, err := a.Issuer.Verify(raw)
	if err != nil {
		return Identity{}, errors.Join(ErrRejected, err)
	}
	if c.Type != token.KindAccess || c.Subject == "" {
		return Identity{}, ErrRejected
	}
	return Identity{UserID: c.Subject, Role: c.Role}, nil
}

// StoreAuthenticator resolves the refresh cookie through the session store and reads
// the current role from the user directory.
type StoreAuthenticator struct {
	Store     session.Store
	Directory identity.Directory
	Now       func() time.Time
}

func (a StoreAuthenticator) Authenticate(r *http.Request) (Identity, error) {
	raw := cookieValue(r, RefreshCookie)
	if raw == "" {
		return Identity{}, ErrNoCredentials
	}

	ctx := r.Context()
	row, err := a.Store.FindActive(ctx, raw)
	if err != nil {
		return Identity{}, errors.Join(ErrRejected, err)
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	if !row.ActiveAt(now()) {
		return Identity{}, ErrRejected
	}

	u, err := a.Directory.FindByID(ctx, row.UserID)
	if err != nil {
		return Identity{}, errors.Join(ErrRejected, err)
	}
	return Identity{UserID: u.ID, Role: string(u.Role)}, nil
}
