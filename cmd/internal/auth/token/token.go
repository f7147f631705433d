package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidSignature is returned when a token fails signature or authentication checks.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrMalformed is returned when a token cannot be decoded.
	ErrMalformed = errors.New("malformed token")

	// ErrExpired is returned when the token's expiry is in the past.
	ErrExpired = errors.New("token expired")

	// ErrConfig is returned for invalid issuer configuration.
	ErrConfig = errors.New("invalid token config")
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Format selects the wire format of issued tokens.
type Format string

const (
	FormatJWT    Format = "jwt"
	FormatPaseto Format = "paseto"
)

// MinSecretBytes is the minimum decoded key size.
const MinSecretBytes = 32

// Claims is the verified content of a token.
type Claims struct {
	Subject   string
	Role      string
	Type      Kind
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Token is an issued credential together with the claims it encodes.
type Token struct {
	Value  string
	Claims Claims
}

// Issuer issues and verifies tokens.
type Issuer interface {
	IssueAccess(userID, role string) (Token, error)
	IssueRefresh(userID string) (Token, error)
	Verify(raw string) (Claims, error)
}

// Config holds the key material and lifetimes for an Issuer.
type Config struct {
	Issuer     string
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

func (c Config) validate() error {
	if len(c.Secret) < MinSecretBytes {
		return fmt.Errorf("%w: secret must be at least %d bytes", ErrConfig, MinSecretBytes)
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("%w: ttl must be positive", ErrConfig)
	}
	return nil
}

func (c Config) clock() func() time.Time {
	if c.Now != nil {
		return c.Now
	}
	return time.Now
}

// New builds an Issuer for the requested format.
func New(format Format, cfg Config) (Issuer, error) {
	switch Format(strings.ToLower(strings.TrimSpace(string(format)))) {
	case FormatJWT, "":
		return NewJWTIssuer(cfg)
	case FormatPaseto:
		return NewPasetoIssuer(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrConfig, format)
	}
}

// DecodeSecret decodes a base64 key (standard or URL alphabet, padded or raw).
func DecodeSecret(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: secret is empty", ErrConfig)
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		b, err := enc.DecodeString(s)
		if err != nil {
			continue
		}
		if len(b) < MinSecretBytes {
			return nil, fmt.Errorf("%w: secret must decode to at least %d bytes", ErrConfig, MinSecretBytes)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: secret is not valid base64", ErrConfig)
}

// checkExpiry rejects claims whose expiry is strictly before now.
func checkExpiry(c Claims, now time.Time) error {
	if c.ExpiresAt.IsZero() {
		return ErrMalformed
	}
	if now.After(c.ExpiresAt) {
		return ErrExpired
	}
	return nil
}

func validKind(k Kind) bool { return k == KindAccess || k == KindRefresh }
