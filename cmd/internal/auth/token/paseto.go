package token

import (
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strings"
	"time"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const (
	pasetoHeader   = "v4.local."
	pasetoKeyInfo  = "community/paseto/v4.local"
	pasetoMinBytes = 32 + 32 // nonce + tag
)

// PasetoIssuer encrypts PASETO v4.local tokens.
type PasetoIssuer struct {
	issuer     string
	key        paseto.V4SymmetricKey
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewPasetoIssuer derives a 32-byte symmetric key from cfg.Secret with HKDF-SHA256.
func NewPasetoIssuer(cfg Config) (*PasetoIssuer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	derived := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, cfg.Secret, nil, []byte(pasetoKeyInfo)), derived); err != nil {
		return nil, ErrConfig
	}
	key, err := paseto.V4SymmetricKeyFromBytes(derived)
	if err != nil {
		return nil, ErrConfig
	}

	return &PasetoIssuer{
		issuer:     cfg.Issuer,
		key:        key,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.clock(),
	}, nil
}

func (i *PasetoIssuer) IssueAccess(userID, role string) (Token, error) {
	return i.issue(Claims{Subject: userID, Role: role, Type: KindAccess}, i.accessTTL)
}

func (i *PasetoIssuer) IssueRefresh(userID string) (Token, error) {
	return i.issue(Claims{Subject: userID, Type: KindRefresh, ID: uuid.NewString()}, i.refreshTTL)
}

func (i *PasetoIssuer) issue(c Claims, ttl time.Duration) (Token, error) {
	// Registered time claims are RFC 3339 with second precision.
	now := i.now().UTC().Truncate(time.Second)
	c.IssuedAt = now
	c.ExpiresAt = now.Add(ttl)

	tok := paseto.NewToken()
	if i.issuer != "" {
		tok.SetIssuer(i.issuer)
	}
	tok.SetSubject(c.Subject)
	tok.SetIssuedAt(c.IssuedAt)
	tok.SetExpiration(c.ExpiresAt)
	tok.SetString("typ", string(c.Type))
	if c.Role != "" {
		tok.SetString("role", c.Role)
	}
	if c.ID != "" {
		tok.SetJti(c.ID)
	}

	return Token{Value: tok.V4Encrypt(i.key, nil), Claims: c}, nil
}

func (i *PasetoIssuer) Verify(raw string) (Claims, error) {
	if !wellFormedPaseto(raw) {
		return Claims{}, ErrMalformed
	}

	// Expiry is checked below against the issuer clock so both formats behave the same.
	p := paseto.NewParserWithoutExpiryCheck()
	parsed, err := p.ParseV4Local(i.key, raw, nil)
	if err != nil {
		return Claims{}, ErrInvalidSignature
	}

	if i.issuer != "" {
		if iss, err := parsed.GetIssuer(); err != nil || iss != i.issuer {
			return Claims{}, ErrInvalidSignature
		}
	}

	sub, err := parsed.GetSubject()
	if err != nil || sub == "" {
		return Claims{}, ErrMalformed
	}
	typ, err := parsed.GetString("typ")
	if err != nil || !validKind(Kind(typ)) {
		return Claims{}, ErrMalformed
	}
	exp, err := parsed.GetExpiration()
	if err != nil {
		return Claims{}, ErrMalformed
	}

	c := Claims{
		Subject:   sub,
		Type:      Kind(typ),
		ExpiresAt: exp.UTC(),
	}
	if role, err := parsed.GetString("role"); err == nil {
		c.Role = role
	}
	if jti, err := parsed.GetJti(); err == nil {
		c.ID = jti
	}
	if iat, err := parsed.GetIssuedAt(); err == nil {
		c.IssuedAt = iat.UTC()
	}

	if err := checkExpiry(c, i.now()); err != nil {
		return Claims{}, err
	}
	return c, nil
}

func wellFormedPaseto(raw string) bool {
	if !strings.HasPrefix(raw, pasetoHeader) {
		return false
	}
	body := strings.TrimPrefix(raw, pasetoHeader)
	if i := strings.IndexByte(body, '.'); i >= 0 {
		body = body[:i]
	}
	b, err := base64.RawURLEncoding.DecodeString(body)
	return err == nil && len(b) >= pasetoMinBytes
}
