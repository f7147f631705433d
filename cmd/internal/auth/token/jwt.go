package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type jwtClaims struct {
	Role string `json:"role,omitempty"`
	Type Kind   `json:"typ"`
	jwt.RegisteredClaims
}

// JWTIssuer signs HS256 JSON Web Tokens.
type JWTIssuer struct {
	issuer     string
	key        []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewJWTIssuer validates cfg and returns an HS256 issuer.
func NewJWTIssuer(cfg Config) (*JWTIssuer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	key := make([]byte, len(cfg.Secret))
	copy(key, cfg.Secret)
	return &JWTIssuer{
		issuer:     cfg.Issuer,
		key:        key,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.clock(),
	}, nil
}

func (i *JWTIssuer) IssueAccess(userID, role string) (Token, error) {
	return i.issue(Claims{Subject: userID, Role: role, Type: KindAccess}, i.accessTTL)
}

func (i *JWTIssuer) IssueRefresh(userID string) (Token, error) {
	return i.issue(Claims{Subject: userID, Type: KindRefresh, ID: uuid.NewString()}, i.refreshTTL)
}

func (i *JWTIssuer) issue(c Claims, ttl time.Duration) (Token, error) {
	// NumericDate has second precision; truncate so the returned claims match what Verify yields.
	now := i.now().UTC().Truncate(time.Second)
	c.IssuedAt = now
	c.ExpiresAt = now.Add(ttl)

	jc := jwtClaims{
		Role: c.Role,
		Type: c.Type,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   c.Subject,
			ID:        c.ID,
			IssuedAt:  jwt.NewNumericDate(c.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jc).SignedString(i.key)
	if err != nil {
		return Token{}, err
	}
	return Token{Value: signed, Claims: c}, nil
}

// Verify checks the signature first, then decodes claims and checks expiry against the issuer clock.
func (i *JWTIssuer) Verify(raw string) (Claims, error) {
	var jc jwtClaims
	_, err := jwt.ParseWithClaims(raw, &jc,
		func(*jwt.Token) (any, error) { return i.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, classifyJWTError(err)
	}

	if jc.Subject == "" || !validKind(jc.Type) || jc.ExpiresAt == nil {
		return Claims{}, ErrMalformed
	}
	if i.issuer != "" && jc.Issuer != i.issuer {
		return Claims{}, ErrInvalidSignature
	}

	c := Claims{
		Subject:   jc.Subject,
		Role:      jc.Role,
		Type:      jc.Type,
		ID:        jc.ID,
		ExpiresAt: jc.ExpiresAt.Time.UTC(),
	}
	if jc.IssuedAt != nil {
		c.IssuedAt = jc.IssuedAt.Time.UTC()
	}

	if err := checkExpiry(c, i.now()); err != nil {
		return Claims{}, err
	}
	return c, nil
}

func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrMalformed
	}
}
