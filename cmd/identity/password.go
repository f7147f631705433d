package identity

import (
	"sync"

	"community/cmd/security/password"
)

// PasswordVerifier checks a raw password against a stored hash.
type PasswordVerifier interface {
	Verify(raw, stored string) (bool, error)
	DummyHash() string
}

// HashVerifier verifies Argon2id and legacy bcrypt hashes through password.Config.
type HashVerifier struct {
	cfg password.Config

	dummyOnce sync.Once
	dummy     string
}

// NewHashVerifier returns a verifier bounded by cfg's Argon2id parameters.
func NewHashVerifier(cfg password.Config) *HashVerifier {
	return &HashVerifier{cfg: cfg}
}

// Verify returns (false, nil) on mismatch and password.ErrInvalidHash for unknown formats.
func (v *HashVerifier) Verify(raw, stored string) (bool, error) {
	return v.cfg.Verify(stored, raw)
}

// DummyHash returns a valid Argon2id hash computed once with the live parameters.
// Unknown emails are verified against it so both login paths cost the same.
func (v *HashVerifier) DummyHash() string {
	v.dummyOnce.Do(func() {
		cfg := v.cfg
		cfg.Policy = password.Policy{MinLength: 1, MaxLength: 1 << 10}
		if h, err := cfg.Hash("community-dummy-password"); err == nil {
			v.dummy = h
		}
	})
	return v.dummy
}
