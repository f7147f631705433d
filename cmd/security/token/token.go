package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// MinHMACKeyBytes is the minimum accepted HMAC key length.
const MinHMACKeyBytes = 32

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// Hasher produces stable 64-char hex digests for refresh tokens.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher. An empty key selects plain SHA-256.
func NewHasher(key []byte) (Hasher, error) {
	if len(key) == 0 {
		return Hasher{}, nil
	}
	if len(key) < MinHMACKeyBytes {
		return Hasher{}, ErrHMACKeyTooShort
	}
	k := make([]byte, len(key))
	copy(k, key)
	return Hasher{key: k}, nil
}

// Hash returns the digest of s.
func (h Hasher) Hash(s string) string {
	if len(h.key) == 0 {
		return HashSHA256Hex(s)
	}
	return HashHMACSHA256Hex(s, h.key)
}

// Keyed reports whether the hasher uses HMAC.
func (h Hasher) Keyed() bool { return len(h.key) > 0 }
