package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const argon2Version = argon2.Version

var b64 = base64.RawStdEncoding

// Hash validates password against the policy and returns a PHC-encoded Argon2id hash.
func (c Config) Hash(password string) (string, error) {
	if err := c.Validate(password); err != nil {
		return "", err
	}
	return c.hashUnchecked(password)
}

func (c Config) hashUnchecked(password string) (string, error) {
	p := c.Params
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version, p.MemoryKiB, p.Iterations, p.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// Verify reports whether password matches encodedHash.
//
// A mismatch is (false, nil). A malformed, unsupported or over-costed hash is
// (false, ErrInvalidHash). Both Argon2id and bcrypt encodings are accepted.
func (c Config) Verify(encodedHash, password string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, "$argon2id$"):
		return c.verifyArgon2id(encodedHash, password)
	case IsBcrypt(encodedHash):
		return verifyBcrypt(encodedHash, password)
	default:
		return false, ErrInvalidHash
	}
}

// IsBcrypt reports whether encoded carries a bcrypt prefix.
func IsBcrypt(encoded string) bool {
	for _, p := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(encoded, p) {
			return true
		}
	}
	return false
}

// maxBcryptCost bounds work done for stored hashes.
const maxBcryptCost = 16

func verifyBcrypt(encoded, password string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(encoded))
	if err != nil || cost > maxBcryptCost {
		return false, ErrInvalidHash
	}
	err = bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, ErrInvalidHash
	}
}

func (c Config) verifyArgon2id(encoded, password string) (bool, error) {
	got, salt, want, err := decode(encoded)
	if err != nil {
		return false, err
	}
	if !acceptable(got, c.Params) {
		return false, ErrInvalidHash
	}

	key := argon2.IDKey([]byte(password), salt, got.Iterations, got.MemoryKiB, got.Parallelism, got.KeyLength)
	return subtle.ConstantTimeCompare(key, want) == 1, nil
}

// acceptable allows older, cheaper hashes but refuses more than twice the configured cost.
func acceptable(got, limit Argon2idParams) bool {
	return got.MemoryKiB <= limit.MemoryKiB*2 &&
		got.Iterations <= limit.Iterations*2 &&
		uint32(got.Parallelism) <= uint32(limit.Parallelism)*2 &&
		got.SaltLength >= 8 && got.SaltLength <= 64 &&
		got.KeyLength >= 16 && got.KeyLength <= 128
}

func decode(encoded string) (Argon2idParams, []byte, []byte, error) {
	fail := func() (Argon2idParams, []byte, []byte, error) {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return fail()
	}
	if parts[2] != "v="+strconv.Itoa(argon2Version) {
		return fail()
	}

	var mem, iter, par uint32
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fail()
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return fail()
		}
		switch k {
		case "m":
			mem = uint32(n)
		case "t":
			iter = uint32(n)
		case "p":
			par = uint32(n)
		default:
			return fail()
		}
	}
	if mem == 0 || iter == 0 || par == 0 || par > 255 {
		return fail()
	}

	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return fail()
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return fail()
	}

	return Argon2idParams{
		MemoryKiB:   mem,
		Iterations:  iter,
		Parallelism: uint8(par),        // #nosec G115 -- checked <= 255 above.
		SaltLength:  uint32(len(salt)), // #nosec G115 -- bounded by acceptable().
		KeyLength:   uint32(len(key)),  // #nosec G115 -- bounded by acceptable().
	}, salt, key, nil
}
