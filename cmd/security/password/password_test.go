package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// cheap keeps argon2 fast in tests.
func cheap() Config {
	cfg := DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func TestHashAndVerify(t *testing.T) {
	cfg := cheap()

	h, err := cfg.Hash("Str0ng!pass")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(h, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding %q", h)
	}

	ok, err := cfg.Verify(h, "Str0ng!pass")
	if err != nil || !ok {
		t.Fatalf("Verify = %v, %v; want true, nil", ok, err)
	}

	ok, err = cfg.Verify(h, "Str0ng!pasS")
	if err != nil || ok {
		t.Fatalf("Verify wrong password = %v, %v; want false, nil", ok, err)
	}
}

func TestHash_SaltsDiffer(t *testing.T) {
	cfg := cheap()
	a, _ := cfg.Hash("Str0ng!pass")
	b, _ := cfg.Hash("Str0ng!pass")
	if a == b {
		t.Fatalf("two hashes of the same password are identical")
	}
}

func TestVerify_Bcrypt(t *testing.T) {
	raw, err := bcrypt.GenerateFromPassword([]byte("legacy#Pass1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	cfg := cheap()
	ok, err := cfg.Verify(string(raw), "legacy#Pass1")
	if err != nil || !ok {
		t.Fatalf("Verify = %v, %v; want true, nil", ok, err)
	}
	ok, err = cfg.Verify(string(raw), "legacy#Pass2")
	if err != nil || ok {
		t.Fatalf("Verify mismatch = %v, %v; want false, nil", ok, err)
	}
}

func TestVerify_InvalidHash(t *testing.T) {
	cfg := cheap()
	bad := []string{
		"",
		"not-a-hash",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=16$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$!!$a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=9999999,t=1,p=1$c2FsdHNhbHRzYWx0$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$2b$99$abcdefghijklmnopqrstuv",
	}
	for _, h := range bad {
		ok, err := cfg.Verify(h, "whatever")
		if !errors.Is(err, ErrInvalidHash) || ok {
			t.Fatalf("Verify(%q) = %v, %v; want false, ErrInvalidHash", h, ok, err)
		}
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()

	cases := []struct {
		pw   string
		want error
	}{
		{"Ab1!", ErrPasswordTooShort},
		{strings.Repeat("Ab1!", 64), ErrPasswordTooLong},
		{"Str0ng!pass", nil},
		{"nodigits!here", ErrWeakPassword},
		{"n0symbolshere", ErrWeakPassword},
		{"has space 1!", ErrWeakPassword},
		{"Baaad1!pass", ErrWeakPassword},
		{"P@ssw0rd", ErrWeakPassword},
	}
	for _, tc := range cases {
		if err := cfg.Validate(tc.pw); !errors.Is(err, tc.want) {
			t.Fatalf("Validate(%q) = %v, want %v", tc.pw, err, tc.want)
		}
	}
}

func TestValidate_VeryWeakWithoutMixed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policy.RequireMixed = false

	for _, pw := range []string{"password", "11111111", "12345678901"} {
		if err := cfg.Validate(pw); !errors.Is(err, ErrWeakPassword) {
			t.Fatalf("Validate(%q) = %v, want ErrWeakPassword", pw, err)
		}
	}
	if err := cfg.Validate("a-very-ok-pass"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}
