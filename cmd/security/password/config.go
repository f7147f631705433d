package password

import (
	"fmt"
	"runtime"

	"github.com/caarlos0/env/v11"
)

// Argon2idParams controls Argon2id hashing cost. MemoryKiB is in KiB as argon2.IDKey expects.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password acceptance for new hashes.
type Policy struct {
	MinLength int
	MaxLength int
	// RequireMixed demands a letter, a digit and a symbol, no whitespace, and no
	// character repeated three times in a row.
	RequireMixed   bool
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns the production baseline.
func DefaultConfig() Config {
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4].
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      8,
			MaxLength:      255,
			RequireMixed:   true,
			RejectVeryWeak: true,
		},
	}
}

// envConfig is the environment surface; zero values keep the defaults.
type envConfig struct {
	MinLen         int    `env:"COMMUNITY_PASSWORD_MIN_LEN"`
	MaxLen         int    `env:"COMMUNITY_PASSWORD_MAX_LEN"`
	RequireMixed   *bool  `env:"COMMUNITY_PASSWORD_REQUIRE_MIXED"`
	RejectVeryWeak *bool  `env:"COMMUNITY_PASSWORD_REJECT_VERY_WEAK"`
	MemoryKiB      uint32 `env:"COMMUNITY_ARGON2_MEMORY_KIB"`
	Iterations     uint32 `env:"COMMUNITY_ARGON2_ITERATIONS"`
	Parallelism    uint32 `env:"COMMUNITY_ARGON2_PARALLELISM"`
	SaltLen        uint32 `env:"COMMUNITY_ARGON2_SALT_LEN"`
	KeyLen         uint32 `env:"COMMUNITY_ARGON2_KEY_LEN"`
}

// FromEnv loads DefaultConfig and applies COMMUNITY_PASSWORD_* / COMMUNITY_ARGON2_* overrides.
func FromEnv() (Config, error) {
	var e envConfig
	if err := env.Parse(&e); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	cfg := DefaultConfig()

	checks := []struct {
		name     string
		set      bool
		ok       bool
		apply    func()
		min, max uint64
	}{
		{"COMMUNITY_PASSWORD_MIN_LEN", e.MinLen != 0, inRange(uint64(max(e.MinLen, 0)), 1, 1024), func() { cfg.Policy.MinLength = e.MinLen }, 1, 1024},
		{"COMMUNITY_PASSWORD_MAX_LEN", e.MaxLen != 0, inRange(uint64(max(e.MaxLen, 0)), 1, 4096), func() { cfg.Policy.MaxLength = e.MaxLen }, 1, 4096},
		{"COMMUNITY_ARGON2_MEMORY_KIB", e.MemoryKiB != 0, inRange(uint64(e.MemoryKiB), 8*1024, 1024*1024), func() { cfg.Params.MemoryKiB = e.MemoryKiB }, 8 * 1024, 1024 * 1024},
		{"COMMUNITY_ARGON2_ITERATIONS", e.Iterations != 0, inRange(uint64(e.Iterations), 1, 20), func() { cfg.Params.Iterations = e.Iterations }, 1, 20},
		{"COMMUNITY_ARGON2_PARALLELISM", e.Parallelism != 0, inRange(uint64(e.Parallelism), 1, 64), func() { cfg.Params.Parallelism = uint8(e.Parallelism) }, 1, 64}, // #nosec G115 -- bounded to 64.
		{"COMMUNITY_ARGON2_SALT_LEN", e.SaltLen != 0, inRange(uint64(e.SaltLen), 8, 64), func() { cfg.Params.SaltLength = e.SaltLen }, 8, 64},
		{"COMMUNITY_ARGON2_KEY_LEN", e.KeyLen != 0, inRange(uint64(e.KeyLen), 16, 64), func() { cfg.Params.KeyLength = e.KeyLen }, 16, 64},
	}
	for _, c := range checks {
		if !c.set {
			continue
		}
		if !c.ok {
			return Config{}, fmt.Errorf("%w: %s out of range [%d..%d]", ErrConfig, c.name, c.min, c.max)
		}
		c.apply()
	}

	if e.RequireMixed != nil {
		cfg.Policy.RequireMixed = *e.RequireMixed
	}
	if e.RejectVeryWeak != nil {
		cfg.Policy.RejectVeryWeak = *e.RejectVeryWeak
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf("%w: min_len(%d) > max_len(%d)", ErrConfig, cfg.Policy.MinLength, cfg.Policy.MaxLength)
	}
	return cfg, nil
}

func inRange(v, lo, hi uint64) bool { return v >= lo && v <= hi }
