package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"community/cmd/internal/auth/token"
	sectoken "community/cmd/security/token"

	"github.com/caarlos0/env/v11"
)

// ErrConfig wraps every configuration validation failure.
var ErrConfig = errors.New("invalid configuration")

// Auth strategies selectable through COMMUNITY_AUTH_STRATEGY.
const (
	StrategyToken   = "token"
	StrategySession = "session"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string `env:"COMMUNITY_HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	LogLevel  string `env:"COMMUNITY_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"COMMUNITY_LOG_FORMAT" envDefault:"json"`

	ReadHeaderTimeout time.Duration `env:"COMMUNITY_HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"COMMUNITY_HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"COMMUNITY_HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"COMMUNITY_HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	MaxHeaderBytes    int           `env:"COMMUNITY_HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`
	ShutdownTimeout   time.Duration `env:"COMMUNITY_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Storage: Postgres when DatabaseURL is set, else SQLite when SQLitePath is set, else memory.
	DatabaseURL string `env:"COMMUNITY_DATABASE_URL"`
	DBMaxConns  int32  `env:"COMMUNITY_DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"COMMUNITY_DB_MIN_CONNS" envDefault:"0"`
	SQLitePath  string `env:"COMMUNITY_SQLITE_PATH"`

	// /readyz returns 503 unless a database is configured and reachable.
	ReadinessRequireDB bool `env:"COMMUNITY_READINESS_REQUIRE_DB"`

	TokenSecret  string        `env:"COMMUNITY_TOKEN_SECRET"`
	TokenFormat  string        `env:"COMMUNITY_TOKEN_FORMAT" envDefault:"jwt"`
	TokenIssuer  string        `env:"COMMUNITY_TOKEN_ISSUER" envDefault:"community"`
	AccessTTL    time.Duration `env:"COMMUNITY_ACCESS_TTL" envDefault:"30m"`
	RefreshTTL   time.Duration `env:"COMMUNITY_REFRESH_TTL" envDefault:"336h"`
	AuthStrategy string        `env:"COMMUNITY_AUTH_STRATEGY" envDefault:"token"`

	// Refresh-token digests become HMAC-SHA256 when a key is set.
	TokenHashKey     string `env:"COMMUNITY_TOKEN_HMAC_KEY"`
	RequireTokenHMAC bool   `env:"COMMUNITY_REQUIRE_TOKEN_HMAC"`

	APIPrefix    string `env:"COMMUNITY_API_PREFIX"`
	CookieSecure bool   `env:"COMMUNITY_COOKIE_SECURE"`
	TrustProxy   bool   `env:"COMMUNITY_TRUST_PROXY"`
	MaxBodyBytes int64  `env:"COMMUNITY_MAX_BODY_BYTES" envDefault:"1048576"`

	CORSAllowedOrigins   []string `env:"COMMUNITY_CORS_ALLOWED_ORIGINS" envSeparator:","`
	CORSAllowCredentials bool     `env:"COMMUNITY_CORS_ALLOW_CREDENTIALS" envDefault:"true"`
	CORSMaxAgeSeconds    int      `env:"COMMUNITY_CORS_MAX_AGE" envDefault:"600"`

	LoginMaxFailures   int           `env:"COMMUNITY_LOGIN_MAX_FAILURES" envDefault:"10"`
	LoginIPMaxFailures int           `env:"COMMUNITY_LOGIN_IP_MAX_FAILURES" envDefault:"50"`
	LoginWindow        time.Duration `env:"COMMUNITY_LOGIN_WINDOW" envDefault:"15m"`

	RealtimeEnabled bool `env:"COMMUNITY_REALTIME_ENABLED" envDefault:"true"`

	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelEnabled  bool   `env:"COMMUNITY_OTEL_ENABLED" envDefault:"true"`

	BootstrapEmail    string `env:"COMMUNITY_BOOTSTRAP_EMAIL"`
	BootstrapPassword string `env:"COMMUNITY_BOOTSTRAP_PASSWORD"`
	BootstrapNickname string `env:"COMMUNITY_BOOTSTRAP_NICKNAME" envDefault:"admin"`
	BootstrapRole     string `env:"COMMUNITY_BOOTSTRAP_ROLE" envDefault:"ADMIN"`
}

// LoadConfig parses the environment and validates the result.
func LoadConfig() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate enforces startup policy. Weak settings fail fast instead of degrading.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrConfig}, args...)...))
	}

	if strings.TrimSpace(c.HTTPAddr) == "" {
		bad("COMMUNITY_HTTP_ADDR is required")
	}
	if _, err := token.DecodeSecret(c.TokenSecret); err != nil {
		bad("COMMUNITY_TOKEN_SECRET: %v", err)
	}
	switch token.Format(strings.ToLower(c.TokenFormat)) {
	case token.FormatJWT, token.FormatPaseto:
	default:
		bad("COMMUNITY_TOKEN_FORMAT must be jwt or paseto, got %q", c.TokenFormat)
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		bad("token lifetimes must be positive")
	}
	if c.AccessTTL >= c.RefreshTTL {
		bad("COMMUNITY_ACCESS_TTL must be shorter than COMMUNITY_REFRESH_TTL")
	}
	switch c.AuthStrategy {
	case StrategyToken, StrategySession:
	default:
		bad("COMMUNITY_AUTH_STRATEGY must be token or session, got %q", c.AuthStrategy)
	}
	if c.APIPrefix != "" && (!strings.HasPrefix(c.APIPrefix, "/") || strings.HasSuffix(c.APIPrefix, "/")) {
		bad("COMMUNITY_API_PREFIX must start with / and not end with /")
	}
	if c.DBMinConns < 0 || c.DBMaxConns < 0 || (c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns) {
		bad("invalid database pool bounds")
	}
	if c.RequireTokenHMAC && strings.TrimSpace(c.TokenHashKey) == "" {
		bad("COMMUNITY_REQUIRE_TOKEN_HMAC=true but COMMUNITY_TOKEN_HMAC_KEY is missing")
	}
	if c.TokenHashKey != "" && len(c.TokenHashKey) < sectoken.MinHMACKeyBytes {
		bad("COMMUNITY_TOKEN_HMAC_KEY is too short (min %d bytes)", sectoken.MinHMACKeyBytes)
	}
	if (c.BootstrapEmail == "") != (c.BootstrapPassword == "") {
		bad("COMMUNITY_BOOTSTRAP_EMAIL and COMMUNITY_BOOTSTRAP_PASSWORD must be set together")
	}
	if c.LoginWindow <= 0 {
		bad("COMMUNITY_LOGIN_WINDOW must be positive")
	}
	return errors.Join(errs...)
}

func (c Config) tokenConfig() (token.Config, error) {
	secret, err := token.DecodeSecret(c.TokenSecret)
	if err != nil {
		return token.Config{}, err
	}
	return token.Config{
		Issuer:     c.TokenIssuer,
		Secret:     secret,
		AccessTTL:  c.AccessTTL,
		RefreshTTL: c.RefreshTTL,
	}, nil
}
