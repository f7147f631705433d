package api

import "time"

// Config controls the HTTP auth boundary.
type Config struct {
	// Prefix mounts the routes, e.g. "/api"; empty mounts at the root.
	Prefix       string
	MaxBodyBytes int64
	// TrustProxy reads the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxy   bool
	CookieSecure bool
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxBodyBytes: 1 << 20,
		AccessTTL:    30 * time.Minute,
		RefreshTTL:   14 * 24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.AccessTTL <= 0 {
		c.AccessTTL = d.AccessTTL
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = d.RefreshTTL
	}
	return c
}
