package authn

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"community/cmd/internal/envelope"
)

// Outcomes recorded per request.
const (
	OutcomeBypass        = "bypass"
	OutcomeAuthenticated = "authenticated"
	OutcomeAnonymous     = "anonymous"
	OutcomeRejected      = "rejected"
)

type Config struct {
	Rules         Rules
	Authenticator Authenticator
	// Prefix is the API mount point ("" or e.g. "/api"); rules match the path below it.
	Prefix  string
	Logger  *slog.Logger
	Metrics *Metrics
}

// Middleware applies the rule table in front of a handler.
type Middleware struct {
	rules   Rules
	auth    Authenticator
	prefix  string
	log     *slog.Logger
	metrics *Metrics
}

func New(cfg Config) *Middleware {
	rules := cfg.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Middleware{
		rules:   rules,
		auth:    cfg.Authenticator,
		prefix:  strings.TrimSuffix(cfg.Prefix, "/"),
		log:     log,
		metrics: cfg.Metrics,
	}
}

// relative strips the mount prefix; paths outside it are matched as-is.
func (m *Middleware) relative(path string) string {
	if m.prefix == "" {
		return path
	}
	if path == m.prefix {
		return "/"
	}
	if rest, ok := strings.CutPrefix(path, m.prefix+"/"); ok {
		return "/" + rest
	}
	return path
}

func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := m.relative(r.URL.Path)
		decision := m.rules.Decide(r.Method, path)

		if decision == Bypass {
			m.metrics.observe(decision, OutcomeBypass)
			next.ServeHTTP(w, r)
			return
		}

		id, err := m.auth.Authenticate(r)
		if err == nil {
			m.metrics.observe(decision, OutcomeAuthenticated)
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
			return
		}

		if decision == Soft {
			m.metrics.observe(decision, OutcomeAnonymous)
			next.ServeHTTP(w, r)
			return
		}

		m.metrics.observe(decision, OutcomeRejected)
		if !errors.Is(err, ErrNoCredentials) {
			m.log.Debug("authn.reject", "method", r.Method, "path", r.URL.Path, "err", err)
		}
		m.reject(w, r, path)
	})
}

// reject redirects page requests for the landing routes and answers everything else
// with a 401 envelope.
func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, path string) {
	if path == "/" || path == "/index" {
		http.Redirect(w, r, m.prefix+"/login", http.StatusFound)
		return
	}
	envelope.Error(w, http.StatusUnauthorized, "Unauthorized")
}
