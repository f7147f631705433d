package authn

import (
	"net/http"
	"strings"
)

// Decision is what the middleware does with a request.
type Decision int

const (
	// Strict requires a valid identity.
	Strict Decision = iota
	// Soft binds an identity when one verifies and otherwise continues anonymously.
	Soft
	// Bypass skips authentication entirely.
	Bypass
)

func (d Decision) String() string {
	switch d {
	case Soft:
		return "soft"
	case Bypass:
		return "bypass"
	default:
		return "strict"
	}
}

// MatchKind selects how Rule.Pattern is compared with the path.
type MatchKind int

const (
	Exact MatchKind = iota
	// Prefix matches the pattern itself or anything below it ("/files" matches
	// "/files" and "/files/a", not "/filesystem").
	Prefix
)

// AnyMethod matches every HTTP method.
const AnyMethod = "*"

type Rule struct {
	Method   string
	Pattern  string
	Match    MatchKind
	Decision Decision
}

func (r Rule) matches(method, path string) bool {
	if r.Method != AnyMethod && r.Method != method {
		return false
	}
	switch r.Match {
	case Prefix:
		if r.Pattern == "" {
			return true
		}
		return path == r.Pattern || strings.HasPrefix(path, strings.TrimSuffix(r.Pattern, "/")+"/")
	default:
		return path == r.Pattern
	}
}

// Rules is an ordered rule table.
type Rules []Rule

// Decide returns the decision of the first matching rule, or Strict.
func (rs Rules) Decide(method, path string) Decision {
	for _, r := range rs {
		if r.matches(method, path) {
			return r.Decision
		}
	}
	return Strict
}

// DefaultRules is the platform's access table. Paths are relative to the API root.
func DefaultRules() Rules {
	rs := Rules{
		{Method: http.MethodOptions, Match: Prefix, Decision: Bypass},
	}
	for _, p := range []string{"/files", "/webjars", "/static", "/auth/refresh", "/auth/password-reset"} {
		rs = append(rs, Rule{Method: AnyMethod, Pattern: p, Match: Prefix, Decision: Bypass})
	}
	for _, p := range []string{"/users/check-email", "/users/check-nickname", "/error", "/terms", "/privacy"} {
		rs = append(rs, Rule{Method: AnyMethod, Pattern: p, Match: Exact, Decision: Bypass})
	}
	rs = append(rs,
		Rule{Method: http.MethodPost, Pattern: "/auth", Decision: Bypass},
		Rule{Method: http.MethodDelete, Pattern: "/auth", Decision: Bypass},
		Rule{Method: http.MethodPost, Pattern: "/users", Decision: Bypass},
		Rule{Method: AnyMethod, Pattern: "/login", Decision: Bypass},
		Rule{Method: AnyMethod, Pattern: "/healthz", Decision: Bypass},
		Rule{Method: AnyMethod, Pattern: "/readyz", Decision: Bypass},
		Rule{Method: AnyMethod, Pattern: "/metrics", Decision: Bypass},
		Rule{Method: http.MethodGet, Pattern: "/posts", Match: Prefix, Decision: Soft},
	)
	return rs
}
