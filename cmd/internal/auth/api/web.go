package api

import (
	"net/http"
	"strings"
	"time"

	"community/cmd/internal/auth/authn"
)

func (h *Handler) setAccessCookie(w http.ResponseWriter, value string) {
	h.setCookie(w, authn.AccessCookie, value, int(h.cfg.AccessTTL/time.Second))
}

// setRefreshCookie persists across browser restarts only when rememberMe is set.
func (h *Handler) setRefreshCookie(w http.ResponseWriter, value string, rememberMe bool) {
	maxAge := 0
	if rememberMe {
		maxAge = int(h.cfg.RefreshTTL / time.Second)
	}
	h.setCookie(w, authn.RefreshCookie, value, maxAge)
}

func (h *Handler) clearCookies(w http.ResponseWriter) {
	h.setCookie(w, authn.AccessCookie, "", -1)
	h.setCookie(w, authn.RefreshCookie, "", -1)
}

// setCookie writes an HttpOnly cookie. maxAge 0 makes a session cookie and a
// negative maxAge deletes it (Max-Age=0 on the wire).
func (h *Handler) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func refreshTokenFromCookie(r *http.Request) string {
	c, err := r.Cookie(authn.RefreshCookie)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}
