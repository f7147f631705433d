package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"community/cmd/identity"
	"community/cmd/internal/auth/audit"
	"community/cmd/internal/auth/flow"
	"community/cmd/internal/auth/session"
	"community/cmd/internal/auth/token"
	sectoken "community/cmd/security/token"

	"github.com/stretchr/testify/require"
)

type plainVerifier struct{}

func (plainVerifier) Verify(raw, stored string) (bool, error) { return stored == "hash:"+raw, nil }
func (plainVerifier) DummyHash() string                       { return "hash:\x00" }

type env struct {
	mux      *http.ServeMux
	sessions *session.MemoryStore
	user     identity.User
}

func newEnv(t *testing.T, cfg Config, maxFailures int) *env {
	t.Helper()
	ctx := context.Background()

	users := identity.NewMemoryStore()
	u, err := users.CreateUser(ctx, identity.CreateUserInput{
		Email: "member@example.com", Nickname: "member", PasswordHash: "hash:Corr3ct!horse",
	})
	require.NoError(t, err)

	iss, err := token.NewJWTIssuer(token.Config{
		Issuer:     "community",
		Secret:     []byte("0123456789abcdef0123456789abcdef"),
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 14 * 24 * time.Hour,
	})
	require.NoError(t, err)

	sessions := session.NewMemoryStore(sectoken.Hasher{})
	svc, err := flow.New(flow.Config{
		Issuer:        iss,
		Sessions:      sessions,
		Users:         users,
		Passwords:     plainVerifier{},
		Audit:         audit.NewMemoryLog(0),
		MaxFailures:   maxFailures,
		FailureWindow: 15 * time.Minute,
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewHandler(nil, svc, cfg).Register(mux)
	return &env{mux: mux, sessions: sessions, user: u}
}

func (e *env) do(r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, r)
	return rec
}

func loginReq(path, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

type envelopeBody struct {
	Success bool            `json:"success"`
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelopeBody {
	t.Helper()
	var b envelopeBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	return b
}

func cookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLogin_OK(t *testing.T) {
	e := newEnv(t, Config{}, 10)

	rec := e.do(loginReq("/auth", `{"email":"member@example.com","password":"Corr3ct!horse","rememberMe":true}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	b := decode(t, rec)
	require.True(t, b.Success)
	require.Equal(t, "Modified", b.Message)

	var data loginData
	require.NoError(t, json.Unmarshal(b.Data, &data))
	require.NotEmpty(t, data.AccessToken)
	require.NotEmpty(t, data.RefreshToken)
	require.Equal(t, e.user.ID, data.User.ID)

	row, err := e.sessions.FindActive(context.Background(), data.RefreshToken)
	require.NoError(t, err)
	require.False(t, row.Revoked)

	access := cookie(rec, "accessToken")
	require.NotNil(t, access)
	require.Equal(t, data.AccessToken, access.Value)
	require.Equal(t, 1800, access.MaxAge)
	require.True(t, access.HttpOnly)
	require.Equal(t, "/", access.Path)
	require.Equal(t, http.SameSiteLaxMode, access.SameSite)

	refresh := cookie(rec, "refreshToken")
	require.NotNil(t, refresh)
	require.Equal(t, 14*24*3600, refresh.MaxAge)
}

func TestLogin_SessionCookieWithoutRememberMe(t *testing.T) {
	e := newEnv(t, Config{CookieSecure: true}, 10)

	rec := e.do(loginReq("/auth", `{"email":"member@example.com","password":"Corr3ct!horse"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	refresh := cookie(rec, "refreshToken")
	require.NotNil(t, refresh)
	require.Zero(t, refresh.MaxAge)
	require.True(t, refresh.Expires.IsZero())
	require.True(t, refresh.Secure)
}

func TestLogin_WrongPassword(t *testing.T) {
	e := newEnv(t, Config{}, 10)
	ctx := context.Background()

	first := e.do(loginReq("/auth", `{"email":"member@example.com","password":"Corr3ct!horse"}`))
	require.Equal(t, http.StatusOK, first.Code)
	prior := cookie(first, "refreshToken").Value

	rec := e.do(loginReq("/auth", `{"email":"member@example.com","password":"nope"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	b := decode(t, rec)
	require.False(t, b.Success)
	require.Equal(t, "invalid email or password", b.Message)
	require.Equal(t, "null", string(b.Data))
	require.Nil(t, cookie(rec, "refreshToken"))

	_, err := e.sessions.FindActive(ctx, prior)
	require.NoError(t, err)
}

func TestLogin_BadRequests(t *testing.T) {
	e := newEnv(t, Config{MaxBodyBytes: 256}, 10)

	cases := map[string]string{
		"malformed":     `{"email":`,
		"unknown field": `{"email":"member@example.com","password":"x","admin":true}`,
		"too large":     `{"email":"` + strings.Repeat("a", 300) + `@example.com","password":"x"}`,
		"empty email":   `{"email":"","password":"x"}`,
		"bad email":     `{"email":"nope","password":"x"}`,
		"no password":   `{"email":"member@example.com","password":""}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := e.do(loginReq("/auth", body))
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.False(t, decode(t, rec).Success)
		})
	}
}

func TestLogin_RateLimited(t *testing.T) {
	e := newEnv(t, Config{}, 1)

	require.Equal(t, http.StatusBadRequest, e.do(loginReq("/auth", `{"email":"member@example.com","password":"bad"}`)).Code)

	rec := e.do(loginReq("/auth", `{"email":"member@example.com","password":"Corr3ct!horse"}`))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "900", rec.Header().Get("Retry-After"))
}

func TestRefresh_KeepsRefreshCookie(t *testing.T) {
	e := newEnv(t, Config{Prefix: "/api"}, 10)

	login := e.do(loginReq("/api/auth", `{"email":"member@example.com","password":"Corr3ct!horse"}`))
	require.Equal(t, http.StatusOK, login.Code)
	refresh := cookie(login, "refreshToken")

	r := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	r.AddCookie(refresh)
	rec := e.do(r)
	require.Equal(t, http.StatusOK, rec.Code)

	var data refreshData
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &data))
	require.Equal(t, refresh.Value, data.RefreshToken)
	require.NotEmpty(t, data.AccessToken)

	require.Nil(t, cookie(rec, "refreshToken"))
	require.NotNil(t, cookie(rec, "accessToken"))
	require.Equal(t, data.AccessToken, cookie(rec, "accessToken").Value)
}

func TestRefresh_Failures(t *testing.T) {
	e := newEnv(t, Config{}, 10)

	rec := e.do(httptest.NewRequest(http.MethodPost, "/auth/refresh", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "missing refresh token", decode(t, rec).Message)

	r := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	r.AddCookie(&http.Cookie{Name: "refreshToken", Value: "forged"})
	rec = e.do(r)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid refresh token", decode(t, rec).Message)
}

func TestLogout_ClearsCookiesAndRevokes(t *testing.T) {
	e := newEnv(t, Config{}, 10)

	login := e.do(loginReq("/auth", `{"email":"member@example.com","password":"Corr3ct!horse"}`))
	refresh := cookie(login, "refreshToken")

	r := httptest.NewRequest(http.MethodDelete, "/auth", nil)
	r.AddCookie(refresh)
	rec := e.do(r)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, name := range []string{"accessToken", "refreshToken"} {
		c := cookie(rec, name)
		require.NotNil(t, c, name)
		require.Empty(t, c.Value)
		require.Less(t, c.MaxAge, 0)
	}

	_, err := e.sessions.FindActive(context.Background(), refresh.Value)
	require.True(t, errors.Is(err, session.ErrNotFound))

	r = httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	r.AddCookie(refresh)
	require.Equal(t, http.StatusBadRequest, e.do(r).Code)

	// No cookie at all still succeeds.
	require.Equal(t, http.StatusOK, e.do(httptest.NewRequest(http.MethodDelete, "/auth", nil)).Code)
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	e := newEnv(t, Config{}, 10)
	require.Equal(t, http.StatusMethodNotAllowed, e.do(httptest.NewRequest(http.MethodGet, "/auth/refresh", nil)).Code)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/auth", nil)
	r.RemoteAddr = "198.51.100.4:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	require.Equal(t, "198.51.100.4", clientIP(r, false).String())
	require.Equal(t, "203.0.113.9", clientIP(r, true).String())

	r.Header.Del("X-Forwarded-For")
	r.Header.Set("X-Real-IP", "203.0.113.10")
	require.Equal(t, "203.0.113.10", clientIP(r, true).String())
}
