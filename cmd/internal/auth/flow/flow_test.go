package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"community/cmd/identity"
	"community/cmd/internal/auth/audit"
	"community/cmd/internal/auth/session"
	"community/cmd/internal/auth/token"
	sectoken "community/cmd/security/token"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// plainVerifier treats "hash:<pw>" as the hash of pw.
type plainVerifier struct {
	mu         sync.Mutex
	dummyCalls int
}

const dummy = "hash:\x00dummy"

func (v *plainVerifier) Verify(raw, stored string) (bool, error) {
	if stored == dummy {
		v.mu.Lock()
		v.dummyCalls++
		v.mu.Unlock()
	}
	return stored == "hash:"+raw, nil
}

func (v *plainVerifier) DummyHash() string { return dummy }

type event struct {
	userID, reason string
	count          int64
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []event
}

func (p *recordingPublisher) SessionRevoked(_ context.Context, userID, reason string, count int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event{userID, reason, count})
}

type fixture struct {
	svc      *Service
	clock    *clock
	issuer   token.Issuer
	sessions *session.MemoryStore
	users    *identity.MemoryStore
	audit    *audit.MemoryLog
	pub      *recordingPublisher
	verifier *plainVerifier
	metrics  *Metrics
	user     identity.User
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		clock:    &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		sessions: session.NewMemoryStore(sectoken.Hasher{}),
		users:    identity.NewMemoryStore(),
		audit:    audit.NewMemoryLog(0),
		pub:      &recordingPublisher{},
		verifier: &plainVerifier{},
		metrics:  NewMetrics(prometheus.NewRegistry()),
	}

	iss, err := token.NewJWTIssuer(token.Config{
		Issuer:     "community",
		Secret:     []byte("0123456789abcdef0123456789abcdef"),
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 14 * 24 * time.Hour,
		Now:        f.clock.now,
	})
	require.NoError(t, err)
	f.issuer = iss

	f.user, err = f.users.CreateUser(ctx, identity.CreateUserInput{
		Email:        "member@example.com",
		Nickname:     "member",
		PasswordHash: "hash:Corr3ct!horse",
		Role:         identity.RoleUser,
		Now:          f.clock.now(),
	})
	require.NoError(t, err)

	cfg := Config{
		Issuer:        f.issuer,
		Sessions:      f.sessions,
		Users:         f.users,
		Passwords:     f.verifier,
		Audit:         f.audit,
		Publisher:     f.pub,
		Metrics:       f.metrics,
		MaxFailures:   10,
		MaxIPFailures: 50,
		FailureWindow: 15 * time.Minute,
		Now:           f.clock.now,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	f.svc, err = New(cfg)
	require.NoError(t, err)
	return f
}

func (f *fixture) login(t *testing.T, pw string) (LoginResult, error) {
	t.Helper()
	return f.svc.Login(context.Background(), LoginInput{
		Email:    " Member@Example.com ",
		Password: pw,
		Client:   Client{IP: "203.0.113.7", UserAgent: "test/1.0"},
	})
}

func (f *fixture) actions() []string {
	var out []string
	for _, ev := range f.audit.Events() {
		out = append(out, ev.Action)
	}
	return out
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.login(t, "Corr3ct!horse")
	require.NoError(t, err)
	require.NotEmpty(t, res.AccessToken.Value)
	require.NotEmpty(t, res.RefreshToken.Value)
	require.Equal(t, f.user.Summary(), res.User)

	row, err := f.sessions.FindActive(ctx, res.RefreshToken.Value)
	require.NoError(t, err)
	require.False(t, row.Revoked)
	require.Equal(t, f.user.ID, row.UserID)
	require.Equal(t, "203.0.113.7", row.IP)
	require.True(t, row.ExpiresAt.Equal(res.RefreshToken.Claims.ExpiresAt))

	claims, err := f.issuer.Verify(res.AccessToken.Value)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, claims.Subject)
	require.Equal(t, "USER", claims.Role)
	require.Equal(t, token.KindAccess, claims.Type)

	require.Equal(t, []string{audit.ActionLoginSuccess}, f.actions())
	require.Empty(t, f.pub.events)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ops.WithLabelValues("auth.login", "ok")))
}

func TestLogin_WrongPasswordChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.login(t, "Corr3ct!horse")
	require.NoError(t, err)

	_, err = f.login(t, "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	row, err := f.sessions.FindActive(ctx, first.RefreshToken.Value)
	require.NoError(t, err)
	require.False(t, row.Revoked)

	_, err = f.svc.Refresh(ctx, first.RefreshToken.Value, Client{})
	require.NoError(t, err)

	require.Contains(t, f.actions(), audit.ActionLoginFailed)
	require.Empty(t, f.pub.events)
}

func TestLogin_UnknownEmailRunsDummyVerify(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Login(context.Background(), LoginInput{Email: "ghost@example.com", Password: "whatever"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Equal(t, 1, f.verifier.dummyCalls)

	evs := f.audit.Events()
	require.Len(t, evs, 1)
	require.Equal(t, "ghost@example.com", evs[0].Identifier)
	require.Equal(t, "unknown_email", evs[0].Meta["reason"])
}

func TestLogin_Validation(t *testing.T) {
	f := newFixture(t)
	long := make([]byte, MaxPasswordLength+1)
	for i := range long {
		long[i] = 'a'
	}

	cases := []struct {
		in    LoginInput
		field string
	}{
		{LoginInput{Email: "", Password: "x"}, "email"},
		{LoginInput{Email: "not-an-email", Password: "x"}, "email"},
		{LoginInput{Email: "a@example.com", Password: ""}, "password"},
		{LoginInput{Email: "a@example.com", Password: string(long)}, "password"},
	}
	for _, tc := range cases {
		_, err := f.svc.Login(context.Background(), tc.in)
		require.ErrorIs(t, err, ErrValidation)
		var ve ValidationError
		require.ErrorAs(t, err, &ve)
		require.Equal(t, tc.field, ve.Field)
	}
	require.Empty(t, f.audit.Events())
}

func TestLogin_SecondLoginSupersedesFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.login(t, "Corr3ct!horse")
	require.NoError(t, err)
	f.clock.advance(time.Second)
	second, err := f.login(t, "Corr3ct!horse")
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken.Value, second.RefreshToken.Value)

	_, err = f.svc.Refresh(ctx, first.RefreshToken.Value, Client{})
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.svc.Refresh(ctx, second.RefreshToken.Value, Client{})
	require.NoError(t, err)

	old, err := f.sessions.Lookup(ctx, first.RefreshToken.Value)
	require.NoError(t, err)
	require.True(t, old.Revoked)
	require.Equal(t, session.ReasonSuperseded, old.RevocationReason)

	require.Equal(t, []event{{f.user.ID, session.ReasonSuperseded, 1}}, f.pub.events)
}

func TestLogin_Throttled(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxFailures = 2 })

	for i := 0; i < 2; i++ {
		_, err := f.login(t, "wrong")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := f.login(t, "Corr3ct!horse")
	require.ErrorIs(t, err, ErrRateLimited)
	var rl RateLimitError
	require.ErrorAs(t, err, &rl)
	require.Equal(t, 15*time.Minute, rl.RetryAfter)
	require.Contains(t, f.actions(), audit.ActionLoginRateLimited)

	f.clock.advance(16 * time.Minute)
	_, err = f.login(t, "Corr3ct!horse")
	require.NoError(t, err)
}

func TestLogin_ThrottledByIP(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxIPFailures = 1 })

	_, err := f.svc.Login(context.Background(), LoginInput{
		Email: "ghost@example.com", Password: "x", Client: Client{IP: "203.0.113.7"},
	})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.login(t, "Corr3ct!horse")
	require.ErrorIs(t, err, ErrRateLimited)
}

type brokenLog struct{ audit.Nop }

func (brokenLog) CountFailures(context.Context, audit.By, string, time.Time) (int, error) {
	return 0, errors.New("db down")
}

func TestLogin_ThrottleFailsOpen(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Audit = brokenLog{}; c.MaxFailures = 1 })

	_, err := f.login(t, "Corr3ct!horse")
	require.NoError(t, err)
}

func TestRefresh_ReturnsSameRefreshToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	login, err := f.login(t, "Corr3ct!horse")
	require.NoError(t, err)
	f.clock.advance(time.Minute)

	res, err := f.svc.Refresh(ctx, login.RefreshToken.Value, Client{})
	require.NoError(t, err)
	require.Equal(t, login.RefreshToken.Value, res.RefreshToken)
	require.NotEqual(t, login.AccessToken.Value, res.AccessToken.Value)

	claims, err := f.issuer.Verify(res.AccessToken.Value)
	require.NoError(t, err)
	require.Equal(t, f.user.ID, claims.Subject)
	require.True(t, claims.IssuedAt.Equal(f.clock.now()))
}

func TestRefresh_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	login, err := f.login(t, "Corr3ct!horse")
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, "", Client{})
	require.ErrorIs(t, err, ErrMissingToken)

	_, err = f.svc.Refresh(ctx, "not.a.token", Client{})
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = f.svc.Refresh(ctx, login.AccessToken.Value, Client{})
	require.ErrorIs(t, err, ErrInvalidToken)

	// Correctly signed but never persisted.
	orphan, err := f.issuer.IssueRefresh(f.user.ID)
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, orphan.Value, Client{})
	require.ErrorIs(t, err, ErrInvalidToken)

	require.Contains(t, f.actions(), audit.ActionRefreshFailed)
}

func TestRefresh_PersistedRowExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tok, err := f.issuer.IssueRefresh(f.user.ID)
	require.NoError(t, err)
	now := f.clock.now()
	_, err = f.sessions.Persist(ctx, now, f.user.ID, tok.Value, now.Add(-time.Second), session.Device{})
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, tok.Value, Client{})
	require.ErrorIs(t, err, ErrExpired)

	row, err := f.sessions.Lookup(ctx, tok.Value)
	require.NoError(t, err)
	require.True(t, row.Revoked)
	require.Equal(t, session.ReasonExpired, row.RevocationReason)
}

func TestRefresh_TokenExpiredRevokesRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	login, err := f.login(t, "Corr3ct!horse")
	require.NoError(t, err)

	f.clock.advance(15 * 24 * time.Hour)
	_, err = f.svc.Refresh(ctx, login.RefreshToken.Value, Client{})
	require.ErrorIs(t, err, ErrExpired)

	row, err := f.sessions.Lookup(ctx, login.RefreshToken.Value)
	require.NoError(t, err)
	require.True(t, row.Revoked)
}

func TestRefresh_DeletedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	login, err := f.login(t, "Corr3ct!horse")
	require.NoError(t, err)
	require.NoError(t, f.users.SoftDelete(ctx, f.user.ID, f.clock.now()))

	_, err = f.svc.Refresh(ctx, login.RefreshToken.Value, Client{})
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	login, err := f.login(t, "Corr3ct!horse")
	require.NoError(t, err)

	f.svc.Logout(ctx, login.RefreshToken.Value, Client{IP: "203.0.113.7"})

	_, err = f.svc.Refresh(ctx, login.RefreshToken.Value, Client{})
	require.ErrorIs(t, err, ErrInvalidToken)

	row, err := f.sessions.Lookup(ctx, login.RefreshToken.Value)
	require.NoError(t, err)
	require.Equal(t, session.ReasonLogout, row.RevocationReason)
	require.Equal(t, []event{{f.user.ID, session.ReasonLogout, 1}}, f.pub.events)

	// Repeated and anonymous logouts are silent no-ops.
	f.svc.Logout(ctx, login.RefreshToken.Value, Client{})
	f.svc.Logout(ctx, "", Client{})
	f.svc.Logout(ctx, "unknown", Client{})
	require.Len(t, f.pub.events, 1)
	require.Contains(t, f.actions(), audit.ActionLogout)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}
