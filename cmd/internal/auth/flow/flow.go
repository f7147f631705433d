// Package flow orchestrates login, refresh and logout on top of the token issuer,
// the session store and the user directory.
//
// Refresh tokens are not rotated: refresh mints a new access token and hands the
// presented refresh token back unchanged. Login revokes every earlier session of
// the user, so at most one refresh token per user is active.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"community/cmd/identity"
	"community/cmd/internal/auth/audit"
	"community/cmd/internal/auth/session"
	"community/cmd/internal/auth/token"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxPasswordLength bounds login input before any hashing work.
const MaxPasswordLength = 255

// Config wires a Service. Issuer, Sessions, Users and Passwords are required.
type Config struct {
	Issuer    token.Issuer
	Sessions  session.Store
	Users     identity.Directory
	Passwords identity.PasswordVerifier

	Audit     audit.Log
	Publisher Publisher
	Logger    *slog.Logger
	Tracer    trace.Tracer
	Metrics   *Metrics

	// Login throttling. Zero limits disable the corresponding check.
	MaxFailures   int
	MaxIPFailures int
	FailureWindow time.Duration

	Now func() time.Time
}

type Service struct {
	issuer    token.Issuer
	sessions  session.Store
	users     identity.Directory
	passwords identity.PasswordVerifier
	audit     audit.Log
	pub       Publisher
	log       *slog.Logger
	tracer    trace.Tracer
	metrics   *Metrics

	maxFailures   int
	maxIPFailures int
	window        time.Duration
	now           func() time.Time
}

func New(cfg Config) (*Service, error) {
	if cfg.Issuer == nil || cfg.Sessions == nil || cfg.Users == nil || cfg.Passwords == nil {
		return nil, errors.New("flow: issuer, sessions, users and passwords are required")
	}
	s := &Service{
		issuer:        cfg.Issuer,
		sessions:      cfg.Sessions,
		users:         cfg.Users,
		passwords:     cfg.Passwords,
		audit:         cfg.Audit,
		pub:           cfg.Publisher,
		log:           cfg.Logger,
		tracer:        cfg.Tracer,
		metrics:       cfg.Metrics,
		maxFailures:   cfg.MaxFailures,
		maxIPFailures: cfg.MaxIPFailures,
		window:        cfg.FailureWindow,
		now:           cfg.Now,
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	if s.pub == nil {
		s.pub = NopPublisher{}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("community/auth/flow")
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.window <= 0 {
		s.window = 15 * time.Minute
	}
	return s, nil
}

// Client describes the caller for audit and session bookkeeping.
type Client struct {
	IP        string
	UserAgent string
}

type LoginInput struct {
	Email      string
	Password   string
	RememberMe bool
	Client
}

type LoginResult struct {
	AccessToken  token.Token
	RefreshToken token.Token
	User         identity.Summary
	RememberMe   bool
}

type RefreshResult struct {
	AccessToken  token.Token
	RefreshToken string
}

// span starts an operation span and returns a finisher recording outcome, metrics
// and, for unexpected failures, the error.
func (s *Service) span(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, sp := s.tracer.Start(ctx, op)
	return ctx, func(err error) {
		out := outcome(err)
		sp.SetAttributes(attribute.String("auth.outcome", out))
		if out == "error" {
			sp.RecordError(err)
			sp.SetStatus(codes.Error, "internal error")
		}
		sp.End()
		s.metrics.observe(op, out, time.Since(start))
	}
}

// Login verifies credentials and starts a new session, revoking every earlier
// session of the user in the same storage transaction.
func (s *Service) Login(ctx context.Context, in LoginInput) (res LoginResult, err error) {
	ctx, done := s.span(ctx, "auth.login")
	defer func() { done(err) }()

	if err := validateLogin(in); err != nil {
		return LoginResult{}, err
	}
	email := identity.NormalizeEmail(in.Email)

	if err := s.throttle(ctx, email, in.Client); err != nil {
		return LoginResult{}, err
	}

	u, err := s.users.FindByEmailIncludingDeleted(ctx, email)
	switch {
	case identity.IsNotFound(err):
		// Same hashing cost as a real account.
		_, _ = s.passwords.Verify(in.Password, s.passwords.DummyHash())
		s.record(ctx, audit.ActionLoginFailed, "", email, in.Client, map[string]any{"reason": "unknown_email"})
		return LoginResult{}, ErrInvalidCredentials
	case err != nil:
		return LoginResult{}, fmt.Errorf("flow: find user: %w", err)
	}

	ok, verr := s.passwords.Verify(in.Password, u.PasswordHash)
	if verr != nil {
		s.log.Error("auth.login.verify.fail", "err", verr, "user_id", u.ID)
	}
	if !ok {
		s.record(ctx, audit.ActionLoginFailed, u.ID, email, in.Client, map[string]any{"reason": "bad_password"})
		return LoginResult{}, ErrInvalidCredentials
	}

	refresh, err := s.issuer.IssueRefresh(u.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("flow: issue refresh: %w", err)
	}
	now := s.now()
	row, revoked, err := s.sessions.ReplaceForUser(ctx, now, u.ID, refresh.Value, refresh.Claims.ExpiresAt,
		session.Device{UserAgent: in.UserAgent, IP: in.IP})
	if err != nil {
		s.log.Error("auth.login.persist_session.fail", "err", err, "user_id", u.ID)
		return LoginResult{}, fmt.Errorf("flow: persist session: %w", err)
	}
	access, err := s.issuer.IssueAccess(u.ID, string(u.Role))
	if err != nil {
		return LoginResult{}, fmt.Errorf("flow: issue access: %w", err)
	}

	if revoked > 0 {
		s.pub.SessionRevoked(ctx, u.ID, session.ReasonSuperseded, revoked)
	}
	s.record(ctx, audit.ActionLoginSuccess, u.ID, email, in.Client, map[string]any{
		"session_id":       row.ID,
		"revoked_sessions": revoked,
		"remember_me":      in.RememberMe,
	})
	s.log.Info("auth.login.ok", "user_id", u.ID, "session_id", row.ID, "revoked", revoked)

	return LoginResult{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         u.Summary(),
		RememberMe:   in.RememberMe,
	}, nil
}

func validateLogin(in LoginInput) error {
	email := identity.NormalizeEmail(in.Email)
	switch {
	case email == "":
		return ValidationError{Field: "email", Msg: "email is required"}
	case !identity.ValidEmail(email):
		return ValidationError{Field: "email", Msg: "invalid email"}
	case in.Password == "":
		return ValidationError{Field: "password", Msg: "password is required"}
	case utf8.RuneCountInString(in.Password) > MaxPasswordLength:
		return ValidationError{Field: "password", Msg: "password too long"}
	}
	return nil
}

// throttle rejects a login when recent failures for the email or the client IP
// reach their limits. Lookup errors fail open.
func (s *Service) throttle(ctx context.Context, email string, c Client) error {
	since := s.now().Add(-s.window)
	checks := []struct {
		by    audit.By
		value string
		limit int
	}{
		{audit.ByIdentifier, email, s.maxFailures},
		{audit.ByIP, c.IP, s.maxIPFailures},
	}
	for _, chk := range checks {
		if chk.limit <= 0 || chk.value == "" {
			continue
		}
		n, err := s.audit.CountFailures(ctx, chk.by, chk.value, since)
		if err != nil {
			s.log.Warn("auth.login.throttle.fail", "err", err, "by", chk.by.String())
			continue
		}
		if n >= chk.limit {
			s.record(ctx, audit.ActionLoginRateLimited, "", email, c, map[string]any{
				"by":            chk.by.String(),
				"retry_after_s": int64(s.window.Seconds()),
			})
			return RateLimitError{RetryAfter: s.window}
		}
	}
	return nil
}

// Refresh mints a new access token for a live refresh token. The refresh token
// itself is returned unchanged.
func (s *Service) Refresh(ctx context.Context, refreshToken string, c Client) (res RefreshResult, err error) {
	ctx, done := s.span(ctx, "auth.refresh")
	defer func() {
		if err != nil && outcome(err) != "missing_token" {
			s.record(ctx, audit.ActionRefreshFailed, "", "", c, map[string]any{"reason": outcome(err)})
		}
		done(err)
	}()

	if refreshToken == "" {
		return RefreshResult{}, ErrMissingToken
	}

	claims, err := s.issuer.Verify(refreshToken)
	switch {
	case errors.Is(err, token.ErrExpired):
		// The signature verified, so the row is ours to retire.
		s.revokeExpired(ctx, refreshToken)
		return RefreshResult{}, ErrExpired
	case err != nil:
		return RefreshResult{}, ErrInvalidToken
	case claims.Type != token.KindRefresh:
		return RefreshResult{}, ErrInvalidToken
	}

	row, err := s.sessions.FindActive(ctx, refreshToken)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return RefreshResult{}, ErrInvalidToken
	case err != nil:
		return RefreshResult{}, fmt.Errorf("flow: find session: %w", err)
	case row.UserID != claims.Subject:
		return RefreshResult{}, ErrInvalidToken
	}

	now := s.now()
	if !now.Before(row.ExpiresAt) {
		s.revokeExpired(ctx, refreshToken)
		return RefreshResult{}, ErrExpired
	}

	u, err := s.users.FindByID(ctx, row.UserID)
	switch {
	case identity.IsNotFound(err):
		return RefreshResult{}, ErrInvalidToken
	case err != nil:
		return RefreshResult{}, fmt.Errorf("flow: find user: %w", err)
	}

	access, err := s.issuer.IssueAccess(u.ID, string(u.Role))
	if err != nil {
		return RefreshResult{}, fmt.Errorf("flow: issue access: %w", err)
	}
	s.record(ctx, audit.ActionRefreshSuccess, u.ID, "", c, map[string]any{"session_id": row.ID})

	return RefreshResult{AccessToken: access, RefreshToken: refreshToken}, nil
}

func (s *Service) revokeExpired(ctx context.Context, refreshToken string) {
	if _, err := s.sessions.Revoke(ctx, s.now(), refreshToken, session.ReasonExpired); err != nil {
		s.log.Error("auth.refresh.revoke_expired.fail", "err", err)
	}
}

// Logout revokes the session behind refreshToken, if any. Failures are logged only.
func (s *Service) Logout(ctx context.Context, refreshToken string, c Client) {
	ctx, done := s.span(ctx, "auth.logout")
	defer done(nil)

	if refreshToken == "" {
		return
	}
	flipped, err := s.sessions.Revoke(ctx, s.now(), refreshToken, session.ReasonLogout)
	if err != nil {
		s.log.Error("auth.logout.revoke.fail", "err", err)
		return
	}
	if !flipped {
		return
	}

	row, err := s.sessions.Lookup(ctx, refreshToken)
	if err != nil {
		s.log.Warn("auth.logout.lookup.fail", "err", err)
		return
	}
	s.pub.SessionRevoked(ctx, row.UserID, session.ReasonLogout, 1)
	s.record(ctx, audit.ActionLogout, row.UserID, "", c, map[string]any{"session_id": row.ID})
}

func (s *Service) record(ctx context.Context, action, userID, identifier string, c Client, meta map[string]any) {
	err := s.audit.Record(ctx, audit.Event{
		Action:     action,
		UserID:     userID,
		Identifier: identifier,
		IP:         c.IP,
		UserAgent:  c.UserAgent,
		Meta:       meta,
		CreatedAt:  s.now(),
	})
	if err != nil {
		s.log.Error("auth.audit.insert.fail", "err", err, "action", action)
	}
}
