// Package app wires the community server runtime: config, logging, storage,
// telemetry, the auth stack, realtime session events and HTTP routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"community/cmd/identity"
	"community/cmd/internal/auth/api"
	"community/cmd/internal/auth/authn"
	"community/cmd/internal/auth/flow"
	"community/cmd/internal/auth/token"
	"community/cmd/internal/realtime"
	"community/cmd/security/password"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App is the server runtime: it owns storage, the auth stack and the HTTP server wiring.
type App struct {
	cfg Config
	log Logger

	registry *prometheus.Registry
	stores   *stores
	flow     *flow.Service
	auth     *api.Handler
	authn    *authn.Middleware
	hub      *realtime.Hub
	ws       *realtime.Gateway
	httpMet  *HTTPMetrics
}

// New constructs a fully wired App. Callers must Close it.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, nil)
	}

	tcfg, err := cfg.tokenConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	issuer, err := token.New(token.Format(strings.ToLower(cfg.TokenFormat)), tcfg)
	if err != nil {
		return nil, err
	}

	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, log: log, stores: st}

	if err := bootstrapUser(ctx, cfg, st.users, pwCfg, log); err != nil {
		_ = st.Close()
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.httpMet = NewHTTPMetrics(a.registry)

	var pub flow.Publisher = flow.NopPublisher{}
	if cfg.RealtimeEnabled {
		wsCfg, err := realtime.GatewayConfigFromEnv()
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		a.hub = realtime.NewHub(log, realtime.NewMetrics(a.registry))
		a.ws = realtime.NewGateway(log, a.hub, wsCfg)
		pub = a.hub
	}

	a.flow, err = flow.New(flow.Config{
		Issuer:        issuer,
		Sessions:      st.sessions,
		Users:         st.users,
		Passwords:     identity.NewHashVerifier(pwCfg),
		Audit:         st.audit,
		Publisher:     pub,
		Logger:        log,
		Metrics:       flow.NewMetrics(a.registry),
		MaxFailures:   cfg.LoginMaxFailures,
		MaxIPFailures: cfg.LoginIPMaxFailures,
		FailureWindow: cfg.LoginWindow,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	a.auth = api.NewHandler(log, a.flow, api.Config{
		Prefix:       cfg.APIPrefix,
		MaxBodyBytes: cfg.MaxBodyBytes,
		TrustProxy:   cfg.TrustProxy,
		CookieSecure: cfg.CookieSecure,
		AccessTTL:    cfg.AccessTTL,
		RefreshTTL:   cfg.RefreshTTL,
	})

	var authenticator authn.Authenticator = authn.TokenAuthenticator{Issuer: issuer}
	if cfg.AuthStrategy == StrategySession {
		authenticator = authn.StoreAuthenticator{Store: st.sessions, Directory: st.users}
	}
	a.authn = authn.New(authn.Config{
		Rules:         authn.DefaultRules(),
		Authenticator: authenticator,
		Prefix:        cfg.APIPrefix,
		Logger:        log,
		Metrics:       authn.NewMetrics(a.registry),
	})

	return a, nil
}

// Handler returns the complete HTTP handler chain.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.registerHTTP(mux)

	var h http.Handler = a.authn.Wrap(mux)
	h = WithMetrics(h, mux, a.httpMet)
	h = WithRequestLogging(h, a.log)
	h = WithCORS(h, a.cfg, a.log)
	return WithSecurityHeaders(h)
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"store", a.stores.backend,
		"token_format", a.cfg.TokenFormat,
		"auth_strategy", a.cfg.AuthStrategy,
		"realtime", a.hub != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	// Websocket connections are hijacked; Shutdown does not wait for them.
	if a.hub != nil {
		a.hub.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

// Close releases storage and stops realtime connections.
func (a *App) Close() error {
	if a.hub != nil {
		a.hub.Close()
	}
	if err := a.stores.Close(); err != nil {
		a.log.Error("store.close.fail", "err", err)
		return err
	}
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
