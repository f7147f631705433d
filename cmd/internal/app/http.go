package app

import (
	"net/http"

	"community/cmd/internal/auth/authn"
	"community/cmd/internal/envelope"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (a *App) registerHTTP(mux *http.ServeMux) {
	p := a.cfg.APIPrefix

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /readyz", a.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))

	a.auth.Register(mux)

	if a.ws != nil {
		mux.Handle("GET "+p+"/ws", a.ws)
	}

	// Identity consumers. Real content handlers live elsewhere; these show what they receive.
	mux.HandleFunc("GET "+p+"/login", func(w http.ResponseWriter, _ *http.Request) {
		envelope.Write(w, http.StatusOK, "login", map[string]string{"login": p + "/auth"})
	})
	mux.HandleFunc("GET "+p+"/{$}", handleLanding)
	mux.HandleFunc("GET "+p+"/index", handleLanding)
	mux.HandleFunc("GET "+p+"/me", handleIdentity)
	mux.HandleFunc("GET "+p+"/posts", handleIdentity)
	mux.HandleFunc("GET "+p+"/posts/{id}", handleIdentity)
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.cfg.ReadinessRequireDB && !a.stores.persistent() {
		http.Error(w, "db not configured", http.StatusServiceUnavailable)
		return
	}
	if err := a.stores.ping(r.Context()); err != nil {
		a.log.Info("readyz.db.not_ready", "err", err)
		http.Error(w, "db not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready\n"))
}

func handleLanding(w http.ResponseWriter, r *http.Request) {
	id, _ := authn.FromContext(r.Context())
	envelope.Write(w, http.StatusOK, "OK", map[string]string{"userId": id.UserID})
}

// handleIdentity echoes the bound identity; anonymous callers get null data.
func handleIdentity(w http.ResponseWriter, r *http.Request) {
	id, ok := authn.FromContext(r.Context())
	if !ok {
		envelope.Write(w, http.StatusOK, "OK", nil)
		return
	}
	envelope.Write(w, http.StatusOK, "OK", id)
}
