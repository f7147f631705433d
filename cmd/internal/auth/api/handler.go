// Package api serves the authentication endpoints: login (POST /auth), refresh
// (POST /auth/refresh) and logout (DELETE /auth).
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"community/cmd/internal/auth/flow"
	"community/cmd/internal/envelope"
)

// Flow is the orchestration the handlers delegate to.
type Flow interface {
	Login(ctx context.Context, in flow.LoginInput) (flow.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string, c flow.Client) (flow.RefreshResult, error)
	Logout(ctx context.Context, refreshToken string, c flow.Client)
}

const (
	msgModified           = "Modified"
	msgInvalidBody        = "invalid request body"
	msgInvalidCredentials = "invalid email or password"
	msgInternal           = "internal error"
)

// Handler wires HTTP auth endpoints to the auth flow.
type Handler struct {
	log  *slog.Logger
	cfg  Config
	flow Flow
}

func NewHandler(log *slog.Logger, f Flow, cfg Config) *Handler {
	if log == nil {
		log = slog.Default()
	}
	cfg.Prefix = strings.TrimSuffix(cfg.Prefix, "/")
	return &Handler{log: log, cfg: cfg.withDefaults(), flow: f}
}

// Register wires auth routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	p := h.cfg.Prefix
	mux.HandleFunc("POST "+p+"/auth", h.handleLogin)
	mux.HandleFunc("POST "+p+"/auth/refresh", h.handleRefresh)
	mux.HandleFunc("DELETE "+p+"/auth", h.handleLogout)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := envelope.Decode(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		envelope.Error(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	res, err := h.flow.Login(r.Context(), flow.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: req.RememberMe,
		Client:     h.client(r),
	})
	if err != nil {
		h.writeFlowError(w, "auth.login", err)
		return
	}

	h.setAccessCookie(w, res.AccessToken.Value)
	h.setRefreshCookie(w, res.RefreshToken.Value, res.RememberMe)
	envelope.Write(w, http.StatusOK, msgModified, loginData{
		AccessToken:  res.AccessToken.Value,
		RefreshToken: res.RefreshToken.Value,
		User:         res.User,
	})
}

// handleRefresh rewrites only the access cookie; the refresh cookie is left as is.
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := h.flow.Refresh(r.Context(), refreshTokenFromCookie(r), h.client(r))
	if err != nil {
		h.writeFlowError(w, "auth.refresh", err)
		return
	}

	h.setAccessCookie(w, res.AccessToken.Value)
	envelope.Write(w, http.StatusOK, msgModified, refreshData{
		AccessToken:  res.AccessToken.Value,
		RefreshToken: res.RefreshToken,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.flow.Logout(r.Context(), refreshTokenFromCookie(r), h.client(r))
	h.clearCookies(w)
	envelope.Write(w, http.StatusOK, msgModified, nil)
}

func (h *Handler) writeFlowError(w http.ResponseWriter, op string, err error) {
	var (
		ve flow.ValidationError
		rl flow.RateLimitError
	)
	switch {
	case errors.As(err, &ve):
		envelope.Error(w, http.StatusBadRequest, ve.Msg)
	case errors.Is(err, flow.ErrInvalidCredentials):
		envelope.Error(w, http.StatusBadRequest, msgInvalidCredentials)
	case errors.As(err, &rl):
		if rl.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.FormatInt(int64(rl.RetryAfter.Seconds()), 10))
		}
		envelope.Error(w, http.StatusTooManyRequests, flow.ErrRateLimited.Error())
	case errors.Is(err, flow.ErrMissingToken), errors.Is(err, flow.ErrInvalidToken), errors.Is(err, flow.ErrExpired):
		envelope.Error(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error(op+".fail", "err", err)
		envelope.Error(w, http.StatusInternalServerError, msgInternal)
	}
}

func (h *Handler) client(r *http.Request) flow.Client {
	c := flow.Client{UserAgent: strings.TrimSpace(r.UserAgent())}
	if ip := clientIP(r, h.cfg.TrustProxy); ip != nil {
		c.IP = ip.String()
	}
	return c
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		for _, p := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
			if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
				return ip
			}
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}
