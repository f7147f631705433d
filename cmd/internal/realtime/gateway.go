package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"community/cmd/identity/ids"
	"community/cmd/internal/auth/authn"
	"community/cmd/internal/envelope"
	v1 "community/shared/contracts/realtime/v1"

	"github.com/caarlos0/env/v11"
	"github.com/coder/websocket"
)

// GatewayConfig tunes the websocket endpoint. Zero values fall back to defaults.
type GatewayConfig struct {
	AllowedOrigins []string `env:"COMMUNITY_WS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost,http://127.0.0.1"`
	OriginRequired bool     `env:"COMMUNITY_WS_ORIGIN_REQUIRED" envDefault:"true"`

	// InsecureSkipVerify disables the library's own origin check. Dev only.
	InsecureSkipVerify bool `env:"COMMUNITY_WS_DEV_INSECURE"`

	WriteTimeout     time.Duration `env:"COMMUNITY_WS_WRITE_TIMEOUT"`
	ReadIdle         time.Duration `env:"COMMUNITY_WS_READ_IDLE_TIMEOUT"`
	SendQueue        int           `env:"COMMUNITY_WS_SEND_QUEUE"`
	HeartbeatEvery   time.Duration `env:"COMMUNITY_WS_HEARTBEAT_INTERVAL"`
	HeartbeatTimeout time.Duration `env:"COMMUNITY_WS_HEARTBEAT_TIMEOUT"`
	RateEvents       int           `env:"COMMUNITY_WS_RATE_EVENTS"`
	RateWindow       time.Duration `env:"COMMUNITY_WS_RATE_WINDOW"`
}

func GatewayConfigFromEnv() (GatewayConfig, error) {
	var c GatewayConfig
	if err := env.Parse(&c); err != nil {
		return GatewayConfig{}, fmt.Errorf("realtime: parse env: %w", err)
	}
	return c, nil
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = wsDefaultWriteTimeout
	}
	if c.ReadIdle <= 0 {
		c.ReadIdle = wsDefaultReadIdle
	}
	if c.SendQueue <= 0 {
		c.SendQueue = wsDefaultSendQueueSize
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = heartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = heartbeatTimeout
	}
	if c.RateEvents <= 0 {
		c.RateEvents = rateLimitEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = rateLimitWindow
	}
	return c
}

// Gateway upgrades authenticated requests to websocket connections that receive
// the caller's session events.
//
// Authentication happens upstream: the gateway only reads the identity that the
// authn middleware placed on the request context.
type Gateway struct {
	log *slog.Logger
	hub *Hub
	cfg GatewayConfig

	// Accept authorizes same-host origins on its own; cross-origin needs patterns.
	originPatterns []string
}

func NewGateway(log *slog.Logger, hub *Hub, cfg GatewayConfig) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		hub = NewHub(log, nil)
	}
	cfg = cfg.withDefaults()
	return &Gateway{
		log:            log,
		hub:            hub,
		cfg:            cfg,
		originPatterns: deriveOriginPatterns(cfg.AllowedOrigins),
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := authn.FromContext(r.Context())
	if !ok {
		envelope.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// Server read/write timeouts would otherwise survive the hijack and cut long-lived connections.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{v1.Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.InsecureSkipVerify,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != v1.Subprotocol {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", v1.Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	connID, err := ids.NewULID(time.Now().UTC())
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	client := NewClient(connID, id.UserID, g.cfg.SendQueue)
	if !g.hub.Register(client) {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	g.log.Info("ws.connect", "conn_id", connID, "user_id", id.UserID)

	g.run(r.Context(), conn, client)
	g.log.Info("ws.disconnect", "conn_id", connID, "user_id", id.UserID)
}

func (g *Gateway) run(parent context.Context, conn *websocket.Conn, client *Client) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var closeOnce sync.Once
	// shutdown never closes client.Send; the hub may still be offering to it.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Unregister(client)
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				// Hub closed us; say goodbye properly.
				shutdown(websocket.StatusGoingAway, "server shutdown")
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
					g.log.Info("ws.write.fail", "conn_id", client.ID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		t := time.NewTicker(g.cfg.HeartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()
				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "conn_id", client.ID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	rl := NewRateLimiter(g.cfg.RateEvents, g.cfg.RateWindow)

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.cfg.ReadIdle)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				if !rl.Allow(time.Now()) {
					shutdown(websocket.StatusPolicyViolation, "rate limited")
					break readLoop
				}
				g.sendError(client, "bad_json", "invalid JSON")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "conn_id", client.ID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.sendError(client, "rate_limited", "too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.ValidateInbound(); err != nil {
			g.sendError(client, "bad_envelope", err.Error())
			continue readLoop
		}

		// ping is the only inbound type that validates.
		p, _ := json.Marshal(v1.PongPayload{PingID: env.ID})
		pong, err := newEnvelope(v1.TypePong, p, now)
		if err != nil {
			g.log.Error("ws.envelope.fail", "err", err)
			continue
		}
		client.offer(pong)
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

func (g *Gateway) sendError(client *Client, code, msg string) {
	p, _ := json.Marshal(v1.ErrorPayload{Code: code, Message: msg})
	env, err := newEnvelope(v1.TypeError, p, time.Now().UTC())
	if err != nil {
		return
	}
	client.offer(env)
}

// errBadJSON marks decode failures the read loop survives.
var errBadJSON = errors.New("bad json")

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, fmt.Errorf("%w: %v", errBadJSON, err)
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	switch {
	case websocket.CloseStatus(err) != -1:
		return readErrClose
	case errors.Is(err, errBadJSON):
		return readErrBadJSON
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return readErrCtxDone
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
		return readErrConnClosed
	}
	return readErrUnknown
}

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}
	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)
	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		switch {
		case a == "":
			continue
		case a == "*", origin == a:
			return nil
		case originHost != "" && originHost == originHostOnly(a):
			// Host match ignores scheme and port.
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = strings.TrimSpace(u.Host)
		if s == "" {
			return ""
		}
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatterns turns the allowlist into the host patterns Accept matches against.
func deriveOriginPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}
