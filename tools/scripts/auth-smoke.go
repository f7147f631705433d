// Package main provides a CI-friendly smoke test for the auth and realtime surface.
//
// It validates:
//   - login sets both cookies and returns the token pair
//   - an access token opens the websocket stream (subprotocol + ping/pong)
//   - a second login pushes session.revoked(superseded) to the open socket
//   - the superseded refresh token no longer refreshes, the new one does
//   - logout clears cookies and revokes the session
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "community/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const maxReadBytes = 1 << 20

type envelopeBody struct {
	Success bool            `json:"success"`
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type smokeClient struct {
	conn  *websocket.Conn
	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8080", "API base URL (including any prefix)")
		origin   = flag.String("origin", "http://localhost", "Origin header for the websocket handshake")
		email    = flag.String("email", os.Getenv("COMMUNITY_BOOTSTRAP_EMAIL"), "Login email")
		password = flag.String("password", os.Getenv("COMMUNITY_BOOTSTRAP_PASSWORD"), "Login password")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	base, err := url.Parse(strings.TrimSuffix(*baseURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		fatalf("invalid -url: %q", *baseURL)
	}
	if *email == "" || *password == "" {
		fatalf("-email and -password are required")
	}

	hc := &http.Client{Timeout: *timeout}
	root := context.Background()

	first := mustLogin(root, hc, base, *email, *password)
	if *verbose {
		fmt.Println("login #1 ok")
	}

	ws := mustConnect(root, base, *origin, first.AccessToken, *timeout)
	defer func() { _ = ws.conn.Close(websocket.StatusNormalClosure, "bye") }()

	mustWrite(root, ws.conn, v1.Envelope{V: v1.Version, Type: v1.TypePing, ID: "smoke-ping", TS: time.Now().UTC()}, *timeout)
	pong := ws.mustReadUntilType(root, v1.TypePong, *timeout)
	var pp v1.PongPayload
	if err := json.Unmarshal(pong.Payload, &pp); err != nil || pp.PingID != "smoke-ping" {
		fatalf("pong payload mismatch: %s", pong.Payload)
	}

	second := mustLogin(root, hc, base, *email, *password)
	ev := ws.mustReadUntilType(root, v1.TypeSessionRevoked, *timeout)
	var rp v1.SessionRevokedPayload
	if err := json.Unmarshal(ev.Payload, &rp); err != nil {
		fatalf("session.revoked payload: %v", err)
	}
	if rp.Reason != "superseded" || rp.Count < 1 {
		fatalf("session.revoked payload mismatch: %+v", rp)
	}
	if *verbose {
		fmt.Printf("login #2 ok, socket saw session.revoked reason=%s count=%d\n", rp.Reason, rp.Count)
	}

	if status, _ := refresh(root, hc, base, first.RefreshToken); status != http.StatusBadRequest {
		fatalf("superseded refresh token: got status %d want 400", status)
	}
	status, body := refresh(root, hc, base, second.RefreshToken)
	if status != http.StatusOK {
		fatalf("refresh: got status %d (%s)", status, body.Message)
	}
	var rt tokens
	if err := json.Unmarshal(body.Data, &rt); err != nil || rt.RefreshToken != second.RefreshToken || rt.AccessToken == "" {
		fatalf("refresh data mismatch: %s", body.Data)
	}

	resp := mustDo(root, hc, http.MethodDelete, base.String()+"/auth", nil, second.RefreshToken)
	if resp.StatusCode != http.StatusOK {
		fatalf("logout: got status %d", resp.StatusCode)
	}
	for _, c := range resp.Cookies() {
		if c.MaxAge >= 0 {
			fatalf("logout did not clear cookie %q", c.Name)
		}
	}
	if status, _ := refresh(root, hc, base, second.RefreshToken); status != http.StatusBadRequest {
		fatalf("refresh after logout: got status %d want 400", status)
	}

	fmt.Println("OK: login, websocket, supersede, refresh and logout behave")
}

func mustLogin(ctx context.Context, hc *http.Client, base *url.URL, email, password string) tokens {
	body, _ := json.Marshal(map[string]any{"email": email, "password": password, "rememberMe": true})
	resp := mustDo(ctx, hc, http.MethodPost, base.String()+"/auth", body, "")
	env := decode(resp)
	if resp.StatusCode != http.StatusOK || !env.Success {
		fatalf("login: status=%d message=%q", resp.StatusCode, env.Message)
	}

	seen := map[string]bool{}
	for _, c := range resp.Cookies() {
		seen[c.Name] = c.HttpOnly
	}
	if !seen["accessToken"] || !seen["refreshToken"] {
		fatalf("login: missing HttpOnly auth cookies")
	}

	var t tokens
	if err := json.Unmarshal(env.Data, &t); err != nil || t.AccessToken == "" || t.RefreshToken == "" {
		fatalf("login: bad token data: %s", env.Data)
	}
	return t
}

func refresh(ctx context.Context, hc *http.Client, base *url.URL, refreshToken string) (int, envelopeBody) {
	resp := mustDo(ctx, hc, http.MethodPost, base.String()+"/auth/refresh", nil, refreshToken)
	return resp.StatusCode, decode(resp)
}

func mustDo(ctx context.Context, hc *http.Client, method, target string, body []byte, refreshCookie string) *http.Response {
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if refreshCookie != "" {
		req.AddCookie(&http.Cookie{Name: "refreshToken", Value: refreshCookie})
	}
	resp, err := hc.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, target, err)
	}
	return resp
}

func decode(resp *http.Response) envelopeBody {
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if err != nil {
		fatalf("read body: %v", err)
	}
	var env envelopeBody
	if err := json.Unmarshal(raw, &env); err != nil {
		fatalf("decode envelope: %v (%q)", err, raw)
	}
	return env
}

func mustConnect(parent context.Context, base *url.URL, origin, accessToken string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	u := *base
	u.Scheme = "ws"
	if base.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(base.Path, "/") + "/ws"

	h := http.Header{}
	h.Set("Authorization", "Bearer "+accessToken)
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{v1.Subprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect: %v", err)
	}
	if got := conn.Subprotocol(); got != v1.Subprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, v1.Subprotocol)
	}
	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{conn: conn, inbox: make(chan v1.Envelope, 64), errCh: make(chan error, 1)}
	c.startReadLoop()
	return c
}

func (c *smokeClient) startReadLoop() {
	fail := func(err error) {
		select {
		case c.errCh <- err:
		default:
		}
	}
	go func() {
		defer close(c.inbox)
		for {
			_, data, err := c.conn.Read(context.Background())
			if err != nil {
				fail(err)
				return
			}
			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				fail(fmt.Errorf("bad json: %w", err))
				return
			}
			if env.V != v1.Version || env.Type == "" || env.ID == "" {
				fail(fmt.Errorf("bad envelope: %s", data))
				return
			}
			select {
			case c.inbox <- env:
			default:
				fail(errors.New("inbox overflow: consumer too slow"))
				return
			}
		}
	}()
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q: %v", wantType, ctx.Err())
		case err := <-c.errCh:
			fatalf("connection error while waiting for %q: %v", wantType, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q", wantType)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error: code=%q msg=%q", ep.Code, ep.Message)
			}
		}
	}
}

func mustWrite(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
