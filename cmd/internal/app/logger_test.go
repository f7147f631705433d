package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewLogger_JSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	log := NewLogger("warn", "json", &buf)
	log.Info("server.start")
	log.Warn("auth.login.throttle.fail", "by", "ip")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the warn line, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if rec["msg"] != "auth.login.throttle.fail" || rec["by"] != "ip" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestPrettyHandler_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, false))

	log.With("conn_id", "c1").WithGroup("req").Info("http.request", "status", 404, "path", "/a b")

	out := buf.String()
	for _, want := range []string{"[INFO]", "http.request", "conn_id=c1", "req.status=404", `req.path="/a b"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("unexpected ANSI codes in %q", out)
	}
}

func TestPrettyHandler_LevelFilterAndColor(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, true))

	log.Info("dropped")
	log.Error("authn.reject", "outcome", "rejected")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info should be filtered: %q", out)
	}
	if !strings.Contains(out, ansiRed+"[ERROR]"+ansiReset) {
		t.Fatalf("expected red error tag in %q", out)
	}
}

func TestPrettyHandler_BoundAttrsKeepTheirGroup(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, nil, false))

	log.WithGroup("ws").With("conn_id", "c2").WithGroup("frame").Info("realtime.send", "type", "pong")

	out := buf.String()
	for _, want := range []string{"ws.conn_id=c2", "ws.frame.type=pong"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

func TestEventColor(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"auth.logout.revoke.fail": ansiRed,
		"auth.login.ok":           ansiGreen,
		"server.start":            ansiGreen,
		"http.request":            ansiBright,
		"plain":                   ansiBright,
	}
	for msg, want := range cases {
		if got := eventColor(msg); got != want {
			t.Fatalf("eventColor(%q)=%q want=%q", msg, got, want)
		}
	}
}
