package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

// prettyHandler writes one line per record for local development:
//
//	15:04:05.000 [INFO] auth.login.ok user_id=01H... session_id=01H... revoked=1
//
// Attributes bound with WithAttrs are rendered once, under the group prefix that
// was active at the time.
type prettyHandler struct {
	w      io.Writer
	mu     *sync.Mutex
	level  slog.Leveler
	source bool
	color  bool

	prefix string // open groups, "a.b."
	bound  string // pre-rendered attrs
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	h := &prettyHandler{w: w, mu: &sync.Mutex{}, level: slog.LevelInfo, color: color}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		h.source = opts.AddSource
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(h.paint(ansiDim, ts.Format("15:04:05.000")))
	b.WriteByte(' ')
	b.WriteString(h.levelTag(r.Level))
	b.WriteByte(' ')
	b.WriteString(h.paint(eventColor(r.Message), r.Message))

	if h.source && r.PC != 0 {
		if f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next(); f.File != "" {
			b.WriteString(" src=")
			b.WriteString(h.paint(ansiDim, filepath.Base(f.File)+":"+strconv.Itoa(f.Line)))
		}
	}

	b.WriteString(h.bound)
	r.Attrs(func(a slog.Attr) bool {
		h.render(&b, h.prefix, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	var b strings.Builder
	for _, a := range attrs {
		h.render(&b, h.prefix, a)
	}
	cp := *h
	cp.bound = h.bound + b.String()
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	name = strings.TrimSpace(name)
	if name == "" {
		return h
	}
	cp := *h
	cp.prefix = h.prefix + name + "."
	return &cp
}

func (h *prettyHandler) render(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		sub := prefix
		if a.Key != "" {
			sub += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			h.render(b, sub, ga)
		}
		return
	}
	if strings.TrimSpace(a.Key) == "" {
		return
	}

	b.WriteByte(' ')
	b.WriteString(prefix + a.Key)
	b.WriteByte('=')
	b.WriteString(h.paint(attrColor(a.Key, a.Value), quoteIfNeeded(valueToString(a.Value))))
}

func (h *prettyHandler) levelTag(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return h.paint(ansiRed, "[ERROR]")
	case level >= slog.LevelWarn:
		return h.paint(ansiYellow, "[WARN]")
	case level < slog.LevelInfo:
		return h.paint(ansiMagenta, "[DEBUG]")
	default:
		return h.paint(ansiBlue, "[INFO]")
	}
}

func (h *prettyHandler) paint(code, s string) string {
	if !h.color || code == "" {
		return s
	}
	return code + s + ansiReset
}

// eventColor keys off the last segment of dotted event names such as
// "auth.logout.revoke.fail".
func eventColor(msg string) string {
	last := msg
	if i := strings.LastIndexByte(msg, '.'); i >= 0 {
		last = msg[i+1:]
	}
	switch last {
	case "fail", "error", "panic":
		return ansiRed
	case "ok", "start", "stopped", "created":
		return ansiGreen
	default:
		return ansiBright
	}
}

func attrColor(key string, v slog.Value) string {
	switch key {
	case "method", "path", "route":
		return ansiCyan
	case "user_id", "session_id", "conn_id":
		return ansiMagenta
	case "err":
		return ansiRed
	case "status":
		if v.Kind() == slog.KindInt64 {
			return statusColor(int(v.Int64()))
		}
	case "result", "outcome", "decision", "status_class":
		return resultColor(v.String())
	}
	return ""
}

func statusColor(status int) string {
	switch {
	case status >= 500:
		return ansiRed
	case status >= 400:
		return ansiYellow
	case status >= 300:
		return ansiCyan
	default:
		return ansiGreen
	}
}

func resultColor(result string) string {
	switch strings.ToLower(result) {
	case "success", "ok", "authenticated", "bypass", "2xx":
		return ansiGreen
	case "client_error", "rejected", "anonymous", "invalid_credentials", "rate_limited", "4xx":
		return ansiYellow
	case "server_error", "error", "5xx":
		return ansiRed
	default:
		return ""
	}
}

func valueToString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		// Int64, Uint64, Float64 and Bool format themselves.
		return v.String()
	}
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
