// Package audit persists authentication events and answers the failure counts
// used to throttle login attempts.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"community/cmd/identity/ids"
)

// Actions recorded by the auth flow.
const (
	ActionLoginSuccess     = "auth.login.success"
	ActionLoginFailed      = "auth.login.failed"
	ActionLoginRateLimited = "auth.login.rate_limited"
	ActionRefreshSuccess   = "auth.refresh.success"
	ActionRefreshFailed    = "auth.refresh.failed"
	ActionLogout           = "auth.logout"
)

var ErrInvalidEvent = errors.New("audit: invalid event")

// Event is one audit row. Optional fields are empty when unknown.
type Event struct {
	ID         string
	Action     string
	UserID     string
	Identifier string
	IP         string
	UserAgent  string
	Meta       map[string]any
	CreatedAt  time.Time
}

// By selects the column failures are counted on.
type By int

const (
	ByIdentifier By = iota
	ByIP
)

func (b By) String() string {
	if b == ByIP {
		return "ip"
	}
	return "identifier"
}

// Log records events and counts recent login failures.
type Log interface {
	Record(ctx context.Context, ev Event) error
	// CountFailures counts auth.login.failed events with the given identifier or IP
	// created at or after since.
	CountFailures(ctx context.Context, by By, value string, since time.Time) (int, error)
}

// prepare fills ID and CreatedAt and trims free-form fields.
func prepare(ev Event, now func() time.Time) (Event, error) {
	ev.Action = strings.TrimSpace(ev.Action)
	if ev.Action == "" {
		return Event{}, ErrInvalidEvent
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now()
	}
	ev.CreatedAt = ev.CreatedAt.UTC()
	if ev.ID == "" {
		id, err := ids.NewULID(ev.CreatedAt)
		if err != nil {
			return Event{}, err
		}
		ev.ID = id
	}
	ev.UserAgent = truncate(strings.TrimSpace(ev.UserAgent), 512)
	ev.Identifier = truncate(strings.TrimSpace(ev.Identifier), 320)
	ev.IP = strings.TrimSpace(ev.IP)
	return ev, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// metaJSON returns nil for empty meta so the column stays NULL.
func metaJSON(meta map[string]any) *string {
	if len(meta) == 0 {
		return nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Nop discards events and reports zero failures.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

func (Nop) CountFailures(context.Context, By, string, time.Time) (int, error) { return 0, nil }
