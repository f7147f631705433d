package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"community/cmd/identity/ids"
	v1 "community/shared/contracts/realtime/v1"
)

// Hub tracks live connections per user and fans events out to them.
// Publishing never blocks: a client whose queue is full misses the event.
type Hub struct {
	log     *slog.Logger
	metrics *Metrics

	mu     sync.RWMutex
	users  map[string]map[string]*Client
	closed bool
}

func NewHub(log *slog.Logger, m *Metrics) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log, metrics: m, users: make(map[string]map[string]*Client)}
}

// Register adds c; it reports false once the hub is closed.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	conns := h.users[c.UserID]
	if conns == nil {
		conns = make(map[string]*Client)
		h.users[c.UserID] = conns
	}
	conns[c.ID] = c
	h.metrics.connected(1)
	return true
}

// Unregister removes c and signals it to stop.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if conns, ok := h.users[c.UserID]; ok {
		if _, ok := conns[c.ID]; ok {
			delete(conns, c.ID)
			h.metrics.connected(-1)
		}
		if len(conns) == 0 {
			delete(h.users, c.UserID)
		}
	}
	h.mu.Unlock()
	c.Close()
}

// Connections returns the number of live connections of userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// Publish delivers env to every connection of userID and returns how many accepted it.
func (h *Hub) Publish(userID string, env v1.Envelope) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, c := range h.users[userID] {
		if c.offer(env) {
			n++
			h.metrics.event(env.Type, "delivered")
		} else {
			h.metrics.event(env.Type, "dropped")
		}
	}
	return n
}

// SessionRevoked publishes a session.revoked event to userID's connections.
func (h *Hub) SessionRevoked(_ context.Context, userID, reason string, count int64) {
	p, err := json.Marshal(v1.SessionRevokedPayload{Reason: reason, Count: count})
	if err != nil {
		return
	}
	env, err := newEnvelope(v1.TypeSessionRevoked, p, time.Now().UTC())
	if err != nil {
		h.log.Error("ws.envelope.fail", "err", err)
		return
	}
	n := h.Publish(userID, env)
	h.log.Debug("ws.session_revoked.publish", "user_id", userID, "reason", reason, "delivered", n)
}

// Close stops every connection and refuses new registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for uid, conns := range h.users {
		for _, c := range conns {
			c.Close()
			h.metrics.connected(-1)
		}
		delete(h.users, uid)
	}
}

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) (v1.Envelope, error) {
	id, err := ids.NewULID(ts)
	if err != nil {
		return v1.Envelope{}, err
	}
	return v1.Envelope{V: v1.Version, Type: typ, ID: id, TS: ts, Payload: payload}, nil
}
