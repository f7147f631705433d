// Package v1 defines the community realtime protocol, version 1.
//
// The server pushes session lifecycle events to a user's open connections; the
// only client-originated message is a ping. The contract is shared by the server
// and its clients so the wire format has one source of truth.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	Version = 1

	// Subprotocol is negotiated during the websocket handshake.
	Subprotocol = "community.v1"
)

// Wire-stable message types.
const (
	// TypeSessionRevoked tells a user that one or more refresh sessions ended (server -> client).
	TypeSessionRevoked = "session.revoked"

	TypePing = "ping" // client -> server
	TypePong = "pong" // server -> client

	TypeError = "error" // server -> client
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

// ValidateInbound checks an envelope received from a client.
func (e Envelope) ValidateInbound() error {
	if e.V != Version {
		return fmt.Errorf("invalid protocol version: got=%d want=%d", e.V, Version)
	}
	switch e.Type {
	case "":
		return errors.New("missing type")
	case TypePing:
	default:
		return fmt.Errorf("unsupported type: %s", e.Type)
	}
	if e.ID == "" {
		return errors.New("missing id")
	}
	return nil
}

// SessionRevokedPayload accompanies TypeSessionRevoked.
// Reason is one of "logout", "superseded" or "expired".
type SessionRevokedPayload struct {
	Reason string `json:"reason"`
	Count  int64  `json:"count"`
}

// PongPayload echoes the ping's envelope id.
type PongPayload struct {
	PingID string `json:"ping_id"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
