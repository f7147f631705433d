package flow

import "context"

// Publisher fans session lifecycle events out to a user's live connections.
type Publisher interface {
	SessionRevoked(ctx context.Context, userID, reason string, count int64)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) SessionRevoked(context.Context, string, string, int64) {}
