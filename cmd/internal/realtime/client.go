package realtime

import (
	"sync"

	v1 "community/shared/contracts/realtime/v1"
)

// Client is one websocket connection of a user.
//
// Send is never closed by the server so concurrent publishers cannot panic;
// done signals the connection goroutines to stop.
type Client struct {
	ID     string
	UserID string
	Send   chan v1.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(id, userID string, queue int) *Client {
	if queue <= 0 {
		queue = wsDefaultSendQueueSize
	}
	return &Client{
		ID:     id,
		UserID: userID,
		Send:   make(chan v1.Envelope, queue),
		done:   make(chan struct{}),
	}
}

func (c *Client) Done() <-chan struct{} { return c.done }

// Close is idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// offer enqueues env without blocking; a full or closing client drops it.
func (c *Client) offer(env v1.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- env:
		return true
	default:
		return false
	}
}
