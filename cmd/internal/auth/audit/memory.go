package audit

import (
	"context"
	"sync"
	"time"
)

// DefaultMemoryCapacity bounds the in-memory ring.
const DefaultMemoryCapacity = 10_000

// MemoryLog keeps the most recent events in a fixed-size ring.
type MemoryLog struct {
	mu   sync.Mutex
	ring []Event
	next int
	full bool
	now  func() time.Time
}

func NewMemoryLog(capacity int) *MemoryLog {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryLog{ring: make([]Event, capacity), now: time.Now}
}

func (l *MemoryLog) Record(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev, err := prepare(ev, l.now)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.ring[l.next] = ev
	l.next = (l.next + 1) % len(l.ring)
	if l.next == 0 {
		l.full = true
	}
	return nil
}

func (l *MemoryLog) CountFailures(ctx context.Context, by By, value string, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if value == "" {
		return 0, nil
	}

	n := 0
	for _, ev := range l.Events() {
		if ev.Action != ActionLoginFailed || ev.CreatedAt.Before(since) {
			continue
		}
		if (by == ByIP && ev.IP == value) || (by == ByIdentifier && ev.Identifier == value) {
			n++
		}
	}
	return n, nil
}

// Events returns a snapshot, oldest first.
func (l *MemoryLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.full {
		return append([]Event(nil), l.ring[:l.next]...)
	}
	out := make([]Event, 0, len(l.ring))
	out = append(out, l.ring[l.next:]...)
	return append(out, l.ring[:l.next]...)
}
