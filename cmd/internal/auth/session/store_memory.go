package session

import (
	"context"
	"sync"
	"time"

	"community/cmd/identity/ids"
	sectoken "community/cmd/security/token"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu     sync.Mutex
	hasher sectoken.Hasher
	rows   map[string]*Row // by token hash
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(hasher sectoken.Hasher) *MemoryStore {
	return &MemoryStore{hasher: hasher, rows: make(map[string]*Row)}
}

func (s *MemoryStore) Persist(_ context.Context, now time.Time, userID, token string, expiresAt time.Time, dev Device) (Row, error) {
	if err := validate(userID, token); err != nil {
		return Row{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(now, userID, token, expiresAt, dev)
}

func (s *MemoryStore) persistLocked(now time.Time, userID, token string, expiresAt time.Time, dev Device) (Row, error) {
	h := s.hasher.Hash(token)
	if _, ok := s.rows[h]; ok {
		return Row{}, ErrDuplicate
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Row{}, err
	}
	return s.insertLocked(id, h, now, userID, expiresAt, dev), nil
}

func (s *MemoryStore) insertLocked(id, hash string, now time.Time, userID string, expiresAt time.Time, dev Device) Row {
	row := &Row{
		ID:        id,
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: expiresAt.UTC(),
		UserAgent: trimTo(dev.UserAgent, 512),
		IP:        dev.IP,
		CreatedAt: now.UTC(),
	}
	s.rows[hash] = row
	return *row
}

func (s *MemoryStore) FindActive(_ context.Context, token string) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[s.hasher.Hash(token)]
	if !ok || row.Revoked {
		return Row{}, ErrNotFound
	}
	return *row, nil
}

func (s *MemoryStore) Lookup(_ context.Context, token string) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[s.hasher.Hash(token)]
	if !ok {
		return Row{}, ErrNotFound
	}
	return *row, nil
}

func (s *MemoryStore) RevokeAllForUser(_ context.Context, now time.Time, userID, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revokeAllLocked(now, userID, reason), nil
}

func (s *MemoryStore) revokeAllLocked(now time.Time, userID, reason string) int64 {
	var n int64
	for _, row := range s.rows {
		if row.UserID == userID && !row.Revoked {
			revokeRow(row, now, reason)
			n++
		}
	}
	return n
}

func (s *MemoryStore) Revoke(_ context.Context, now time.Time, token, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[s.hasher.Hash(token)]
	if !ok || row.Revoked {
		return false, nil
	}
	revokeRow(row, now, reason)
	return true, nil
}

func (s *MemoryStore) ReplaceForUser(_ context.Context, now time.Time, userID, token string, expiresAt time.Time, dev Device) (Row, int64, error) {
	if err := validate(userID, token); err != nil {
		return Row{}, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Fail before mutating anything so the call stays all-or-nothing.
	h := s.hasher.Hash(token)
	if _, ok := s.rows[h]; ok {
		return Row{}, 0, ErrDuplicate
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Row{}, 0, err
	}

	revoked := s.revokeAllLocked(now, userID, ReasonSuperseded)
	return s.insertLocked(id, h, now, userID, expiresAt, dev), revoked, nil
}

func (s *MemoryStore) Close() error { return nil }

func revokeRow(row *Row, now time.Time, reason string) {
	t := now.UTC()
	row.Revoked = true
	row.RevokedAt = &t
	row.RevocationReason = reason
}
