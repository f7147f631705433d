package identity

import (
	"context"
	"sync"
	"time"

	"community/cmd/identity/ids"
)

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]User
	byEmail map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]User),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) FindByEmailIncludingDeleted(ctx context.Context, email string) (User, error) {
	const op = "identity.FindByEmailIncludingDeleted"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, notFound(op)
	}
	return s.byID[id], nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (User, error) {
	const op = "identity.FindByID"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok || u.Deleted() {
		return User{}, notFound(op)
	}
	return u, nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	in, err := prepareCreate(op, in)
	if err != nil {
		return User{}, err
	}
	id, err := ids.NewULID(in.Now)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[in.Email]; taken {
		return User{}, ConflictError{Op: op, Field: "email"}
	}
	u := User{
		ID:           id,
		Email:        in.Email,
		Nickname:     in.Nickname,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
		CreatedAt:    in.Now,
	}
	s.byID[id] = u
	s.byEmail[u.Email] = id
	return u, nil
}

func (s *MemoryStore) SoftDelete(ctx context.Context, id string, now time.Time) error {
	const op = "identity.SoftDelete"
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok || u.Deleted() {
		return notFound(op)
	}
	at := now.UTC()
	u.DeletedAt = &at
	s.byID[id] = u
	return nil
}
