package identity

import (
	"context"
	"time"
)

// Role is the authorization role carried in access tokens.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole maps s to a known role, defaulting to RoleUser.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}

// User is the principal as stored.
type User struct {
	ID           string
	Email        string
	Nickname     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	DeletedAt    *time.Time
}

// Deleted reports whether the account is soft-deleted.
func (u User) Deleted() bool { return u.DeletedAt != nil }

// Summary is the public projection returned to clients.
type Summary struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Role     Role   `json:"role"`
}

func (u User) Summary() Summary {
	return Summary{ID: u.ID, Email: u.Email, Nickname: u.Nickname, Role: u.Role}
}

// CreateUserInput describes a new account. PasswordHash must already be hashed.
type CreateUserInput struct {
	Email        string
	Nickname     string
	PasswordHash string
	Role         Role
	Now          time.Time
}

// Directory is the read side consumed by authentication.
type Directory interface {
	// FindByEmailIncludingDeleted looks up by normalized email, soft-deleted accounts included.
	FindByEmailIncludingDeleted(ctx context.Context, email string) (User, error)

	// FindByID returns an account that is not soft-deleted.
	FindByID(ctx context.Context, id string) (User, error)
}

// Store adds the write operations used for provisioning.
type Store interface {
	Directory
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	SoftDelete(ctx context.Context, id string, now time.Time) error
}

func prepareCreate(op string, in CreateUserInput) (CreateUserInput, error) {
	in.Email = NormalizeEmail(in.Email)
	in.Nickname = NormalizeNickname(in.Nickname)
	if !ValidEmail(in.Email) {
		return in, invalid(op, "invalid email")
	}
	if in.Nickname == "" {
		return in, invalid(op, "nickname is required")
	}
	if in.PasswordHash == "" {
		return in, invalid(op, "password hash is required")
	}
	if in.Role == "" {
		in.Role = RoleUser
	}
	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	in.Now = in.Now.UTC()
	return in, nil
}
