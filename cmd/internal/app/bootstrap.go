package app

import (
	"context"
	"fmt"
	"time"

	"community/cmd/identity"
	"community/cmd/security/password"
)

// bootstrapUser creates the configured account when it does not exist yet.
// An existing account, deleted or not, is left untouched.
func bootstrapUser(ctx context.Context, cfg Config, users identity.Store, hasher password.Config, log Logger) error {
	if cfg.BootstrapEmail == "" {
		return nil
	}

	_, err := users.FindByEmailIncludingDeleted(ctx, cfg.BootstrapEmail)
	switch {
	case err == nil:
		log.Info("bootstrap.user.exists", "email", identity.NormalizeEmail(cfg.BootstrapEmail))
		return nil
	case !identity.IsNotFound(err):
		return fmt.Errorf("bootstrap: lookup: %w", err)
	}

	hash, err := hasher.Hash(cfg.BootstrapPassword)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	u, err := users.CreateUser(ctx, identity.CreateUserInput{
		Email:        cfg.BootstrapEmail,
		Nickname:     cfg.BootstrapNickname,
		PasswordHash: hash,
		Role:         identity.ParseRole(cfg.BootstrapRole),
		Now:          time.Now().UTC(),
	})
	if identity.IsConflict(err) {
		// Another instance won the race.
		return nil
	}
	if err != nil {
		return fmt.Errorf("bootstrap: create: %w", err)
	}
	log.Info("bootstrap.user.created", "user_id", u.ID, "role", string(u.Role))
	return nil
}
