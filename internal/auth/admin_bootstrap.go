package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sudo-init-do/stonemart/internal/config"
	"github.com/sudo-init-do/stonemart/internal/models"
	"github.com/sudo-init-do/stonemart/internal/store"
)

// BootstrapAdmin makes sure the configured admin account exists. An
// existing account with that email is promoted; without ADMIN_EMAIL it does
// nothing.
func (s *Service) BootstrapAdmin(ctx context.Context, cfg config.AdminConfig) error {
	email := normalizeEmail(cfg.Email)
	if email == "" {
		return nil
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role == models.RoleAdmin {
			return nil
		}
		if err := s.users.UpdateUserRole(ctx, existing.ID, models.RoleAdmin); err != nil {
			return err
		}
		s.log.WithField("user_id", existing.ID).Info("bootstrap user promoted to admin")
		return nil
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	if len(cfg.Password) < minPasswordLen {
		return errors.New("auth: ADMIN_PASSWORD must be set to create the bootstrap admin")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u := &models.User{
		ID:           uuid.NewString(),
		Name:         cfg.Name,
		Email:        email,
		PasswordHash: string(hashed),
		Role:         models.RoleAdmin,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return err
	}
	s.log.WithField("user_id", u.ID).Info("bootstrap admin created")
	return nil
}
