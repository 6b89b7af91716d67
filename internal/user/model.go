// Package user serves profile reads and push-channel registration.
package user

import (
	"context"

	"github.com/sudo-init-do/stonemart/internal/models"
)

// Directory is the part of the user store this package needs.
type Directory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	SetPushToken(ctx context.Context, id, token string) error
}

type PushTokenRequest struct {
	Token string `json:"token"`
}

const maxPushTokenLen = 512

type Handler struct {
	users Directory
}

func NewHandler(users Directory) *Handler {
	return &Handler{users: users}
}
