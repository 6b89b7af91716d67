// Package auth is the local identity collaborator: accounts, password
// login and the JWTs the rest of the API verifies.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"

	"github.com/sudo-init-do/stonemart/internal/apperr"
	"github.com/sudo-init-do/stonemart/internal/models"
	"github.com/sudo-init-do/stonemart/internal/store"
)

const TokenTTL = 72 * time.Hour

type Service struct {
	users  store.Users
	secret []byte
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewService(users store.Users, secret string, log logrus.FieldLogger) *Service {
	return &Service{users: users, secret: []byte(secret), log: log, now: time.Now}
}

// IssueToken signs the {user_id, role, exp} claims the JWT middleware reads.
func (s *Service) IssueToken(userID string, role models.Role) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    string(role),
		"exp":     s.now().Add(TokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", apperr.Fatal(err, "token generation failed")
	}
	return signed, nil
}

func (s *Service) user(ctx context.Context, id string) (*models.User, error) {
	u, err := s.users.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Fatal(err, "failed to load user")
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
