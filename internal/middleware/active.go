package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/stonemart/internal/apperr"
	"github.com/sudo-init-do/stonemart/internal/models"
	"github.com/sudo-init-do/stonemart/internal/store"
)

// UserLookup is the slice of the store ActiveUser reads.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// ActiveUser runs after JWT. It rejects tokens whose account has been
// suspended or deleted since issue, and replaces the token's role with the
// stored one so role changes apply immediately.
func ActiveUser(users UserLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, ok := ActorFrom(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "unauthorized"})
			}
			u, err := users.GetUser(c.Request().Context(), actor.ID)
			if errors.Is(err, store.ErrNotFound) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "account no longer exists"})
			}
			if err != nil {
				return apperr.Fatal(err, "failed to load account")
			}
			if !u.IsActive {
				return apperr.Forbidden("Account suspended")
			}
			c.Set("role", string(u.Role))
			return next(c)
		}
	}
}
