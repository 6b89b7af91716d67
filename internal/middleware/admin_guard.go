package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/stonemart/internal/apperr"
)

// AdminGuard lets only admins through. It runs after JWT.
func AdminGuard(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, ok := ActorFrom(c)
		if !ok || !actor.IsAdmin() {
			return apperr.Forbidden("Admin access only")
		}
		return next(c)
	}
}
