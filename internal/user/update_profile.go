package user

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/stonemart/internal/apperr"
	"github.com/sudo-init-do/stonemart/internal/store"
)

// PUT /users/me/push-token
// An empty token unregisters the device.
func (h *Handler) RegisterPushToken(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or missing token"})
	}

	var req PushTokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	req.Token = strings.TrimSpace(req.Token)
	if len(req.Token) > maxPushTokenLen {
		return apperr.Invalid("push token is too long")
	}

	err := h.users.SetPushToken(c.Request().Context(), userID, req.Token)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("user not found")
	}
	if err != nil {
		return apperr.Fatal(err, "failed to update push token")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "registered": req.Token != ""})
}
