package alerts

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/stonemart/internal/apperr"
	"github.com/sudo-init-do/stonemart/internal/models"
)

// Inbox is the store view the notification endpoints read from.
type Inbox interface {
	ListNotifications(ctx context.Context, userID string) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID string) (bool, error)
}

type Handler struct {
	inbox Inbox
}

func NewHandler(inbox Inbox) *Handler {
	return &Handler{inbox: inbox}
}

// ListNotifications returns current user's notifications, newest first
func (h *Handler) ListNotifications(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	items, err := h.inbox.ListNotifications(c.Request().Context(), userID)
	if err != nil {
		return apperr.Fatal(err, "failed to load notifications")
	}
	if items == nil {
		items = []models.Notification{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "notifications": items})
}

// MarkNotificationRead marks specific notification as read
func (h *Handler) MarkNotificationRead(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	updated, err := h.inbox.MarkNotificationRead(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return apperr.Fatal(err, "failed to update notification")
	}
	if !updated {
		return apperr.NotFound("Notification not found or already read")
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
