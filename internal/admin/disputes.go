package admin

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/stonemart/internal/middleware"
	"github.com/sudo-init-do/stonemart/internal/models"
)

// DisputeDesk is the admin's view of the dispute workflow.
type DisputeDesk interface {
	List(ctx context.Context, actor models.Actor, status models.DisputeStatus, page models.Page) ([]models.Dispute, int, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.Dispute, error)
}

// GET /admin/disputes
func (h *Handler) ListDisputes(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	page, err := middleware.PageFrom(c)
	if err != nil {
		return err
	}

	items, total, err := h.disputes.List(c.Request().Context(), actor, models.DisputeStatus(c.QueryParam("status")), page)
	if err != nil {
		return err
	}
	if items == nil {
		items = []models.Dispute{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "disputes": items, "total": total, "page": page.Page})
}

// GET /admin/disputes/:id
func (h *Handler) GetDispute(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	d, err := h.disputes.Get(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "dispute": d})
}
