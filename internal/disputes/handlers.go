package disputes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/stonemart/internal/middleware"
	"github.com/sudo-init-do/stonemart/internal/models"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type openRequest struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

// OpenDispute lets an order's buyer (or an admin) contest it
// POST /disputes
func (h *Handler) OpenDispute(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var req openRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "invalid payload"})
	}

	d, err := h.svc.Open(c.Request().Context(), actor, req.OrderID, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "dispute": d})
}

// GET /disputes/mine
func (h *Handler) ListMine(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	page, err := middleware.PageFrom(c)
	if err != nil {
		return err
	}

	items, total, err := h.svc.ListMine(c.Request().Context(), actor, page)
	if err != nil {
		return err
	}
	if items == nil {
		items = []models.Dispute{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "disputes": items, "total": total, "page": page.Page})
}

// GET /disputes/:id
func (h *Handler) GetDispute(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	d, err := h.svc.Get(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "dispute": d})
}

// PATCH /disputes/:id/status
func (h *Handler) UpdateStatus(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req struct {
		Status models.DisputeStatus `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "invalid payload"})
	}

	d, err := h.svc.UpdateStatus(c.Request().Context(), actor, c.Param("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "dispute": d})
}
