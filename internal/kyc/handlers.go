package kyc

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

// GET /kyc/driver
func (h *Handler) Status(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	k, err := h.svc.Status(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": k})
}

// POST /kyc/driver
func (h *Handler) Submit(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var in SubmitInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "invalid payload"})
	}
	k, err := h.svc.Submit(c.Request().Context(), actor, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Driver KYC submitted successfully.", "data": k})
}

// GET /admin/kyc
func (h *Handler) Queue(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	page, err := middleware.PageFrom(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.Queue(c.Request().Context(), actor, models.KYCStatus(c.QueryParam("status")), page)
	if err != nil {
		return err
	}
	if items == nil {
		items = []models.KYC{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "records": items, "total": total, "page": page.Page})
}

type reviewRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}

// PATCH /admin/kyc/:userId
func (h *Handler) Review(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "invalid payload"})
	}
	k, err := h.svc.Review(c.Request().Context(), actor, c.Param("userId"), req.Approve, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": k})
}
