package marketplace

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/stonemart/internal/middleware"
	"github.com/sudo-init-do/stonemart/internal/models"
)

type createOrderRequest struct {
	BidID string `json:"bidId"`
	DirectOrderInput
}

// CreateOrder builds an order from an accepted bid, or directly from a
// listing when no bidId is given
// POST /orders
func (h *Handler) CreateOrder(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req createOrderRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}

	var order *models.Order
	if req.BidID != "" {
		order, err = h.svc.CreateOrder(c.Request().Context(), actor, req.BidID)
	} else {
		order, err = h.svc.CreateDirectOrder(c.Request().Context(), actor, req.DirectOrderInput)
	}
	if err != nil {
		return err
	}
	return reply(c, http.StatusCreated, "Order created successfully", order)
}

// GET /orders/:id
func (h *Handler) GetOrder(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	o, err := h.svc.GetOrder(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return reply(c, http.StatusOK, "", o)
}

// GET /orders/seller?status=
func (h *Handler) ListSellerOrders(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	page, err := middleware.PageFrom(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListSellerOrders(c.Request().Context(), actor, models.OrderStatus(c.QueryParam("status")), page)
	if err != nil {
		return err
	}
	return paged(c, items, total, page)
}

// GET /orders/buyer?status=
func (h *Handler) ListBuyerOrders(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	page, err := middleware.PageFrom(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListBuyerOrders(c.Request().Context(), actor, models.OrderStatus(c.QueryParam("status")), page)
	if err != nil {
		return err
	}
	return paged(c, items, total, page)
}

// PATCH /orders/:id/status
func (h *Handler) UpdateOrderStatus(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var in StatusInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	o, err := h.svc.UpdateOrderStatus(c.Request().Context(), actor, c.Param("id"), in)
	if err != nil {
		return err
	}
	return reply(c, http.StatusOK, "Order status updated", o)
}

// PATCH /orders/:id/details
func (h *Handler) UpdateOrderDetails(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var in DetailsInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	o, err := h.svc.UpdateOrderDetails(c.Request().Context(), actor, c.Param("id"), in)
	if err != nil {
		return err
	}
	return reply(c, http.StatusOK, "Order updated", o)
}

// PATCH /orders/:id/rating
func (h *Handler) RateOrder(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var in RatingInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	o, err := h.svc.AddRating(c.Request().Context(), actor, c.Param("id"), in)
	if err != nil {
		return err
	}
	return reply(c, http.StatusOK, "Rating added", o)
}
