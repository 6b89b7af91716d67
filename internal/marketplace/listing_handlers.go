package marketplace

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/stonemart/internal/middleware"
)

// POST /listings
func (h *Handler) CreateListing(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var in ListingInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	l, err := h.svc.CreateListing(c.Request().Context(), actor, in)
	if err != nil {
		return err
	}
	return reply(c, http.StatusCreated, "Product listed", l)
}

// GET /listings?active=true
func (h *Handler) ListListings(c echo.Context) error {
	page, err := middleware.PageFrom(c)
	if err != nil {
		return err
	}
	activeOnly := true
	if v := c.QueryParam("active"); v != "" {
		activeOnly, _ = strconv.ParseBool(v)
	}
	items, total, err := h.svc.ListListings(c.Request().Context(), activeOnly, page)
	if err != nil {
		return err
	}
	return paged(c, items, total, page)
}

// GET /listings/:id
func (h *Handler) GetListing(c echo.Context) error {
	l, err := h.svc.GetListing(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return reply(c, http.StatusOK, "", l)
}
