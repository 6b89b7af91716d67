package marketplace

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/stonemart/internal/middleware"
	"github.com/sudo-init-do/stonemart/internal/models"
)

type responseRequest struct {
	Message string `json:"message"`
}

// CreateBid is the buyer's proposal on a listing
// POST /bids
func (h *Handler) CreateBid(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var in ProposeInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	bid, err := h.svc.Propose(c.Request().Context(), actor, in)
	if err != nil {
		return err
	}
	return reply(c, http.StatusCreated, "Bid placed successfully", bid)
}

// PATCH /bids/:id/counter
func (h *Handler) CounterBid(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var in CounterInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	bid, err := h.svc.Counter(c.Request().Context(), actor, c.Param("id"), in)
	if err != nil {
		return err
	}
	return reply(c, http.StatusOK, "Counter offer sent", bid)
}

// AcceptBid runs the acceptance cascade and returns the new order
// PATCH /bids/:id/accept
func (h *Handler) AcceptBid(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req responseRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	bid, order, err := h.svc.Accept(c.Request().Context(), actor, c.Param("id"), req.Message)
	if err != nil {
		return err
	}
	return reply(c, http.StatusOK, "Bid accepted successfully", echo.Map{"bid": bid, "order": order})
}

// PATCH /bids/:id/reject
func (h *Handler) RejectBid(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var req responseRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	bid, err := h.svc.Reject(c.Request().Context(), actor, c.Param("id"), req.Message)
	if err != nil {
		return err
	}
	return reply(c, http.StatusOK, "Bid rejected", bid)
}

// PATCH /bids/:id/withdraw
func (h *Handler) WithdrawBid(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	bid, err := h.svc.Withdraw(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return reply(c, http.StatusOK, "Bid withdrawn", bid)
}

// GET /bids/:id
func (h *Handler) GetBid(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	bid, err := h.svc.GetBid(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return reply(c, http.StatusOK, "", bid)
}

// GET /bids/listing/:listingId?status=
func (h *Handler) ListListingBids(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	page, err := middleware.PageFrom(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListBidsForListing(c.Request().Context(), actor, c.Param("listingId"), models.BidStatus(c.QueryParam("status")), page)
	if err != nil {
		return err
	}
	return paged(c, items, total, page)
}

// GET /bids/mine?status=
func (h *Handler) ListMyBids(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	page, err := middleware.PageFrom(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListMyBids(c.Request().Context(), actor, models.BidStatus(c.QueryParam("status")), page)
	if err != nil {
		return err
	}
	return paged(c, items, total, page)
}

// GET /bids/proposals?status=
func (h *Handler) ListProposals(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	page, err := middleware.PageFrom(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListVendorProposals(c.Request().Context(), actor, models.BidStatus(c.QueryParam("status")), page)
	if err != nil {
		return err
	}
	return paged(c, items, total, page)
}
