package marketplace

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// POST /invoices/from-bid/:bidId
func (h *Handler) SendInvoice(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var in InvoiceInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	inv, err := h.svc.SendInvoice(c.Request().Context(), actor, c.Param("bidId"), in)
	if err != nil {
		return err
	}
	return reply(c, http.StatusCreated, "Invoice sent", inv)
}

// GET /invoices/:id
func (h *Handler) GetInvoice(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	inv, err := h.svc.GetInvoice(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return reply(c, http.StatusOK, "", inv)
}
