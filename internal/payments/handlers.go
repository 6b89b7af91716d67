package payments

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/stonemart/internal/middleware"
)

// SecretHeader carries the shared webhook secret.
const SecretHeader = "X-Webhook-Secret"

type Handler struct {
	svc    *Service
	secret string
}

func NewHandler(svc *Service, webhookSecret string) *Handler {
	return &Handler{svc: svc, secret: webhookSecret}
}

// CreateIntent handles POST /payments/orders/:id/intent
func (h *Handler) CreateIntent(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	intent, err := h.svc.CreatePaymentIntent(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":      true,
		"clientSecret": intent.ClientSecret,
		"intent":       intent,
	})
}

// Webhook handles POST /payments/webhook
func (h *Handler) Webhook(c echo.Context) error {
	given := c.Request().Header.Get(SecretHeader)
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(given), []byte(h.secret)) != 1 {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid webhook signature")
	}
	var r Result
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	order, err := h.svc.ApplyResult(c.Request().Context(), r)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":  true,
		"received": true,
		"payment":  order.Payment,
	})
}
