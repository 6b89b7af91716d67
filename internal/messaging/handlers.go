package messaging

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/stonemart/internal/middleware"
	"github.com/sudo-init-do/stonemart/internal/models"
)

type Handler struct {
	svc  *Service
	hubs *Hubs
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, hubs: svc.hubs}
}

// ListMessages - get a page of a channel's conversation
func (h *Handler) ListMessages(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	page, err := middleware.PageFrom(c)
	if err != nil {
		return err
	}

	msgs, err := h.svc.List(c.Request().Context(), actor, c.Param("id"), page)
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "messages": msgs, "page": page.Page, "limit": page.Limit})
}

// SendMessage - a channel member posts a text message
func (h *Handler) SendMessage(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "invalid payload"})
	}

	m, err := h.svc.Send(c.Request().Context(), actor, c.Param("id"), body.Text)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "message": m})
}

// ChannelWS - websocket for realtime updates on a channel
func (h *Handler) ChannelWS(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	channelID := c.Param("id")
	if _, err := h.svc.member(c.Request().Context(), actor, channelID); err != nil {
		return err
	}

	ws, err := Upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	hb := h.hubs.join(channelID, ws)
	hb.broadcast(wsEvent{Type: EventPresenceJoin, Data: echo.Map{"user_id": actor.ID}})

	// Read loop (discard client messages; protocol is server push)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			h.hubs.leave(hb, ws)
			_ = ws.Close()
			h.hubs.Broadcast(channelID, EventPresenceLeave, echo.Map{"user_id": actor.ID})
			break
		}
	}
	return nil
}
