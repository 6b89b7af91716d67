package logistics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/stonemart/internal/apperr"
	"github.com/sudo-init-do/stonemart/internal/messaging"
)

const liveWriteTimeout = 10 * time.Second

// POST /tracking/location
func (h *Handler) ReportLocation(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var in LocationInput
	if err := bindBody(c, &in); err != nil {
		return err
	}
	ping, err := h.svc.ReportLocation(c.Request().Context(), actor, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "location": ping})
}

// GET /tracking/shipments/:id
func (h *Handler) GetShipment(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	sh, err := h.svc.GetShipment(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "shipment": sh})
}

// GET /tracking/shipments/:id/location
func (h *Handler) CurrentLocation(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	ping, err := h.svc.CurrentLocation(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "location": ping})
}

// GET /tracking/shipments/:id/history?from=&to=&limit=
// from and to are RFC3339 timestamps.
func (h *Handler) LocationHistory(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var q HistoryQuery
	if v := c.QueryParam("limit"); v != "" {
		if q.Limit, err = strconv.Atoi(v); err != nil {
			return apperr.Invalid("limit must be an integer")
		}
	}
	if q.From, err = timeParam(c, "from"); err != nil {
		return err
	}
	if q.To, err = timeParam(c, "to"); err != nil {
		return err
	}

	pings, err := h.svc.GetLocationHistory(c.Request().Context(), actor, c.Param("id"), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "count": len(pings), "history": pings})
}

func timeParam(c echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, apperr.Invalid("%s must be an RFC3339 timestamp", name)
	}
	return &t, nil
}

// LiveLocation streams location updates over a websocket
// GET /tracking/shipments/:id/live
func (h *Handler) LiveLocation(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	updates, stop, err := h.svc.Watch(ctx, actor, c.Param("id"))
	if err != nil {
		return err
	}
	defer func() { _ = stop() }()

	ws, err := messaging.Upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	// Read loop only detects the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-updates:
			if !ok {
				return nil
			}
			_ = ws.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := ws.WriteJSON(echo.Map{"type": "location", "data": p}); err != nil {
				return nil
			}
		}
	}
}
