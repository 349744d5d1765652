package server

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// StreamTrades upgrades to a WebSocket and pushes committed trades as JSON.
// Optional query filters: mint, side.
func (h *Handlers) StreamTrades(c echo.Context) error {
	var filter stream.Filter
	if raw := c.QueryParam("mint"); raw != "" {
		mint, ok := parseKey(raw)
		if !ok {
			return h.err(c, http.StatusBadRequest, "invalid mint", map[string]any{"mint": "must be a base58 public key"})
		}
		filter.Mint = mint.String()
	}
	switch side := c.QueryParam("side"); side {
	case "", models.SideInitialize, models.SideBuy, models.SideSell:
		filter.Side = side
	default:
		return h.err(c, http.StatusBadRequest, "invalid side", map[string]any{"side": "must be initialize, buy or sell"})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.Logger.WithError(err).Debug("websocket upgrade failed")
		return nil
	}

	h.Logger.WithField("remote", c.RealIP()).Info("trade stream subscriber connected")
	if err := stream.Serve(c.Request().Context(), conn, h.Feed.Subscribe(filter)); err != nil {
		h.Logger.WithError(err).Debug("trade stream ended")
	}
	return nil
}
