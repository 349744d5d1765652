package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/storage"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxInbound = 512
)

// Serve writes trades from sub to conn as JSON text frames until ctx ends,
// the subscription closes, or the peer goes away. It closes conn and sub.
func Serve(ctx context.Context, conn *websocket.Conn, sub *Subscription) error {
	defer sub.Close()
	defer conn.Close()

	// The feed is one-way; reading only services control frames.
	gone := make(chan struct{})
	conn.SetReadLimit(maxInbound)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return ctx.Err()
		case <-gone:
			return nil
		case t, ok := <-sub.C():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(t); err != nil {
				return fmt.Errorf("write trade: %w", err)
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

// Client follows a remote trade feed, redialing after failures.
type Client struct {
	url     string
	header  http.Header
	dialer  *websocket.Dialer
	backoff time.Duration
	logger  *logrus.Logger
}

// NewClient targets a ws:// or wss:// feed URL. apiKey, when set, is sent as X-API-Key.
func NewClient(url, apiKey string, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	header := http.Header{}
	if apiKey != "" {
		header.Set("X-API-Key", apiKey)
	}
	return &Client{
		url:     url,
		header:  header,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		backoff: 5 * time.Second,
		logger:  logger,
	}
}

// Listen delivers every trade to handler until ctx is cancelled.
// A rejected handshake (4xx) is returned rather than retried.
func (c *Client) Listen(ctx context.Context, handler storage.TradeHandler) error {
	for {
		err := c.listenOnce(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var hs *handshakeError
		if errors.As(err, &hs) {
			return err
		}
		c.logger.WithError(err).Warnf("trade feed lost, reconnecting in %s", c.backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff):
		}
	}
}

type handshakeError struct {
	status int
}

func (e *handshakeError) Error() string {
	return fmt.Sprintf("feed handshake rejected: %d %s", e.status, http.StatusText(e.status))
}

func (c *Client) listenOnce(ctx context.Context, handler storage.TradeHandler) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return &handshakeError{status: resp.StatusCode}
		}
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	c.logger.WithField("url", c.url).Info("connected to trade feed")

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var t models.TradeEvent
		if err := conn.ReadJSON(&t); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return fmt.Errorf("feed closed by server")
			}
			return fmt.Errorf("read: %w", err)
		}
		handler(&t)
	}
}
