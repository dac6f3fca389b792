package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	remote string
}

// readPump handles requests in order. A request that waits on the card delays the
// following ones of the same client, not those of other clients.
func (c *client) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("remote", c.remote), slog.Any("err", err))
			} else {
				c.hub.logger.Debug("client disconnected", slog.String("remote", c.remote))
			}
			return
		}

		var req Message
		if err := json.Unmarshal(raw, &req); err != nil {
			c.reply(Message{Type: "error"}, nil, errors.New("invalid message format"))
			continue
		}

		payload, err := c.hub.handle(ctx, req)
		c.reply(Message{Type: req.Type, ID: req.ID}, payload, err)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) reply(msg Message, payload any, err error) {
	if err != nil {
		msg.Error = err.Error()
		payload = nil
	}

	out, encErr := encode(msg, payload)
	if encErr != nil {
		c.hub.logger.Error("encode reply", slog.String("type", msg.Type), slog.Any("err", encErr))
		return
	}

	// The hub owns send; it is closed on unregister, so go through the lock.
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- out:
	default:
		c.hub.logger.Warn("reply dropped", slog.String("remote", c.remote), slog.String("type", msg.Type))
	}
}
