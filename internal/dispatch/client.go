package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/ordergroup/lib/logger/sl"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192

	inboxSize = 64
	sendSize  = 256
)

// Client is one websocket connection. readPump and writePump own the
// socket; process runs handlers in arrival order.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	session Session

	frames chan Inbound
	inbox  chan Envelope
	send   chan []byte
	log    *slog.Logger
}

func newClient(h *Hub, conn *websocket.Conn, sess Session) *Client {
	return &Client{
		hub:     h,
		conn:    conn,
		session: sess,
		frames:  make(chan Inbound, inboxSize),
		inbox:   make(chan Envelope, inboxSize),
		send:    make(chan []byte, sendSize),
		log: h.log.With(
			slog.String("channel", sess.Channel.String()),
			slog.String("conn_id", sess.ConnID),
			slog.String("user_id", sess.UserID.String()),
		),
	}
}

// enqueue never blocks the bus; a full inbox drops the envelope.
func (c *Client) enqueue(env Envelope) {
	select {
	case c.inbox <- env:
	default:
		c.log.Warn("inbox full, dropping envelope", slog.String("event", string(env.Type)))
	}
}

func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.heartbeat(ctx)
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read failed", sl.Err(err))
			} else {
				c.log.Debug("websocket closed")
			}
			return
		}
		c.heartbeat(ctx)
		if messageType != websocket.TextMessage {
			continue
		}

		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.log.Warn("dropping malformed frame", sl.Err(err))
			continue
		}
		select {
		case c.frames <- in:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			_ = c.conn.Close()
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Warn("websocket write failed", sl.Err(err))
				// Unblocks readPump so Serve can clean up.
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Warn("websocket ping failed", sl.Err(err))
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *Client) process(ctx context.Context) {
	c.write(ctx, c.hub.router.Initial(ctx, c.session))
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-c.frames:
			c.write(ctx, c.hub.router.Dispatch(ctx, c.session, in))
		case env := <-c.inbox:
			c.write(ctx, c.hub.router.Render(ctx, c.session, env))
		}
	}
}

func (c *Client) write(ctx context.Context, frames [][]byte) {
	for _, frame := range frames {
		select {
		case c.send <- frame:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) heartbeat(ctx context.Context) {
	if err := c.hub.tracker.Heartbeat(ctx, c.session.ConnID); err != nil {
		c.log.Warn("heartbeat failed", sl.Err(err))
	}
}
