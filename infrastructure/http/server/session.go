package server

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/sink"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// sessionConn couples one open session with its websocket.
// readPump is the only reader and writePump the only writer of conn.
type sessionConn struct {
	log     *slog.Logger
	conn    *websocket.Conn
	session *domain.Session
	sink    *sink.SessionSink
	router  contract.IRouter
	filter  contract.ContentFilter
	cfg     GatewayConfig
	now     func() time.Time
}

// readPump decodes sendMessage frames and hands them to the router, in the
// order they were read. It returns when the connection fails or closes.
func (c *sessionConn) readPump(ctx context.Context) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		c.log.Debug("Error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		c.handleFrame(ctx, raw)
	}
}

func (c *sessionConn) handleFrame(ctx context.Context, raw []byte) {
	envelope, err := event.Decode(raw)
	if err != nil {
		c.log.Debug("Invalid frame", "session_id", c.session.ID, "error", err)
		return
	}
	if envelope.Event != event.SendMessage {
		c.log.Debug("Ignoring frame", "session_id", c.session.ID, "event", envelope.Event)
		return
	}
	var outgoing event.OutgoingMessage
	if err := envelope.Payload(&outgoing); err != nil {
		c.log.Debug("Invalid sendMessage payload", "session_id", c.session.ID, "error", err)
		return
	}

	message := domain.Message{
		Text:      outgoing.Text,
		Author:    c.session.Subject.Name,
		CreatedAt: outgoing.CreatedAt,
		ClientKey: outgoing.ClientKey,
	}
	message = message.StampedAt(c.now()).Normalize()
	if message.Text == "" || len([]rune(message.Text)) > auth.MaxMessageLength {
		c.log.Debug("Dropping invalid message", "session_id", c.session.ID, "length", len(message.Text))
		return
	}
	if c.filter != nil {
		message.Text = c.filter.Filter(message.Text)
	}

	c.router.Publish(ctx, c.session.ID, message)
}

func (c *sessionConn) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Frame exceeded maximum size", "session_id", c.session.ID, "limit", c.cfg.MaxMessageSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway),
		errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		c.log.Debug("Connection closed", "session_id", c.session.ID, "error", err)
	default:
		c.log.Debug("Read error", "session_id", c.session.ID, "error", err)
	}
}

// writePump drains the session sink until it is closed, sending pings
// in between. Closing the sink makes it write a close frame and return.
func (c *sessionConn) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.sink.Events():
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(c.cfg.WriteWait))
				return
			}
			if err := c.write(evt); err != nil {
				c.log.Debug("Write failed", "session_id", c.session.ID, "error", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteWait)); err != nil {
				c.log.Debug("Ping failed", "session_id", c.session.ID, "error", err)
				return
			}
		}
	}
}

func (c *sessionConn) write(evt event.DomainEvent) error {
	frame, err := event.Encode(evt)
	if err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}
