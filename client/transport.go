package client

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultWriteWait = 10 * time.Second

// Transport opens authenticated websocket connections to the relay.
type Transport struct {
	log              *slog.Logger
	url              string
	dialer           *websocket.Dialer
	handshakeTimeout time.Duration
}

func NewTransport(log *slog.Logger, url string, handshakeTimeout time.Duration) *Transport {
	return &Transport{
		log:              log,
		url:              url,
		dialer:           &websocket.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment},
		handshakeTimeout: handshakeTimeout,
	}
}

// Connect dials the relay and waits for the ready event. A rejected
// credential returns ErrAuthRejected, anything else ErrTransport.
func (t *Transport) Connect(ctx context.Context, token string) (*Conn, event.SessionReady, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, resp, err := t.dialer.DialContext(ctx, t.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, event.SessionReady{}, fmt.Errorf("%w: dial %s: %v", errors.ErrTransport, t.url, err)
	}

	if err := ws.SetReadDeadline(time.Now().Add(t.handshakeTimeout)); err != nil {
		_ = ws.Close()
		return nil, event.SessionReady{}, fmt.Errorf("%w: %v", errors.ErrTransport, err)
	}
	envelope, err := readEnvelope(ws)
	if err != nil {
		_ = ws.Close()
		return nil, event.SessionReady{}, err
	}

	switch envelope.Event {
	case event.Ready:
		var ready event.SessionReady
		if err := envelope.Payload(&ready); err != nil {
			_ = ws.Close()
			return nil, event.SessionReady{}, fmt.Errorf("%w: %v", errors.ErrTransport, err)
		}
		_ = ws.SetReadDeadline(time.Time{})
		t.log.Debug("Connected to relay", "session_id", ready.SessionID, "subject", ready.Subject.Name)
		return &Conn{ws: ws}, ready, nil
	case event.Error:
		_ = ws.Close()
		return nil, event.SessionReady{}, rejection(envelope)
	default:
		_ = ws.Close()
		return nil, event.SessionReady{}, fmt.Errorf("%w: unexpected %s before ready", errors.ErrTransport, envelope.Event)
	}
}

// Conn is one open relay connection. Emit may be called concurrently
// with Listen.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

var _ contract.Emitter = (*Conn)(nil)

func (c *Conn) Emit(ctx context.Context, message event.OutgoingMessage) error {
	frame, err := event.EncodeOutgoing(message)
	if err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultWriteWait)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrTransport, err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrTransport, err)
	}
	return nil
}

// Listen reads frames until the connection ends and hands every
// receiveMessage payload to onMessage in arrival order.
func (c *Conn) Listen(onMessage func(domain.Message)) error {
	for {
		envelope, err := readEnvelope(c.ws)
		if err != nil {
			return err
		}
		switch envelope.Event {
		case event.ReceiveMessage:
			var message domain.Message
			if err := envelope.Payload(&message); err != nil {
				continue
			}
			onMessage(message)
		case event.Error:
			return rejection(envelope)
		}
	}
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.ws.Close()
}

func readEnvelope(ws *websocket.Conn) (event.Envelope, error) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return event.Envelope{}, fmt.Errorf("%w: %v", errors.ErrTransport, err)
		}
		envelope, err := event.Decode(raw)
		if err != nil {
			continue
		}
		return envelope, nil
	}
}

func rejection(envelope event.Envelope) error {
	var rejected event.Rejected
	if err := envelope.Payload(&rejected); err != nil || rejected.Reason == "" {
		return errors.ErrAuthRejected
	}
	return fmt.Errorf("%w: %s", errors.ErrAuthRejected, rejected.Reason)
}
