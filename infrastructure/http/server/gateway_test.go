package server

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/moderation"
	"chat-relay/runtime"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const testSecret = "a_test_secret_that_is_long_enough"

type relay struct {
	server   *httptest.Server
	registry *runtime.Registry
	router   *runtime.Router
	tokens   *auth.TokenManager
	gateway  *Gateway
}

func newRelay(t *testing.T) *relay {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	tokens := auth.NewTokenManager(testSecret, time.Hour)
	registry := runtime.NewRegistry()
	router := runtime.NewRouter(log, registry)
	gateway := NewGateway(log, auth.NewJWTVerifier(tokens), registry, router,
		NewOriginPolicy(log, []string{"http://localhost:3000"}), DefaultGatewayConfig())
	server := httptest.NewServer(gateway)
	t.Cleanup(func() {
		gateway.CloseAll()
		server.Close()
	})
	return &relay{server: server, registry: registry, router: router, tokens: tokens, gateway: gateway}
}

func (r *relay) url(query string) string {
	return "ws" + strings.TrimPrefix(r.server.URL, "http") + "/api/socket" + query
}

func (r *relay) token(t *testing.T, id, name string) string {
	t.Helper()
	token, err := r.tokens.GenerateToken(domain.Subject{ID: id, Name: name}, nil)
	require.NoError(t, err)
	return token
}

func readEnvelope(t *testing.T, conn *websocket.Conn) event.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	envelope, err := event.Decode(raw)
	require.NoError(t, err)
	return envelope
}

func dialReady(t *testing.T, r *relay, id, name string) (*websocket.Conn, event.SessionReady) {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+r.token(t, id, name))
	conn, _, err := websocket.DefaultDialer.Dial(r.url(""), header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	envelope := readEnvelope(t, conn)
	require.Equal(t, event.Ready, envelope.Event)
	var ready event.SessionReady
	require.NoError(t, envelope.Payload(&ready))
	return conn, ready
}

func send(t *testing.T, conn *websocket.Conn, msg event.OutgoingMessage) {
	t.Helper()
	frame, err := event.EncodeOutgoing(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func TestGateway_Rejects_Missing_Credential(t *testing.T) {
	req := require.New(t)
	r := newRelay(t)

	conn, _, err := websocket.DefaultDialer.Dial(r.url(""), nil)
	req.NoError(err)
	defer conn.Close()

	// Then the client is told why
	envelope := readEnvelope(t, conn)
	req.Equal(event.Error, envelope.Event)
	var rejected event.Rejected
	req.NoError(envelope.Payload(&rejected))
	req.Equal(auth.ReasonMissingCredential, rejected.Reason)

	// And the connection is closed with a policy violation
	_, _, err = conn.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.ClosePolicyViolation))
	req.Zero(r.registry.Len())
}

func TestGateway_Rejects_Invalid_Token(t *testing.T) {
	req := require.New(t)
	r := newRelay(t)

	conn, _, err := websocket.DefaultDialer.Dial(r.url("?token=forged"), nil)
	req.NoError(err)
	defer conn.Close()

	envelope := readEnvelope(t, conn)
	req.Equal(event.Error, envelope.Event)
	var rejected event.Rejected
	req.NoError(envelope.Payload(&rejected))
	req.Equal(auth.ReasonInvalidCredential, rejected.Reason)
	req.Zero(r.registry.Len())
}

func TestGateway_Rejects_Disallowed_Origin(t *testing.T) {
	req := require.New(t)
	r := newRelay(t)

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(r.url("?token="+r.token(t, "u1", "alice")), header)
	req.Error(err)
	req.Equal(http.StatusForbidden, resp.StatusCode)
}

func TestGateway_Ready_Then_Registered(t *testing.T) {
	req := require.New(t)
	r := newRelay(t)

	_, ready := dialReady(t, r, "u1", "alice")

	req.NotEmpty(ready.SessionID)
	req.Equal(domain.Subject{ID: "u1", Name: "alice"}, ready.Subject)
	req.Eventually(func() bool { return r.registry.Len() == 1 }, time.Second, 10*time.Millisecond)
}

func TestGateway_Broadcast_Reaches_Others_Not_Sender(t *testing.T) {
	req := require.New(t)
	r := newRelay(t)

	a, _ := dialReady(t, r, "a", "alice")
	b, _ := dialReady(t, r, "b", "bob")
	req.Eventually(func() bool { return r.registry.Len() == 2 }, time.Second, 10*time.Millisecond)

	// When A sends a message pretending to be someone else
	createdAt := time.Now().UTC().Truncate(time.Millisecond)
	send(t, a, event.OutgoingMessage{Text: "hi", Author: "mallory", CreatedAt: createdAt, ClientKey: "0b6f7c1c-5a69-4a9b-9d2d-3c4a1f0e8b11"})

	// Then B receives it stamped with A's verified name
	envelope := readEnvelope(t, b)
	req.Equal(event.ReceiveMessage, envelope.Event)
	var received domain.Message
	req.NoError(envelope.Payload(&received))
	req.Equal("hi", received.Text)
	req.Equal("alice", received.Author)
	req.True(createdAt.Equal(received.CreatedAt))
	req.Equal("0b6f7c1c-5a69-4a9b-9d2d-3c4a1f0e8b11", received.ClientKey)
	req.False(received.IsPersisted())

	// And A never gets its own message back
	req.NoError(a.SetReadDeadline(time.Now().Add(200 * time.Millisecond)))
	_, _, err := a.ReadMessage()
	req.Error(err)
	var netErr interface{ Timeout() bool }
	req.ErrorAs(err, &netErr)
	req.True(netErr.Timeout())
}

func TestGateway_Per_Peer_Order_Follows_Send_Order(t *testing.T) {
	req := require.New(t)
	r := newRelay(t)

	a, _ := dialReady(t, r, "a", "alice")
	b, _ := dialReady(t, r, "b", "bob")
	req.Eventually(func() bool { return r.registry.Len() == 2 }, time.Second, 10*time.Millisecond)

	texts := []string{"one", "two", "three", "four"}
	for _, text := range texts {
		send(t, a, event.OutgoingMessage{Text: text})
	}
	for _, text := range texts {
		var received domain.Message
		req.NoError(readEnvelope(t, b).Payload(&received))
		req.Equal(text, received.Text)
	}
}

func TestGateway_Disconnect_Unregisters(t *testing.T) {
	req := require.New(t)
	r := newRelay(t)

	a, _ := dialReady(t, r, "a", "alice")
	req.Eventually(func() bool { return r.registry.Len() == 1 }, time.Second, 10*time.Millisecond)

	req.NoError(a.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	req.Eventually(func() bool { return r.registry.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestGateway_CloseAll(t *testing.T) {
	req := require.New(t)
	r := newRelay(t)

	a, _ := dialReady(t, r, "a", "alice")
	req.Eventually(func() bool { return r.registry.Len() == 1 }, time.Second, 10*time.Millisecond)

	r.gateway.CloseAll()

	req.NoError(a.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := a.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseNormalClosure))
	req.Zero(r.registry.Len())
}

func TestGateway_Refuses_Upgrades_After_CloseAll(t *testing.T) {
	req := require.New(t)
	r := newRelay(t)

	// Given the relay is shutting down
	r.gateway.CloseAll()

	// When a valid client connects
	header := http.Header{}
	header.Set("Authorization", "Bearer "+r.token(t, "a", "alice"))
	_, resp, err := websocket.DefaultDialer.Dial(r.url(""), header)

	// Then the upgrade is refused and nothing is registered
	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusServiceUnavailable, resp.StatusCode)
	req.Zero(r.registry.Len())
}

func TestGateway_Skewed_CreatedAt_Uses_Server_Clock(t *testing.T) {
	req := require.New(t)
	r := newRelay(t)

	a, _ := dialReady(t, r, "a", "alice")
	b, _ := dialReady(t, r, "b", "bob")
	req.Eventually(func() bool { return r.registry.Len() == 2 }, time.Second, 10*time.Millisecond)

	// When A's clock is an hour behind
	before := time.Now().UTC()
	send(t, a, event.OutgoingMessage{Text: "late clock", CreatedAt: before.Add(-time.Hour)})

	// Then B receives the server time, as the store would keep it
	var received domain.Message
	req.NoError(readEnvelope(t, b).Payload(&received))
	req.WithinDuration(before, received.CreatedAt, domain.MaxClockSkew/10)
	req.False(received.CreatedAt.Before(before.Truncate(time.Millisecond)))
}

func TestGateway_Filter_Applies_Before_Broadcast(t *testing.T) {
	req := require.New(t)
	r := newRelay(t)
	moderator, err := moderation.NewModerator([]string{"snake"}, '*', slog.Default())
	req.NoError(err)
	r.gateway.WithFilter(moderator)

	a, _ := dialReady(t, r, "a", "alice")
	b, _ := dialReady(t, r, "b", "bob")
	req.Eventually(func() bool { return r.registry.Len() == 2 }, time.Second, 10*time.Millisecond)

	send(t, a, event.OutgoingMessage{Text: "beware the snake", CreatedAt: time.Now().UTC()})

	envelope := readEnvelope(t, b)
	var received domain.Message
	req.NoError(envelope.Payload(&received))
	req.Equal("beware the *****", received.Text)
}
