package server

import (
	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/sink"
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type GatewayConfig struct {
	HandshakeTimeout  time.Duration
	SessionBufferSize int
	MaxMessageSize    int64
	PingInterval      time.Duration
	PongWait          time.Duration
	WriteWait         time.Duration
}

// DefaultGatewayConfig mirrors the usual gorilla timings: ping every 54s,
// a peer silent for 60s is dead, writes must complete within 10s.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		HandshakeTimeout:  5 * time.Second,
		SessionBufferSize: 256,
		MaxMessageSize:    8192,
		PingInterval:      54 * time.Second,
		PongWait:          60 * time.Second,
		WriteWait:         10 * time.Second,
	}
}

// Gateway admits authenticated realtime sessions.
//
// The websocket is upgraded first so that a rejected client can be told why,
// but no session reaches the registry before its credential is verified.
type Gateway struct {
	log      *slog.Logger
	verifier contract.IdentityVerifier
	registry contract.IRegistry
	router   contract.IRouter
	filter   contract.ContentFilter
	upgrader websocket.Upgrader
	cfg      GatewayConfig
	closed   atomic.Bool
}

func NewGateway(log *slog.Logger, verifier contract.IdentityVerifier, registry contract.IRegistry,
	router contract.IRouter, origins *OriginPolicy, cfg GatewayConfig) *Gateway {
	return &Gateway{
		log:      log,
		verifier: verifier,
		registry: registry,
		router:   router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.Check,
		},
		cfg: cfg,
	}
}

// WithFilter rewrites the text of every inbound message before it is published.
func (g *Gateway) WithFilter(filter contract.ContentFilter) *Gateway {
	g.filter = filter
	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.closed.Load() {
		writeMessage(w, http.StatusServiceUnavailable, "Relay is shutting down")
		return
	}
	credential := auth.ExtractCredential(r)

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(g.cfg.MaxMessageSize)

	session := domain.NewSession(domain.SessionID(uuid.NewString()))
	subject, err := g.verify(r.Context(), credential)
	if err != nil {
		g.log.Info("Handshake rejected", "remote", r.RemoteAddr, "session_id", session.ID, "error", err)
		session.Close()
		g.reject(conn, auth.RejectionReason(credential))
		return
	}

	if err := session.Open(subject); err != nil {
		g.log.Error("Session could not open", "session_id", session.ID, "error", err)
		_ = conn.Close()
		return
	}
	g.serve(r.Context(), conn, session)
}

func (g *Gateway) verify(ctx context.Context, credential string) (domain.Subject, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.HandshakeTimeout)
	defer cancel()
	return g.verifier.Verify(ctx, credential)
}

// reject sends the terminal error event followed by a policy violation close.
func (g *Gateway) reject(conn *websocket.Conn, reason string) {
	defer func() { _ = conn.Close() }()
	deadline := time.Now().Add(g.cfg.WriteWait)
	frame, err := event.Encode(event.Rejected{Reason: reason})
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		g.log.Debug("Could not send rejection", "error", err)
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
}

// serve registers an open session and blocks until it disconnects.
func (g *Gateway) serve(ctx context.Context, conn *websocket.Conn, session *domain.Session) {
	s := sink.NewSessionSink(g.cfg.SessionBufferSize)
	if err := g.registry.Register(session, s); err != nil {
		g.log.Error("Session registration failed", "session_id", session.ID, "error", err)
		session.Close()
		_ = conn.Close()
		return
	}
	// CloseAll may have taken its snapshot before this registration.
	if g.closed.Load() {
		g.registry.Unregister(session.ID)
		session.Close()
		_ = conn.Close()
		return
	}

	c := &sessionConn{
		log:     g.log,
		conn:    conn,
		session: session,
		sink:    s,
		router:  g.router,
		filter:  g.filter,
		cfg:     g.cfg,
		now:     time.Now,
	}

	// ready is written before the write pump starts, it is always the first frame.
	if err := c.write(event.SessionReady{SessionID: session.ID, Subject: session.Subject}); err != nil {
		g.log.Debug("Could not send ready", "session_id", session.ID, "error", err)
		g.registry.Unregister(session.ID)
		session.Close()
		_ = conn.Close()
		return
	}
	g.log.Info("Session connected", "session_id", session.ID, "subject", session.Subject.ID, "sessions", g.registry.Len())

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()
	c.readPump(ctx)

	g.registry.Unregister(session.ID)
	session.Close()
	<-done
	g.log.Info("Session disconnected", "session_id", session.ID, "subject", session.Subject.ID, "sessions", g.registry.Len())
}

// CloseAll disconnects every live session and refuses new upgrades. Used on
// shutdown, since hijacked websocket connections outlive http.Server.Shutdown.
func (g *Gateway) CloseAll() {
	g.closed.Store(true)
	for _, id := range g.registry.Sessions() {
		g.registry.Unregister(id)
	}
}
