// Package client is the relay SDK: it keeps one reconciled view of the room
// across reconnects, merging history, local sends and broadcasts.
package client

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"time"
)

type Config struct {
	BaseURL          string
	SocketURL        string
	Token            string
	Author           string
	HistoryLimit     int
	HandshakeTimeout time.Duration
	PersistTimeout   time.Duration
	ReconnectDelay   time.Duration
	MaxReconnect     time.Duration
}

// Client drives a Reconciler from a websocket Transport and the REST store.
type Client struct {
	log        *slog.Logger
	cfg        Config
	transport  *Transport
	store      *StoreClient
	reconciler *Reconciler
}

func New(log *slog.Logger, cfg Config, store *StoreClient, opts ...ReconcilerOption) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 500 * time.Millisecond
	}
	if cfg.MaxReconnect < cfg.ReconnectDelay {
		cfg.MaxReconnect = 20 * cfg.ReconnectDelay
	}
	store = store.WithToken(cfg.Token)
	return &Client{
		log:        log,
		cfg:        cfg,
		transport:  NewTransport(log, cfg.SocketURL, cfg.HandshakeTimeout),
		store:      store,
		reconciler: NewReconciler(log, cfg.Author, store, cfg.PersistTimeout, opts...),
	}
}

func (c *Client) Reconciler() *Reconciler {
	return c.reconciler
}

func (c *Client) Send(ctx context.Context, text string) (Entry, error) {
	return c.reconciler.SendLocal(ctx, text)
}

// Run connects, loads history and listens until ctx is done, reconnecting
// with a growing delay after transport failures. A rejected credential
// stops the loop and is returned.
func (c *Client) Run(ctx context.Context) error {
	go c.reconciler.Run(ctx)

	delay := c.cfg.ReconnectDelay
	for {
		live, err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if live {
			delay = c.cfg.ReconnectDelay
		}
		_ = c.reconciler.Disconnect(ctx, err)
		if errors.Is(err, errors.ErrAuthRejected) {
			c.log.Error("Relay rejected credential", "error", err)
			return err
		}

		c.log.Warn("Disconnected from relay", "error", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, c.cfg.MaxReconnect)
	}
}

// session runs one connection: handshake, history, then broadcasts until
// the connection ends.
func (c *Client) session(ctx context.Context) (bool, error) {
	conn, ready, err := c.transport.Connect(ctx, c.cfg.Token)
	if err != nil {
		return false, err
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	history, _, err := c.store.History(ctx, nil, c.cfg.HistoryLimit)
	switch {
	case err == nil:
	case ctx.Err() != nil, errors.Is(err, errors.ErrAuthRejected):
		return false, err
	default:
		// The socket is healthy: go live without history, the next
		// reconnect fetches it again.
		c.log.Warn("History unavailable", "error", err)
		c.reconciler.notifyAsync(Notice{Kind: PersistFailed, Err: fmt.Errorf("%w: history: %w", errors.ErrPersistenceFailure, err)})
	}
	if err := c.reconciler.LoadHistory(ctx, history, conn); err != nil {
		return false, err
	}
	c.log.Info("Live", "session_id", ready.SessionID, "history", len(history))

	return true, conn.Listen(func(message domain.Message) {
		_ = c.reconciler.OnBroadcastReceived(ctx, message)
	})
}
