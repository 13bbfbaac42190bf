package sink

import (
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"sync"
)

// SessionSink is the bounded outbound queue of one websocket session.
// The fanout writes into it, the session write pump drains Events().
type SessionSink struct {
	mu     sync.RWMutex
	closed bool
	events chan event.DomainEvent
}

func NewSessionSink(bufferSize int) *SessionSink {
	return &SessionSink{events: make(chan event.DomainEvent, bufferSize)}
}

// Consume is called by the router.
// It never blocks: a full queue drops the event, a closed sink refuses it.
func (s *SessionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.ErrSinkClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case s.events <- e:
		return nil
	default:
		return errors.ErrDeliveryDropped
	}
}

// Events is drained by the owner of the connection.
// The channel is closed once the sink is closed.
func (s *SessionSink) Events() <-chan event.DomainEvent {
	return s.events
}

// Close is idempotent. Once it returns, Consume never enqueues again.
func (s *SessionSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

func (s *SessionSink) Len() int {
	return len(s.events)
}
