package domain

import (
	"chat-relay/errors"
	"fmt"
	"sync"
)

type SessionID string

type SessionState int

const (
	Connecting SessionState = iota
	Open
	Closed
)

func (s SessionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Session is one live authenticated realtime connection.
// The state only moves forward: Connecting -> Open -> Closed or Connecting -> Closed.
type Session struct {
	ID      SessionID
	Subject Subject

	mu    sync.Mutex
	state SessionState
}

func NewSession(id SessionID) *Session {
	return &Session{ID: id, state: Connecting}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open binds the verified subject and moves the session to Open.
func (s *Session) Open(subject Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Connecting {
		return fmt.Errorf("%w: %s -> %s", errors.ErrIllegalTransition, s.state, Open)
	}
	s.Subject = subject
	s.state = Open
	return nil
}

// Close moves the session to Closed. It returns false when the session was
// already closed, so callers can run their cleanup exactly once.
func (s *Session) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return false
	}
	s.state = Closed
	return true
}
