package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/sink"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newOpenSession(t *testing.T, name string) *domain.Session {
	t.Helper()
	session := domain.NewSession(domain.SessionID(uuid.NewString()))
	require.NoError(t, session.Open(domain.Subject{ID: uuid.NewString(), Name: name}))
	return session
}

func TestRegistry_Register_One_Session(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	session := newOpenSession(t, "alice")

	// Given an empty registry
	req.Zero(registry.Len())
	req.Empty(registry.Sessions())

	// When a session registers
	req.NoError(registry.Register(session, sink.NewSessionSink(1)))

	// Then it is part of the membership
	req.Equal(1, registry.Len())
	req.Equal([]domain.SessionID{session.ID}, registry.Sessions())
}

func TestRegistry_Register_Twice_Is_Rejected(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	session := newOpenSession(t, "alice")

	req.NoError(registry.Register(session, sink.NewSessionSink(1)))
	err := registry.Register(session, sink.NewSessionSink(1))

	req.ErrorIs(err, errors.ErrSessionExists)
	req.Equal(1, registry.Len())
}

func TestRegistry_Unregister_Closes_Sink(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	session := newOpenSession(t, "alice")
	s := sink.NewSessionSink(1)
	req.NoError(registry.Register(session, s))

	// When the session leaves
	registry.Unregister(session.ID)

	// Then the membership is empty and the sink refuses events
	req.Zero(registry.Len())
	_, open := <-s.Events()
	req.False(open)

	// Unregistering an unknown id is a no-op
	registry.Unregister(session.ID)
	req.Zero(registry.Len())
}

func TestRegistry_ForEachOtherSession_Skips_Excluded(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	alice := newOpenSession(t, "alice")
	bob := newOpenSession(t, "bob")
	carol := newOpenSession(t, "carol")
	for _, s := range []*domain.Session{alice, bob, carol} {
		req.NoError(registry.Register(s, sink.NewSessionSink(1)))
	}

	var visited []domain.SessionID
	registry.ForEachOtherSession(alice.ID, func(session *domain.Session, _ contract.EventSink) {
		visited = append(visited, session.ID)
	})

	req.ElementsMatch([]domain.SessionID{bob.ID, carol.ID}, visited)
}

func TestRegistry_ForEachOtherSession_Callback_May_Unregister(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	alice := newOpenSession(t, "alice")
	bob := newOpenSession(t, "bob")
	req.NoError(registry.Register(alice, sink.NewSessionSink(1)))
	req.NoError(registry.Register(bob, sink.NewSessionSink(1)))

	// The callback runs outside the lock, re-entering must not deadlock
	registry.ForEachOtherSession(alice.ID, func(session *domain.Session, _ contract.EventSink) {
		registry.Unregister(session.ID)
	})

	req.Equal([]domain.SessionID{alice.ID}, registry.Sessions())
}

func TestRegistry_Concurrent_Membership_Has_No_Duplicates(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	const n = 50

	sessions := make([]*domain.Session, n)
	for i := range sessions {
		sessions[i] = newOpenSession(t, "user")
	}

	var wg sync.WaitGroup
	for _, session := range sessions {
		wg.Add(2)
		go func(s *domain.Session) {
			defer wg.Done()
			_ = registry.Register(s, sink.NewSessionSink(4))
		}(session)
		go func() {
			defer wg.Done()
			seen := make(map[domain.SessionID]struct{})
			for _, id := range registry.Sessions() {
				_, dup := seen[id]
				req.False(dup)
				seen[id] = struct{}{}
			}
		}()
	}
	wg.Wait()
	req.Equal(n, registry.Len())

	for _, session := range sessions {
		wg.Add(1)
		go func(s *domain.Session) {
			defer wg.Done()
			registry.Unregister(s.ID)
		}(session)
	}
	wg.Wait()
	req.Zero(registry.Len())
}
