package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"sync"
)

var _ contract.IRegistry = (*Registry)(nil)

type entry struct {
	session *domain.Session
	sink    contract.EventSink
}

// Registry is the process-wide map of live sessions.
// It is the only shared mutable state of the relay and is only mutated through
// Register and Unregister.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]entry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.SessionID]entry)}
}

// Register adds an open session and its outbound sink.
// A session id can only be registered once.
func (r *Registry) Register(session *domain.Session, sink contract.EventSink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[session.ID]; exists {
		return fmt.Errorf("%w: %s", errors.ErrSessionExists, session.ID)
	}
	r.sessions[session.ID] = entry{session: session, sink: sink}
	return nil
}

// Unregister removes a session and closes its sink.
// The sink is closed before returning so no fanout can reach it afterwards.
func (r *Registry) Unregister(sessionID domain.SessionID) {
	r.mu.Lock()
	e, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if ok {
		e.sink.Close()
	}
}

// ForEachOtherSession calls fn for every registered session except excluding.
// It iterates over a snapshot copied under the read lock, so fn may block or
// call back into the registry without holding it.
func (r *Registry) ForEachOtherSession(excluding domain.SessionID, fn func(session *domain.Session, sink contract.EventSink)) {
	for _, e := range r.snapshot() {
		if e.session.ID == excluding {
			continue
		}
		fn(e.session, e.sink)
	}
}

// Sessions returns the ids of the currently registered sessions.
func (r *Registry) Sessions() []domain.SessionID {
	snapshot := r.snapshot()
	ids := make([]domain.SessionID, 0, len(snapshot))
	for _, e := range snapshot {
		ids = append(ids, e.session.ID)
	}
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) snapshot() []entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		res = append(res, e)
	}
	return res
}
