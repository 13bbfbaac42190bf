//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the outbound queue of one session.
// Consume must never block: a saturated or closed sink drops the event.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
	Close()
}

// IdentityVerifier resolves a bearer credential into a subject.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (domain.Subject, error)
}

type IRegistry interface {
	Register(session *domain.Session, sink EventSink) error
	Unregister(sessionID domain.SessionID)
	ForEachOtherSession(excluding domain.SessionID, fn func(session *domain.Session, sink EventSink))
	Sessions() []domain.SessionID
	Len() int
}

type IRouter interface {
	Publish(ctx context.Context, sender domain.SessionID, message domain.Message) int
}

// MessageStore is the durable store boundary consumed by the REST layer.
type MessageStore interface {
	Persist(ctx context.Context, author domain.Subject, message domain.Message) (domain.Message, error)
	List(ctx context.Context, before *string, limit int) ([]domain.Message, *string, error)
	Update(ctx context.Context, author domain.Subject, id, text string) (domain.Message, error)
	Delete(ctx context.Context, author domain.Subject, id string) error
	Search(ctx context.Context, query string, limit int) ([]domain.Message, error)
}

// IAuthService issues credentials and resolves profiles.
type IAuthService interface {
	Register(email, username, password string) (domain.User, error)
	Login(email, password string) (domain.Token, domain.User, error)
	Profile(userID string) (domain.User, error)
}

// Emitter writes realtime frames for a client connection.
type Emitter interface {
	Emit(ctx context.Context, message event.OutgoingMessage) error
}

// MessagePersister is the client side of the durable write.
type MessagePersister interface {
	Save(ctx context.Context, message domain.Message) (domain.Message, error)
}

// ContentFilter rewrites message text before it is broadcast or stored.
type ContentFilter interface {
	Filter(text string) string
}
