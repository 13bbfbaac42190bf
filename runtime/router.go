// Package runtime holds the relay's shared state: the session registry and
// the broadcast router that fans messages out through it.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"log/slog"
	"sync/atomic"
)

var _ contract.IRouter = (*Router)(nil)

// Router fans a message out to every session other than its sender.
//
// Delivery is best-effort: a saturated or closing peer loses the event and the
// publish carries on with the others. The router never touches durable storage,
// so a message may be seen live before, after, or without its durable write.
type Router struct {
	log      *slog.Logger
	registry contract.IRegistry
	dropped  atomic.Uint64
}

func NewRouter(log *slog.Logger, registry contract.IRegistry) *Router {
	return &Router{log: log, registry: registry}
}

// Publish enqueues message on every other session and returns how many
// deliveries were accepted.
func (r *Router) Publish(ctx context.Context, sender domain.SessionID, message domain.Message) int {
	evt := event.MessageReceived{Message: message}
	delivered := 0
	r.registry.ForEachOtherSession(sender, func(session *domain.Session, sink contract.EventSink) {
		if err := sink.Consume(ctx, evt); err != nil {
			r.dropped.Add(1)
			if errors.Is(err, errors.ErrDeliveryDropped) {
				r.log.Debug("Delivery dropped, peer queue full", "session_id", session.ID)
			}
			return
		}
		delivered++
	})
	r.log.Debug("Message published", "sender", sender, "delivered", delivered)
	return delivered
}

// Dropped is the number of deliveries lost since startup.
func (r *Router) Dropped() uint64 {
	return r.dropped.Load()
}
