package push

import (
	"sync"

	"github.com/google/uuid"
)

// Handler receives events of the type it registered for.
type Handler func(Event)

// Router fans inbound events out to registered handlers, keyed by event
// type. Handlers for a type run in registration order. Delivery is
// at-most-once per physical event; handlers must tolerate transport-level
// redelivery themselves.
type Router struct {
	mu       sync.Mutex
	handlers map[EventType][]registration
}

type registration struct {
	id      string
	handler Handler
}

// Subscription identifies one registered handler so it can be detached
// without comparing function values. Detaching twice is a no-op.
type Subscription struct {
	router    *Router
	eventType EventType
	id        string
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{handlers: map[EventType][]registration{}}
}

// On registers a handler for an event type. Multiple handlers per type are
// all invoked; registration is additive.
func (r *Router) On(eventType EventType, handler Handler) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.NewString()
	r.handlers[eventType] = append(r.handlers[eventType], registration{id: id, handler: handler})
	return Subscription{router: r, eventType: eventType, id: id}
}

// Off detaches a previously registered handler. Unknown or already-detached
// subscriptions are ignored.
func (r *Router) Off(sub Subscription) {
	if sub.router != r || sub.id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.handlers[sub.eventType]
	for i, entry := range entries {
		if entry.id == sub.id {
			r.handlers[sub.eventType] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// Off detaches this subscription from its router.
func (s Subscription) Off() {
	if s.router != nil {
		s.router.Off(s)
	}
}

// Dispatch delivers an event to every handler registered for its type, in
// registration order. Handlers run outside the router lock so they may
// register or detach subscriptions freely.
func (r *Router) Dispatch(event Event) {
	r.mu.Lock()
	entries := append([]registration(nil), r.handlers[event.Type]...)
	r.mu.Unlock()
	for _, entry := range entries {
		entry.handler(event)
	}
}
