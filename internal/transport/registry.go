package transport

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// EventKind is the closed set of events carried over the socket channel.
type EventKind string

const (
	// Lifecycle events, dispatched locally by the client.
	EventConnect    EventKind = "connect"
	EventDisconnect EventKind = "disconnect"

	// Inbound events.
	EventNewMessage EventKind = "new_message"
	EventUserTyping EventKind = "user_typing"

	// Outbound events.
	EventJoinConversation  EventKind = "join_conversation"
	EventLeaveConversation EventKind = "leave_conversation"
	EventSendMessage       EventKind = "send_message"
	EventTyping            EventKind = "typing"
)

// Handler receives the raw payload of a dispatched event.
type Handler func(data json.RawMessage)

// Subscription is an opaque token identifying one registration. Removal
// goes through the token, so registering the same function twice yields
// two independent subscriptions and no equality-based lookup is needed.
type Subscription struct {
	kind EventKind
	id   string
}

type registration struct {
	id      string
	handler Handler
}

// Registry maps event kinds to ordered handler registrations. It is
// independent of any connection: registrations survive disconnects and
// reconnects of the underlying transport.
type Registry struct {
	mu       sync.Mutex
	handlers map[EventKind][]registration
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[EventKind][]registration),
	}
}

func (r *Registry) On(kind EventKind, h Handler) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	r.handlers[kind] = append(r.handlers[kind], registration{id: id, handler: h})
	return Subscription{kind: kind, id: id}
}

func (r *Registry) Off(sub Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs := r.handlers[sub.kind]
	for i, reg := range regs {
		if reg.id == sub.id {
			r.handlers[sub.kind] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// OffAll removes every registration for the given event kind.
func (r *Registry) OffAll(kind EventKind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.handlers, kind)
}

// Dispatch invokes the handlers registered for kind in registration
// order. It iterates a snapshot, so handlers registered during the pass
// do not see this event, and it re-checks liveness before each call, so
// a handler removed mid-pass is skipped.
func (r *Registry) Dispatch(kind EventKind, data json.RawMessage) {
	r.mu.Lock()
	snapshot := make([]registration, len(r.handlers[kind]))
	copy(snapshot, r.handlers[kind])
	r.mu.Unlock()

	for _, reg := range snapshot {
		if r.alive(kind, reg.id) {
			reg.handler(data)
		}
	}
}

func (r *Registry) alive(kind EventKind, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reg := range r.handlers[kind] {
		if reg.id == id {
			return true
		}
	}
	return false
}
