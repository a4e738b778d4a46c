package router

import (
	"encoding/json"
	"log"
	"sync"

	"clinichat/internal/channel"
	"clinichat/pkg/types"
)

// Category is the listener-facing classification of inbound events.
// CHAT and TYPING map one-to-one from their event types; every presence,
// request and session event lands in NOTIFICATION.
type Category string

const (
	CategoryChat         Category = "CHAT"
	CategoryTyping       Category = "TYPING"
	CategoryNotification Category = "NOTIFICATION"
)

// Listener receives classified inbound events. Listeners for a category are
// invoked in registration order; arrival order on the channel is preserved,
// so events from the same sender are observed in the order they were emitted.
type Listener func(event types.ChannelEvent)

// Router classifies inbound channel frames and dispatches them to registered
// listeners, and serializes typed outbound events. Several UI surfaces share
// one router; each listener filters the events relevant to it.
type Router struct {
	ch *channel.Manager

	mu        sync.RWMutex
	listeners map[Category][]Listener
}

// NewRouter creates a router bound to the channel manager's frame stream.
func NewRouter(ch *channel.Manager) *Router {
	r := &Router{
		ch:        ch,
		listeners: make(map[Category][]Listener),
	}
	ch.OnFrame(r.handleFrame)
	return r
}

// On registers a listener for a category. Multiple listeners per category are
// allowed and fire in registration order.
func (r *Router) On(category Category, fn Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[category] = append(r.listeners[category], fn)
}

// Send serializes a typed event onto the channel. At-most-once: when the
// channel is down the event is dropped and the caller is not signalled;
// callers gate send actions on the connected flag instead.
func (r *Router) Send(event types.ChannelEvent) {
	if err := event.Validate(); err != nil {
		log.Printf("router: dropping invalid outbound %s event: %v", event.Type, err)
		return
	}

	data, err := json.Marshal(&event)
	if err != nil {
		log.Printf("router: marshal failed for %s event: %v", event.Type, err)
		return
	}

	if err := r.ch.Send(data); err != nil {
		log.Printf("router: dropped %s event, channel down: %v", event.Type, err)
	}
}

// handleFrame classifies one inbound raw frame into exactly one category and
// dispatches it. Unknown type values are rejected and logged rather than
// misrouted.
func (r *Router) handleFrame(data []byte) {
	var event types.ChannelEvent
	if err := json.Unmarshal(data, &event); err != nil {
		log.Printf("router: dropping malformed frame: %v", err)
		return
	}

	category, ok := Classify(event.Type)
	if !ok {
		log.Printf("router: dropping event with unknown type %q", event.Type)
		return
	}

	r.mu.RLock()
	listeners := make([]Listener, len(r.listeners[category]))
	copy(listeners, r.listeners[category])
	r.mu.RUnlock()

	for _, fn := range listeners {
		fn(event)
	}
}

// Classify maps an event type to its listener category.
func Classify(eventType string) (Category, bool) {
	switch eventType {
	case types.EventTypeChat:
		return CategoryChat, true
	case types.EventTypeTyping:
		return CategoryTyping, true
	case types.EventTypeStaffAvailable, types.EventTypeStaffUnavailable,
		types.EventTypePatientConnected, types.EventTypePatientDisconnected,
		types.EventTypeRequestStaff, types.EventTypeEndSession:
		return CategoryNotification, true
	default:
		return "", false
	}
}
