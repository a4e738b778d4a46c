package relay

import (
	"encoding/json"
	"log"
	"time"

	"clinichat/pkg/types"
)

// Relay is the development channel service: it registers clients by identity,
// routes addressed events to their recipient, broadcasts everything else to
// the opposite role side, and emits patient lifecycle notifications. It
// implements the channel contract the client core is written against and
// nothing more.
type Relay struct {
	registry *registry
	store    *Store // nil disables the event log
}

// New creates a relay. store may be nil.
func New(store *Store) *Relay {
	return &Relay{
		registry: newRegistry(),
		store:    store,
	}
}

// Stats exposes registry counters for the health endpoint.
func (r *Relay) Stats() map[string]int {
	return r.registry.stats()
}

// attach registers the connection and, for patients, announces their arrival
// to the staff side.
func (r *Relay) attach(c *conn) {
	r.registry.register(c)
	log.Printf("relay: %s connected as %s", c.identity.UserID, c.identity.Role)

	if c.identity.Role == types.RolePatient {
		r.broadcast(c, types.ChannelEvent{
			Type:       types.EventTypePatientConnected,
			SenderID:   c.identity.UserID,
			SenderName: c.identity.DisplayName,
			SenderRole: c.identity.Role,
		})
	}
}

// detach unregisters the connection. A patient dropping off notifies the
// staff side; a connection that was already replaced stays silent so the
// successor's session is undisturbed.
func (r *Relay) detach(c *conn) {
	if !r.registry.unregister(c) {
		return
	}
	log.Printf("relay: %s disconnected", c.identity.UserID)

	if c.identity.Role == types.RolePatient {
		r.broadcast(c, types.ChannelEvent{
			Type:       types.EventTypePatientDisconnected,
			SenderID:   c.identity.UserID,
			SenderName: c.identity.DisplayName,
			SenderRole: c.identity.Role,
		})
	}
}

// dispatch routes one inbound frame from c. Sender fields are always taken
// from the registered identity, never trusted from the wire.
func (r *Relay) dispatch(c *conn, data []byte) {
	var ev types.ChannelEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("relay: dropping malformed frame from %s: %v", c.identity.UserID, err)
		return
	}

	ev.SenderID = c.identity.UserID
	ev.SenderName = c.identity.DisplayName
	ev.SenderRole = c.identity.Role

	if err := ev.Validate(); err != nil {
		log.Printf("relay: dropping invalid %s from %s: %v", ev.Type, ev.SenderID, err)
		return
	}

	if r.store != nil {
		if err := r.store.Record(ev, time.Now()); err != nil {
			log.Printf("relay: event log append failed: %v", err)
		}
	}

	if ev.RecipientID != "" {
		r.unicast(ev)
		return
	}
	r.broadcast(c, ev)
}

// unicast delivers to the addressed recipient; an offline recipient means the
// frame is dropped, matching the no-queue contract.
func (r *Relay) unicast(ev types.ChannelEvent) {
	target, ok := r.registry.get(ev.RecipientID)
	if !ok {
		log.Printf("relay: recipient %s offline, dropping %s from %s", ev.RecipientID, ev.Type, ev.SenderID)
		return
	}
	r.deliver(target, ev)
}

// broadcast delivers to every connection on the opposite role side of the
// sender, excluding the sender itself.
func (r *Relay) broadcast(sender *conn, ev types.ChannelEvent) {
	for _, target := range r.registry.side(!sender.identity.Role.StaffSide()) {
		if target == sender {
			continue
		}
		r.deliver(target, ev)
	}
}

func (r *Relay) deliver(target *conn, ev types.ChannelEvent) {
	data, err := json.Marshal(&ev)
	if err != nil {
		log.Printf("relay: marshal %s failed: %v", ev.Type, err)
		return
	}
	if err := target.send(data); err != nil {
		log.Printf("relay: delivery to %s failed: %v", target.identity.UserID, err)
	}
}
