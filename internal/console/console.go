package console

import (
	"sync"
	"time"

	"clinichat/internal/channel"
	"clinichat/internal/presence"
	"clinichat/internal/router"
	"clinichat/pkg/types"
)

// Options carries the console tunables. Zero values select the defaults.
type Options struct {
	DedupWindow   time.Duration
	TypingTimeout time.Duration
}

// Snapshot is the renderable state of the console: the availability toggle,
// the pending-request list and the single active-session view.
type Snapshot struct {
	Connected     bool
	Available     bool
	Pending       []types.PendingRequest
	ActiveID      string
	ActiveName    string
	PatientTyping bool
	Messages      []types.Message
}

// Console is the staff-side chat surface mirroring the patient widget with
// roles swapped. A console may hold several pending requests but renders at
// most one active patient at a time.
type Console struct {
	ch     *channel.Manager
	rt     *router.Router
	id     types.Identity
	roster *presence.Roster
	thread *presence.Thread
	typing *presence.TypingIndicator

	mu        sync.Mutex
	connected bool
}

// New wires a console onto the shared channel and router. The identity must
// be staff-side (STAFF or DOCTOR).
func New(ch *channel.Manager, rt *router.Router, id types.Identity, opts Options) (*Console, error) {
	if !id.Role.StaffSide() {
		return nil, ErrNotStaffRole
	}

	c := &Console{
		ch:     ch,
		rt:     rt,
		id:     id,
		roster: presence.NewRoster(),
		thread: presence.NewThread(opts.DedupWindow),
		typing: presence.NewTypingIndicator(opts.TypingTimeout),
	}

	ch.OnStatusChange(c.onStatus)
	rt.On(router.CategoryChat, c.onChat)
	rt.On(router.CategoryTyping, c.onTyping)
	rt.On(router.CategoryNotification, c.onNotification)

	return c, nil
}

// Open establishes the channel identity. Idempotent on the shared channel.
func (c *Console) Open() error {
	return c.ch.Connect(c.id)
}

// SetAvailable toggles availability and broadcasts the matching presence
// event. Toggling does not by itself create or destroy a session. Returns
// false when disconnected or the flag is already in the requested state.
func (c *Console) SetAvailable(available bool) bool {
	if !c.isConnected() {
		return false
	}
	if !c.roster.SetAvailable(available) {
		return false
	}

	eventType := types.EventTypeStaffAvailable
	if !available {
		eventType = types.EventTypeStaffUnavailable
	}
	c.rt.Send(types.ChannelEvent{
		Type:       eventType,
		SenderID:   c.id.UserID,
		SenderName: c.id.DisplayName,
		SenderRole: c.id.Role,
	})
	return true
}

// Accept binds the console to the given pending patient, clears any prior
// message thread, and announces this staff member to the requesting patient
// so the widget can complete its REQUESTING to MATCHED transition.
func (c *Console) Accept(patientID string) error {
	if _, err := c.roster.Accept(patientID, time.Now()); err != nil {
		return err
	}
	c.thread.Clear()
	c.typing.Clear()

	c.rt.Send(types.ChannelEvent{
		Type:       types.EventTypeStaffAvailable,
		SenderID:   c.id.UserID,
		SenderName: c.id.DisplayName,
		SenderRole: c.id.Role,
	})
	return nil
}

// SendMessage appends the message optimistically and emits it to the active
// patient. Gated on connected && an active session.
func (c *Console) SendMessage(content string) (types.Message, bool) {
	patientID, _, active := c.roster.Active()
	if !active || !c.isConnected() || content == "" {
		return types.Message{}, false
	}

	msg := c.thread.AppendLocal(content, c.id, time.Now())
	c.rt.Send(types.ChannelEvent{
		Type:            types.EventTypeChat,
		SenderID:        c.id.UserID,
		SenderName:      c.id.DisplayName,
		SenderRole:      c.id.Role,
		RecipientID:     patientID,
		Content:         content,
		ClientMessageID: msg.ID,
	})
	return msg, true
}

// NotifyTyping emits a typing ping to the active patient.
func (c *Console) NotifyTyping() {
	patientID, _, active := c.roster.Active()
	if !active || !c.isConnected() {
		return
	}
	c.rt.Send(types.ChannelEvent{
		Type:        types.EventTypeTyping,
		SenderID:    c.id.UserID,
		SenderName:  c.id.DisplayName,
		SenderRole:  c.id.Role,
		RecipientID: patientID,
	})
}

// EndSession emits a best-effort END_SESSION and clears the active session
// and thread unconditionally. Pending requests from other patients survive.
func (c *Console) EndSession() {
	if _, _, active := c.roster.Active(); active {
		c.rt.Send(types.ChannelEvent{
			Type:     types.EventTypeEndSession,
			SenderID: c.id.UserID,
		})
	}
	c.roster.EndActive()
	c.thread.Clear()
	c.typing.Clear()
}

// Session returns the active pairing, if any.
func (c *Console) Session() (types.Session, bool) {
	return c.roster.Session(c.id.UserID)
}

// Snapshot returns the current renderable state.
func (c *Console) Snapshot() Snapshot {
	activeID, activeName, _ := c.roster.Active()
	return Snapshot{
		Connected:     c.isConnected(),
		Available:     c.roster.Available(),
		Pending:       c.roster.Pending(),
		ActiveID:      activeID,
		ActiveName:    activeName,
		PatientTyping: c.typing.Active(),
		Messages:      c.thread.Messages(),
	}
}

func (c *Console) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Console) onStatus(connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.mu.Unlock()
}

func (c *Console) onChat(ev types.ChannelEvent) {
	if ev.SenderID == c.id.UserID {
		return
	}
	if ev.RecipientID != "" && ev.RecipientID != c.id.UserID {
		return
	}
	// Only the active patient's messages render; pending requests are
	// created by presence notifications, never by stray chat events.
	if !c.roster.ActiveIs(ev.SenderID) {
		return
	}
	if _, ok := c.thread.Receive(ev, time.Now()); ok {
		c.typing.Clear()
	}
}

func (c *Console) onTyping(ev types.ChannelEvent) {
	if ev.SenderID == c.id.UserID {
		return
	}
	if ev.RecipientID != "" && ev.RecipientID != c.id.UserID {
		return
	}
	if c.roster.ActiveIs(ev.SenderID) {
		c.typing.Touch()
	}
}

func (c *Console) onNotification(ev types.ChannelEvent) {
	switch ev.Type {
	case types.EventTypePatientConnected, types.EventTypeRequestStaff:
		c.roster.AddPending(ev.SenderID, ev.SenderName, time.Now())
	case types.EventTypePatientDisconnected:
		if c.roster.DropPatient(ev.SenderID) {
			c.thread.Clear()
			c.typing.Clear()
		}
	case types.EventTypeEndSession:
		if c.roster.ActiveIs(ev.SenderID) {
			c.roster.EndActive()
			c.thread.Clear()
			c.typing.Clear()
		}
	}
}
