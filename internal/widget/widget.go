package widget

import (
	"sync"
	"time"

	"clinichat/internal/channel"
	"clinichat/internal/presence"
	"clinichat/internal/router"
	"clinichat/pkg/types"
)

// Options carries the widget tunables. Zero values select the defaults.
type Options struct {
	DedupWindow   time.Duration
	TypingTimeout time.Duration
}

// Snapshot is the renderable state of the widget: IDLE renders the
// "Request Staff" call to action, REQUESTING a loading indicator, MATCHED the
// message thread with the input gated on Connected.
type Snapshot struct {
	State       presence.PatientState
	Connected   bool
	StaffID     string
	StaffName   string
	StaffTyping bool
	Messages    []types.Message
}

// Widget is the patient-side chat surface: a state machine over the shared
// channel manager and event router. It registers its own listeners and
// filters events relevant to it; other surfaces share the same channel.
type Widget struct {
	ch      *channel.Manager
	rt      *router.Router
	id      types.Identity
	matcher *presence.Matcher
	thread  *presence.Thread
	typing  *presence.TypingIndicator

	mu        sync.Mutex
	connected bool
}

// New wires a widget onto the shared channel and router. The identity must
// carry the PATIENT role.
func New(ch *channel.Manager, rt *router.Router, id types.Identity, opts Options) (*Widget, error) {
	if id.Role != types.RolePatient {
		return nil, ErrNotPatientRole
	}

	w := &Widget{
		ch:      ch,
		rt:      rt,
		id:      id,
		matcher: presence.NewMatcher(),
		thread:  presence.NewThread(opts.DedupWindow),
		typing:  presence.NewTypingIndicator(opts.TypingTimeout),
	}

	ch.OnStatusChange(w.onStatus)
	rt.On(router.CategoryChat, w.onChat)
	rt.On(router.CategoryTyping, w.onTyping)
	rt.On(router.CategoryNotification, w.onNotification)

	return w, nil
}

// Open establishes the channel identity. Idempotent; safe when another
// surface already connected the shared channel with the same identity.
func (w *Widget) Open() error {
	return w.ch.Connect(w.id)
}

// RequestStaff moves IDLE to REQUESTING and emits REQUEST_STAFF. Returns
// false when disconnected or not in IDLE; the UI disables the action in both
// cases.
func (w *Widget) RequestStaff() bool {
	if !w.isConnected() {
		return false
	}
	if !w.matcher.Request() {
		return false
	}
	w.rt.Send(types.ChannelEvent{
		Type:       types.EventTypeRequestStaff,
		SenderID:   w.id.UserID,
		SenderName: w.id.DisplayName,
		SenderRole: w.id.Role,
	})
	return true
}

// SendMessage appends the message optimistically and emits it to the matched
// staff member. The sender never waits for or reconciles against an echo.
// Gated on connected && matched.
func (w *Widget) SendMessage(content string) (types.Message, bool) {
	staffID, _, matched := w.matcher.Staff()
	if !matched || !w.isConnected() || content == "" {
		return types.Message{}, false
	}

	msg := w.thread.AppendLocal(content, w.id, time.Now())
	w.rt.Send(types.ChannelEvent{
		Type:            types.EventTypeChat,
		SenderID:        w.id.UserID,
		SenderName:      w.id.DisplayName,
		SenderRole:      w.id.Role,
		RecipientID:     staffID,
		Content:         content,
		ClientMessageID: msg.ID,
	})
	return msg, true
}

// NotifyTyping emits a typing ping to the matched staff member. Called on
// every keystroke while matched; cheap no-op otherwise.
func (w *Widget) NotifyTyping() {
	staffID, _, matched := w.matcher.Staff()
	if !matched || !w.isConnected() {
		return
	}
	w.rt.Send(types.ChannelEvent{
		Type:        types.EventTypeTyping,
		SenderID:    w.id.UserID,
		SenderName:  w.id.DisplayName,
		SenderRole:  w.id.Role,
		RecipientID: staffID,
	})
}

// EndSession emits a best-effort END_SESSION and resets to IDLE. Local state
// is cleared unconditionally without waiting for an acknowledgment; reopening
// always starts from a clean IDLE state.
func (w *Widget) EndSession() {
	if _, _, matched := w.matcher.Staff(); matched {
		w.rt.Send(types.ChannelEvent{
			Type:     types.EventTypeEndSession,
			SenderID: w.id.UserID,
		})
	}
	w.reset()
}

// Snapshot returns the current renderable state.
func (w *Widget) Snapshot() Snapshot {
	staffID, staffName, _ := w.matcher.Staff()
	return Snapshot{
		State:       w.matcher.State(),
		Connected:   w.isConnected(),
		StaffID:     staffID,
		StaffName:   staffName,
		StaffTyping: w.typing.Active(),
		Messages:    w.thread.Messages(),
	}
}

func (w *Widget) isConnected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

func (w *Widget) reset() {
	w.matcher.End()
	w.thread.Clear()
	w.typing.Clear()
}

func (w *Widget) onStatus(connected bool) {
	w.mu.Lock()
	w.connected = connected
	w.mu.Unlock()
}

func (w *Widget) onChat(ev types.ChannelEvent) {
	if ev.SenderID == w.id.UserID {
		return
	}
	if ev.RecipientID != "" && ev.RecipientID != w.id.UserID {
		return
	}

	// The first CHAT from a staff sender while REQUESTING establishes the
	// match; subsequent distinct staff identities are ignored.
	if ev.SenderRole.StaffSide() {
		w.matcher.Offer(ev.SenderID, ev.SenderName)
	}
	if !w.matcher.MatchedWith(ev.SenderID) {
		return
	}

	if _, ok := w.thread.Receive(ev, time.Now()); ok {
		w.typing.Clear()
	}
}

func (w *Widget) onTyping(ev types.ChannelEvent) {
	if ev.SenderID == w.id.UserID {
		return
	}
	if ev.RecipientID != "" && ev.RecipientID != w.id.UserID {
		return
	}
	if w.matcher.MatchedWith(ev.SenderID) {
		w.typing.Touch()
	}
}

func (w *Widget) onNotification(ev types.ChannelEvent) {
	switch ev.Type {
	case types.EventTypeStaffAvailable:
		w.matcher.Offer(ev.SenderID, ev.SenderName)
	case types.EventTypeEndSession:
		if w.matcher.MatchedWith(ev.SenderID) {
			w.reset()
		}
	}
}
