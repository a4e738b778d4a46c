package console

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"clinichat/internal/channel"
	"clinichat/internal/presence"
	"clinichat/internal/router"
	"clinichat/pkg/types"
)

type pipeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func (c *pipeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, errors.New("connection closed")
	}
}

func (c *pipeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	c.writes = append(c.writes, data)
	c.mu.Unlock()
	return nil
}

func (c *pipeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type pipeTransport struct {
	mu   sync.Mutex
	conn *pipeConn
}

func (t *pipeTransport) Dial(ctx context.Context, url string) (channel.Conn, error) {
	conn := &pipeConn{in: make(chan []byte, 32), closed: make(chan struct{})}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return conn, nil
}

func (t *pipeTransport) current() *pipeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

func (t *pipeTransport) sent() []types.ChannelEvent {
	conn := t.current()
	if conn == nil {
		return nil
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	out := make([]types.ChannelEvent, 0, len(conn.writes))
	for _, data := range conn.writes {
		var ev types.ChannelEvent
		if err := json.Unmarshal(data, &ev); err == nil {
			out = append(out, ev)
		}
	}
	return out
}

func (t *pipeTransport) inject(tb testing.TB, ev types.ChannelEvent) {
	tb.Helper()
	data, err := json.Marshal(&ev)
	if err != nil {
		tb.Fatalf("marshal inject: %v", err)
	}
	t.current().in <- data
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func staffIdentity() types.Identity {
	return types.Identity{UserID: "staff1", DisplayName: "Ann", Role: types.RoleStaff}
}

func openConsole(t *testing.T, opts Options) (*Console, *pipeTransport) {
	t.Helper()
	tr := &pipeTransport{}
	m := channel.NewManager(tr, "ws://test/ws", nil)
	t.Cleanup(m.Teardown)
	rt := router.NewRouter(m)

	c, err := New(m, rt, staffIdentity(), opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := c.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	waitUntil(t, "channel up", func() bool { return c.Snapshot().Connected })
	return c, tr
}

func patientConnected(id, name string) types.ChannelEvent {
	return types.ChannelEvent{
		Type:       types.EventTypePatientConnected,
		SenderID:   id,
		SenderName: name,
		SenderRole: types.RolePatient,
	}
}

func patientChat(id, name, content string) types.ChannelEvent {
	return types.ChannelEvent{
		Type:        types.EventTypeChat,
		SenderID:    id,
		SenderName:  name,
		SenderRole:  types.RolePatient,
		RecipientID: "staff1",
		Content:     content,
	}
}

func hasPending(c *Console, patientID string) bool {
	for _, p := range c.Snapshot().Pending {
		if p.PatientID == patientID {
			return true
		}
	}
	return false
}

func TestConsole_RequiresStaffSideRole(t *testing.T) {
	tr := &pipeTransport{}
	m := channel.NewManager(tr, "ws://test/ws", nil)
	defer m.Teardown()
	rt := router.NewRouter(m)

	patient := types.Identity{UserID: "p1", DisplayName: "Jane", Role: types.RolePatient}
	if _, err := New(m, rt, patient, Options{}); err != ErrNotStaffRole {
		t.Errorf("expected ErrNotStaffRole, got %v", err)
	}

	doctor := types.Identity{UserID: "d1", DisplayName: "Dr. Lee", Role: types.RoleDoctor}
	if _, err := New(m, rt, doctor, Options{}); err != nil {
		t.Errorf("DOCTOR is staff-side and must be accepted, got %v", err)
	}
}

func TestConsole_AvailabilityToggleEmitsPresence(t *testing.T) {
	c, tr := openConsole(t, Options{})

	if !c.SetAvailable(true) {
		t.Fatal("first toggle on should succeed")
	}
	if c.SetAvailable(true) {
		t.Error("redundant toggle must not re-emit")
	}
	if !c.SetAvailable(false) {
		t.Fatal("toggle off should succeed")
	}

	sent := tr.sent()
	if len(sent) != 2 {
		t.Fatalf("expected 2 presence frames, got %d", len(sent))
	}
	if sent[0].Type != types.EventTypeStaffAvailable || sent[1].Type != types.EventTypeStaffUnavailable {
		t.Errorf("unexpected presence sequence: %s, %s", sent[0].Type, sent[1].Type)
	}
	if sent[0].SenderID != "staff1" || sent[0].SenderName != "Ann" {
		t.Errorf("presence frame missing sender identity: %+v", sent[0])
	}
}

func TestConsole_AvailabilityGatedOnConnection(t *testing.T) {
	tr := &pipeTransport{}
	m := channel.NewManager(tr, "ws://test/ws", nil)
	defer m.Teardown()
	rt := router.NewRouter(m)
	c, err := New(m, rt, staffIdentity(), Options{})
	if err != nil {
		t.Fatal(err)
	}

	if c.SetAvailable(true) {
		t.Error("toggle while disconnected must be rejected")
	}
}

func TestConsole_AcceptBindsPendingPatient(t *testing.T) {
	c, tr := openConsole(t, Options{})
	c.SetAvailable(true)

	tr.inject(t, patientConnected("pat1", "Jane"))
	waitUntil(t, "pending", func() bool { return hasPending(c, "pat1") })

	snap := c.Snapshot()
	if len(snap.Pending) != 1 || snap.Pending[0].PatientName != "Jane" {
		t.Fatalf("unexpected pending list: %+v", snap.Pending)
	}

	if err := c.Accept("pat1"); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	snap = c.Snapshot()
	if snap.ActiveID != "pat1" || snap.ActiveName != "Jane" {
		t.Errorf("active session not bound: %+v", snap)
	}
	if len(snap.Pending) != 0 {
		t.Errorf("accepted patient must leave the pending list: %+v", snap.Pending)
	}

	// Accept announces this staff member so the requesting widget matches.
	sent := tr.sent()
	last := sent[len(sent)-1]
	if last.Type != types.EventTypeStaffAvailable || last.SenderID != "staff1" {
		t.Errorf("Accept should announce STAFF_AVAILABLE, got %+v", last)
	}
}

func TestConsole_AcceptUnknownPatient(t *testing.T) {
	c, _ := openConsole(t, Options{})
	if err := c.Accept("ghost"); !errors.Is(err, presence.ErrUnknownRequest) {
		t.Errorf("expected ErrUnknownRequest, got %v", err)
	}
}

func TestConsole_RequestStaffAlsoQueues(t *testing.T) {
	c, tr := openConsole(t, Options{})

	tr.inject(t, types.ChannelEvent{
		Type:       types.EventTypeRequestStaff,
		SenderID:   "pat2",
		SenderName: "Tom",
		SenderRole: types.RolePatient,
	})
	waitUntil(t, "pending", func() bool { return hasPending(c, "pat2") })

	// The connect notification for the same patient must not duplicate.
	tr.inject(t, patientConnected("pat2", "Tom"))
	tr.inject(t, patientConnected("pat3", "Eve"))
	waitUntil(t, "second pending", func() bool { return hasPending(c, "pat3") })

	if n := len(c.Snapshot().Pending); n != 2 {
		t.Errorf("expected 2 pending requests, got %d", n)
	}
}

func TestConsole_ChatOnlyFromActivePatient(t *testing.T) {
	c, tr := openConsole(t, Options{})
	tr.inject(t, patientConnected("pat1", "Jane"))
	waitUntil(t, "pending", func() bool { return hasPending(c, "pat1") })
	if err := c.Accept("pat1"); err != nil {
		t.Fatal(err)
	}

	tr.inject(t, patientChat("pat2", "Tom", "wrong thread"))
	tr.inject(t, patientChat("pat1", "Jane", "hello"))
	waitUntil(t, "chat", func() bool { return len(c.Snapshot().Messages) == 1 })

	msgs := c.Snapshot().Messages
	if msgs[0].SenderID != "pat1" || msgs[0].Content != "hello" || msgs[0].IsOwn {
		t.Errorf("unexpected rendered message: %+v", msgs[0])
	}
}

func TestConsole_SendMessageToActivePatient(t *testing.T) {
	c, tr := openConsole(t, Options{})

	if _, ok := c.SendMessage("too early"); ok {
		t.Error("SendMessage without an active session must be rejected")
	}

	tr.inject(t, patientConnected("pat1", "Jane"))
	waitUntil(t, "pending", func() bool { return hasPending(c, "pat1") })
	if err := c.Accept("pat1"); err != nil {
		t.Fatal(err)
	}

	msg, ok := c.SendMessage("How can I help?")
	if !ok {
		t.Fatal("SendMessage with an active session should succeed")
	}
	if !msg.IsOwn || msg.SenderID != "staff1" {
		t.Errorf("optimistic message malformed: %+v", msg)
	}

	var chat *types.ChannelEvent
	for _, ev := range tr.sent() {
		if ev.Type == types.EventTypeChat {
			chat = &ev
			break
		}
	}
	if chat == nil {
		t.Fatal("no CHAT frame written")
	}
	if chat.RecipientID != "pat1" || chat.Content != "How can I help?" || chat.ClientMessageID != msg.ID {
		t.Errorf("unexpected CHAT frame: %+v", chat)
	}
}

func TestConsole_TypingFromActivePatient(t *testing.T) {
	c, tr := openConsole(t, Options{TypingTimeout: 40 * time.Millisecond})
	tr.inject(t, patientConnected("pat1", "Jane"))
	waitUntil(t, "pending", func() bool { return hasPending(c, "pat1") })
	if err := c.Accept("pat1"); err != nil {
		t.Fatal(err)
	}

	tr.inject(t, types.ChannelEvent{
		Type:        types.EventTypeTyping,
		SenderID:    "pat1",
		SenderRole:  types.RolePatient,
		RecipientID: "staff1",
	})
	waitUntil(t, "typing on", func() bool { return c.Snapshot().PatientTyping })
	waitUntil(t, "typing off", func() bool { return !c.Snapshot().PatientTyping })
}

func TestConsole_EndSessionKeepsOtherPending(t *testing.T) {
	c, tr := openConsole(t, Options{})
	tr.inject(t, patientConnected("pat1", "Jane"))
	tr.inject(t, patientConnected("pat2", "Tom"))
	waitUntil(t, "pending", func() bool { return hasPending(c, "pat2") })
	if err := c.Accept("pat1"); err != nil {
		t.Fatal(err)
	}
	c.SendMessage("hello")

	c.EndSession()

	snap := c.Snapshot()
	if snap.ActiveID != "" {
		t.Errorf("active session should be cleared, got %s", snap.ActiveID)
	}
	if len(snap.Messages) != 0 {
		t.Errorf("thread must be cleared: %+v", snap.Messages)
	}
	if !hasPending(c, "pat2") {
		t.Error("unrelated pending request must survive EndSession")
	}

	var ended bool
	for _, ev := range tr.sent() {
		if ev.Type == types.EventTypeEndSession && ev.SenderID == "staff1" {
			ended = true
		}
	}
	if !ended {
		t.Error("EndSession should emit a best-effort END_SESSION")
	}
}

func TestConsole_PatientDisconnectSemantics(t *testing.T) {
	c, tr := openConsole(t, Options{})
	tr.inject(t, patientConnected("pat1", "Jane"))
	tr.inject(t, patientConnected("pat2", "Tom"))
	waitUntil(t, "pending", func() bool { return hasPending(c, "pat2") })
	if err := c.Accept("pat1"); err != nil {
		t.Fatal(err)
	}
	tr.inject(t, patientChat("pat1", "Jane", "hello"))
	waitUntil(t, "chat", func() bool { return len(c.Snapshot().Messages) == 1 })

	// A pending patient dropping only removes its queue entry.
	tr.inject(t, types.ChannelEvent{Type: types.EventTypePatientDisconnected, SenderID: "pat2"})
	waitUntil(t, "pending drop", func() bool { return !hasPending(c, "pat2") })
	if snap := c.Snapshot(); snap.ActiveID != "pat1" || len(snap.Messages) != 1 {
		t.Fatalf("unrelated disconnect must not touch the active session: %+v", snap)
	}

	// The active patient dropping clears the session and thread.
	tr.inject(t, types.ChannelEvent{Type: types.EventTypePatientDisconnected, SenderID: "pat1"})
	waitUntil(t, "active drop", func() bool { return c.Snapshot().ActiveID == "" })
	if msgs := c.Snapshot().Messages; len(msgs) != 0 {
		t.Errorf("thread must be cleared when the active patient drops: %+v", msgs)
	}
}

func TestConsole_RemoteEndSessionFromActivePatient(t *testing.T) {
	c, tr := openConsole(t, Options{})
	tr.inject(t, patientConnected("pat1", "Jane"))
	waitUntil(t, "pending", func() bool { return hasPending(c, "pat1") })
	if err := c.Accept("pat1"); err != nil {
		t.Fatal(err)
	}

	tr.inject(t, types.ChannelEvent{Type: types.EventTypeEndSession, SenderID: "pat1"})
	waitUntil(t, "end", func() bool { return c.Snapshot().ActiveID == "" })
}

func TestConsole_Session(t *testing.T) {
	c, tr := openConsole(t, Options{})
	if _, ok := c.Session(); ok {
		t.Error("no session expected before Accept")
	}

	tr.inject(t, patientConnected("pat1", "Jane"))
	waitUntil(t, "pending", func() bool { return hasPending(c, "pat1") })
	if err := c.Accept("pat1"); err != nil {
		t.Fatal(err)
	}

	sess, ok := c.Session()
	if !ok || sess.PatientID != "pat1" || sess.StaffID != "staff1" {
		t.Errorf("unexpected session: %+v ok=%v", sess, ok)
	}
}
