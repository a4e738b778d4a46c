package relay

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"clinichat/pkg/types"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RecordAndRecent(t *testing.T) {
	s := tempStore(t)
	now := time.Now()

	events := []types.ChannelEvent{
		{Type: types.EventTypeRequestStaff, SenderID: "pat1", SenderName: "Jane", SenderRole: types.RolePatient},
		{Type: types.EventTypeChat, SenderID: "staff1", SenderRole: types.RoleStaff, RecipientID: "pat1", Content: "hello"},
		{Type: types.EventTypeChat, SenderID: "pat1", SenderRole: types.RolePatient, RecipientID: "staff1", Content: "hi"},
	}
	for _, ev := range events {
		if err := s.Record(ev, now); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	recent, err := s.Recent(2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 events, got %d", len(recent))
	}
	// Newest first.
	if recent[0].Content != "hi" || recent[1].Content != "hello" {
		t.Errorf("unexpected order: %+v", recent)
	}
}

func TestStore_CountBySender(t *testing.T) {
	s := tempStore(t)
	now := time.Now()

	for i := 0; i < 3; i++ {
		ev := types.ChannelEvent{Type: types.EventTypeTyping, SenderID: "pat1", SenderRole: types.RolePatient, RecipientID: "staff1"}
		if err := s.Record(ev, now); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.CountBySender("pat1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
	if n, _ := s.CountBySender("nobody"); n != 0 {
		t.Errorf("count for unknown sender = %d, want 0", n)
	}
}

func TestStore_ClosedRejectsWrites(t *testing.T) {
	s := tempStore(t)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	ev := types.ChannelEvent{Type: types.EventTypeRequestStaff, SenderID: "pat1", SenderRole: types.RolePatient}
	if err := s.Record(ev, time.Now()); err != ErrStoreClosed {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
}

func TestStore_ShutdownUnblocksQueuedWrites(t *testing.T) {
	// No writer goroutine: the op stays queued and only the shutdown signal
	// can release the caller.
	s := &Store{
		writeCh:  make(chan writeOp, 1),
		shutdown: make(chan struct{}),
	}

	done := make(chan error, 1)
	go func() {
		done <- s.executeWrite(func(*sql.DB) error { return nil })
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(s.writeCh) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("write op never queued")
		}
		time.Sleep(time.Millisecond)
	}
	close(s.shutdown)

	select {
	case err := <-done:
		if err != ErrStoreClosed {
			t.Errorf("expected ErrStoreClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued write still blocked after shutdown")
	}
}

func TestStore_HealthCheck(t *testing.T) {
	s := tempStore(t)
	if err := s.HealthCheck(); err != nil {
		t.Errorf("HealthCheck on open store failed: %v", err)
	}
}
