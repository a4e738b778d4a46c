package presence

import (
	"testing"
	"time"
)

func TestRoster_AvailabilityToggle(t *testing.T) {
	r := NewRoster()
	if r.Available() {
		t.Error("roster should start UNAVAILABLE")
	}

	if !r.SetAvailable(true) {
		t.Error("first toggle should report a change")
	}
	if r.SetAvailable(true) {
		t.Error("redundant toggle should report no change")
	}
	if !r.Available() {
		t.Error("availability flag lost")
	}
	if !r.SetAvailable(false) {
		t.Error("toggle back should report a change")
	}
}

func TestRoster_PendingQueue(t *testing.T) {
	r := NewRoster()
	now := time.Now()

	if !r.AddPending("pat1", "Jane", now) {
		t.Fatal("first request should queue")
	}
	if r.AddPending("pat1", "Jane", now) {
		t.Error("duplicate request for same patient should not queue twice")
	}
	r.AddPending("pat2", "John", now)

	pending := r.Pending()
	if len(pending) != 2 || pending[0].PatientID != "pat1" || pending[1].PatientID != "pat2" {
		t.Errorf("unexpected pending queue: %+v", pending)
	}
}

func TestRoster_AcceptBindsActivePatient(t *testing.T) {
	r := NewRoster()
	now := time.Now()
	r.AddPending("pat1", "Jane", now)
	r.AddPending("pat2", "John", now)

	req, err := r.Accept("pat1", now)
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if req.PatientID != "pat1" || req.PatientName != "Jane" {
		t.Errorf("accepted wrong request: %+v", req)
	}

	id, name, ok := r.Active()
	if !ok || id != "pat1" || name != "Jane" {
		t.Errorf("active patient not bound: %s/%s", id, name)
	}

	pending := r.Pending()
	if len(pending) != 1 || pending[0].PatientID != "pat2" {
		t.Errorf("accepted request should leave the queue: %+v", pending)
	}

	sess, ok := r.Session("staff1")
	if !ok || sess.PatientID != "pat1" || sess.StaffID != "staff1" {
		t.Errorf("session not derivable: %+v", sess)
	}
}

func TestRoster_AcceptUnknownRequest(t *testing.T) {
	r := NewRoster()
	if _, err := r.Accept("ghost", time.Now()); err != ErrUnknownRequest {
		t.Errorf("expected ErrUnknownRequest, got %v", err)
	}
}

func TestRoster_ActivePatientNotRequeued(t *testing.T) {
	r := NewRoster()
	now := time.Now()
	r.AddPending("pat1", "Jane", now)
	if _, err := r.Accept("pat1", now); err != nil {
		t.Fatal(err)
	}

	if r.AddPending("pat1", "Jane", now) {
		t.Error("active patient must not re-enter the pending queue")
	}
}

func TestRoster_DropPatientSemantics(t *testing.T) {
	r := NewRoster()
	now := time.Now()
	r.AddPending("pat1", "Jane", now)
	r.AddPending("pat2", "John", now)
	if _, err := r.Accept("pat1", now); err != nil {
		t.Fatal(err)
	}

	// Disconnect of the active patient clears the active session.
	if !r.DropPatient("pat1") {
		t.Error("dropping the active patient should report wasActive")
	}
	if _, _, ok := r.Active(); ok {
		t.Error("active session should be cleared")
	}

	// Disconnect of a merely pending patient removes only its entry.
	if r.DropPatient("pat2") {
		t.Error("pending patient is not the active one")
	}
	if len(r.Pending()) != 0 {
		t.Errorf("pending entry should be removed: %+v", r.Pending())
	}

	// Unknown patients are ignored.
	if r.DropPatient("ghost") {
		t.Error("unknown patient reported as active")
	}
}

func TestRoster_EndActiveLeavesPendingIntact(t *testing.T) {
	r := NewRoster()
	now := time.Now()
	r.AddPending("pat1", "Jane", now)
	r.AddPending("pat2", "John", now)
	if _, err := r.Accept("pat1", now); err != nil {
		t.Fatal(err)
	}

	if !r.EndActive() {
		t.Error("EndActive with an active patient should report true")
	}
	if r.EndActive() {
		t.Error("EndActive without an active patient should report false")
	}
	if len(r.Pending()) != 1 {
		t.Errorf("pending queue should survive session end: %+v", r.Pending())
	}
}
