package presence

import (
	"sync"
	"time"

	"clinichat/pkg/types"
)

// Roster is the staff side of the matching engine: the self-reported
// availability flag, the queue of pending patient requests, and the single
// active patient in view. Availability and the active session are independent
// axes; toggling availability never creates or destroys a session.
type Roster struct {
	mu         sync.Mutex
	available  bool
	pending    []types.PendingRequest
	activeID   string
	activeName string
	startedAt  time.Time
}

// NewRoster starts UNAVAILABLE with no pending requests.
func NewRoster() *Roster {
	return &Roster{}
}

// SetAvailable toggles availability. Returns false when already in the
// requested state so callers can skip redundant presence broadcasts.
func (r *Roster) SetAvailable(available bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.available == available {
		return false
	}
	r.available = available
	return true
}

// Available reports the current availability flag.
func (r *Roster) Available() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available
}

// AddPending queues a patient request. A patient already pending or already
// active is not queued again.
func (r *Roster) AddPending(patientID, patientName string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.activeID == patientID {
		return false
	}
	for _, req := range r.pending {
		if req.PatientID == patientID {
			return false
		}
	}
	r.pending = append(r.pending, types.PendingRequest{
		PatientID:   patientID,
		PatientName: patientName,
		Timestamp:   now,
	})
	return true
}

// Pending returns a copy of the queued requests in arrival order.
func (r *Roster) Pending() []types.PendingRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.PendingRequest, len(r.pending))
	copy(out, r.pending)
	return out
}

// Accept removes the request from the pending list and makes that patient the
// active one. The previous active patient, if any, is displaced; the caller
// clears the message thread.
func (r *Roster) Accept(patientID string, now time.Time) (types.PendingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, req := range r.pending {
		if req.PatientID == patientID {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			r.activeID = req.PatientID
			r.activeName = req.PatientName
			r.startedAt = now
			return req, nil
		}
	}
	return types.PendingRequest{}, ErrUnknownRequest
}

// Active returns the active patient, if any.
func (r *Roster) Active() (id, name string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID, r.activeName, r.activeID != ""
}

// ActiveIs reports whether patientID is the active patient.
func (r *Roster) ActiveIs(patientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID != "" && r.activeID == patientID
}

// Session returns the active pairing for the given staff member.
func (r *Roster) Session(staffID string) (types.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeID == "" {
		return types.Session{}, false
	}
	return types.Session{PatientID: r.activeID, StaffID: staffID, StartedAt: r.startedAt}, true
}

// DropPatient applies PATIENT_DISCONNECTED: the active patient clears the
// active session, a merely pending patient is removed from the queue, and an
// unknown patient is ignored.
func (r *Roster) DropPatient(patientID string) (wasActive bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.activeID == patientID {
		r.activeID = ""
		r.activeName = ""
		r.startedAt = time.Time{}
		return true
	}
	for i, req := range r.pending {
		if req.PatientID == patientID {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			break
		}
	}
	return false
}

// EndActive clears the active session, leaving the pending queue untouched.
func (r *Roster) EndActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeID == "" {
		return false
	}
	r.activeID = ""
	r.activeName = ""
	r.startedAt = time.Time{}
	return true
}
