package presence

import (
	"sync"
)

// PatientState is the patient-side session state.
type PatientState string

const (
	StateIdle       PatientState = "IDLE"
	StateRequesting PatientState = "REQUESTING"
	StateMatched    PatientState = "MATCHED"
)

// Matcher is the patient side of the accept/assign handshake. It binds the
// patient to exactly one staff member per session: while REQUESTING the first
// responding staff identity wins and later distinct identities are ignored.
type Matcher struct {
	mu        sync.Mutex
	state     PatientState
	staffID   string
	staffName string
}

// NewMatcher starts in IDLE.
func NewMatcher() *Matcher {
	return &Matcher{state: StateIdle}
}

// State returns the current patient-side state.
func (m *Matcher) State() PatientState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Staff returns the matched staff identity, if any.
func (m *Matcher) Staff() (id, name string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.staffID, m.staffName, m.state == StateMatched
}

// Request moves IDLE to REQUESTING. Returns false when not in IDLE; the
// request action is disabled in every other state.
func (m *Matcher) Request() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return false
	}
	m.state = StateRequesting
	return true
}

// Offer presents a responding staff identity. While REQUESTING the first
// offer wins and moves the matcher to MATCHED; a repeat offer from the
// already-matched staff reports true without changing state, and any other
// identity is ignored for the session.
func (m *Matcher) Offer(staffID, staffName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateRequesting:
		m.state = StateMatched
		m.staffID = staffID
		m.staffName = staffName
		return true
	case StateMatched:
		return m.staffID == staffID
	default:
		return false
	}
}

// MatchedWith reports whether the session is currently bound to userID.
func (m *Matcher) MatchedWith(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateMatched && m.staffID == userID
}

// End resets to IDLE unconditionally. Local and remote session termination
// both land here; there is no resumable session state.
func (m *Matcher) End() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateIdle
	m.staffID = ""
	m.staffName = ""
}
