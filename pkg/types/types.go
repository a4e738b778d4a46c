package types

import (
	"time"
)

// Event type values on the channel. These are the compatibility surface with
// the backend messaging service and must not be renamed.
const (
	EventTypeChat                = "CHAT"
	EventTypeTyping              = "TYPING"
	EventTypeStaffAvailable      = "STAFF_AVAILABLE"
	EventTypeStaffUnavailable    = "STAFF_UNAVAILABLE"
	EventTypePatientConnected    = "PATIENT_CONNECTED"
	EventTypePatientDisconnected = "PATIENT_DISCONNECTED"
	EventTypeRequestStaff        = "REQUEST_STAFF"
	EventTypeEndSession          = "END_SESSION"
)

// Role identifies which side of a chat session a user belongs to.
// Parsed exactly once at the identity boundary; downstream code compares
// Role values, never raw strings.
type Role string

const (
	RolePatient Role = "PATIENT"
	RoleStaff   Role = "STAFF"
	RoleDoctor  Role = "DOCTOR"
)

// StaffSide reports whether the role sits on the staff side of a session.
// Doctors operate the staff console, never the patient widget.
func (r Role) StaffSide() bool {
	return r == RoleStaff || r == RoleDoctor
}

// Valid reports whether the role is one of the three known values.
func (r Role) Valid() bool {
	return r == RolePatient || r == RoleStaff || r == RoleDoctor
}

// Identity is the chat identity registered on the channel. Established once
// per connection and immutable for the connection's lifetime.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
}

// ChannelEvent is the wire message exchanged over the channel. Field names
// are part of the compatibility surface. Optional fields are omitted on the
// wire when empty.
type ChannelEvent struct {
	Type            string `json:"type"`
	SenderID        string `json:"senderId"`
	SenderName      string `json:"senderName,omitempty"`
	SenderRole      Role   `json:"senderRole,omitempty"`
	RecipientID     string `json:"recipientId,omitempty"`
	Content         string `json:"content,omitempty"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

// Message is a client-rendered chat message derived from a CHAT event or
// created locally on send. Never mutated after creation; the containing list
// is append-only and discarded when the session ends.
type Message struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Timestamp  time.Time `json:"timestamp"`
	IsOwn      bool      `json:"isOwn"`
}

// PendingRequest is a patient's outstanding request for staff assistance,
// tracked on the staff console until accepted or withdrawn.
type PendingRequest struct {
	PatientID   string    `json:"patientId"`
	PatientName string    `json:"patientName"`
	Timestamp   time.Time `json:"timestamp"`
}

// Session is the in-memory pairing of one patient and one staff member.
// Not persisted; destroyed on END_SESSION or when the surface closes.
type Session struct {
	PatientID string    `json:"patientId"`
	StaffID   string    `json:"staffId"`
	StartedAt time.Time `json:"startedAt"`
}
