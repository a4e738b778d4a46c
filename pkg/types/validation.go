package types

import (
	"strings"
)

// MaxContentBytes caps chat message content size on the wire.
const MaxContentBytes = 64 * 1024

// ParseRole normalizes a raw role string (e.g. roleDto.name from the user
// endpoint) into a Role. Comparison is case-insensitive; unknown values fail.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RolePatient:
		return RolePatient, nil
	case RoleStaff:
		return RoleStaff, nil
	case RoleDoctor:
		return RoleDoctor, nil
	default:
		return "", ErrInvalidRole
	}
}

// KnownEventType reports whether t is one of the eight channel event types.
func KnownEventType(t string) bool {
	switch t {
	case EventTypeChat, EventTypeTyping,
		EventTypeStaffAvailable, EventTypeStaffUnavailable,
		EventTypePatientConnected, EventTypePatientDisconnected,
		EventTypeRequestStaff, EventTypeEndSession:
		return true
	}
	return false
}

// Addressed reports whether events of type t carry a recipientId. CHAT and
// TYPING are point-to-point once a session is established; everything else is
// a presence or session notification without a fixed counterpart.
func Addressed(t string) bool {
	return t == EventTypeChat || t == EventTypeTyping
}

// Validate checks that an event is well-formed enough to put on the wire.
// Every event carries senderId; addressed events carry recipientId.
func (e *ChannelEvent) Validate() error {
	if !KnownEventType(e.Type) {
		return ErrUnknownEventType
	}
	if e.SenderID == "" {
		return ErrMissingSender
	}
	if Addressed(e.Type) && e.RecipientID == "" {
		return ErrMissingRecipient
	}
	if e.Type == EventTypeChat && e.Content == "" {
		return ErrEmptyContent
	}
	if len(e.Content) > MaxContentBytes {
		return ErrContentTooLarge
	}
	return nil
}

// Validate checks an identity before it is registered on the channel.
func (id Identity) Validate() error {
	if id.UserID == "" {
		return ErrMissingUserID
	}
	if !id.Role.Valid() {
		return ErrInvalidRole
	}
	return nil
}
