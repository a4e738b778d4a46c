package types

import "errors"

var (
	ErrUnknownEventType = errors.New("unknown channel event type")
	ErrMissingSender    = errors.New("event missing senderId")
	ErrMissingRecipient = errors.New("addressed event missing recipientId")
	ErrEmptyContent     = errors.New("chat event has empty content")
	ErrContentTooLarge  = errors.New("content exceeds 64KB limit")
	ErrMissingUserID    = errors.New("identity missing userId")
	ErrInvalidRole      = errors.New("role must be PATIENT, STAFF or DOCTOR")
)
