package channel

import "errors"

var (
	ErrNotConnected     = errors.New("channel is not connected")
	ErrIdentityMismatch = errors.New("channel already registered with a different identity")
	ErrManagerClosed    = errors.New("channel manager has been torn down")
)
