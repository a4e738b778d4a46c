package relay

import "errors"

var (
	ErrConnClosed   = errors.New("relay connection closed")
	ErrWriteTimeout = errors.New("relay write timed out")
	ErrStoreClosed  = errors.New("event store closed")
)
