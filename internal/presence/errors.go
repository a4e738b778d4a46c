package presence

import "errors"

var (
	ErrUnknownRequest = errors.New("no pending request for that patient")
)
