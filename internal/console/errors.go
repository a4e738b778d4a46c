package console

import "errors"

var (
	ErrNotStaffRole = errors.New("console requires the STAFF or DOCTOR role")
)
