package widget

import "errors"

var (
	ErrNotPatientRole = errors.New("widget requires the PATIENT role")
)
