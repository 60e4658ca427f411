package schedule

import "errors"

// Sentinel errors for the schedule service layer.
var (
	ErrNotFound      = errors.New("schedule not found")
	ErrMissingOwner  = errors.New("schedule has no campaign or client")
	ErrStaleFireTime = errors.New("fire time is not after last_fired_at")
)
