package analytics

import "errors"

// Sentinel errors for the analytics service layer.
var (
	ErrNotFound     = errors.New("no events found")
	ErrInvalidEvent = errors.New("invalid email event")
)
