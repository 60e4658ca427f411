package engagement

import "errors"

// ErrEmptyEventSet means a contact has no events and therefore no derivable
// status. Callers should render it as "no data".
var ErrEmptyEventSet = errors.New("no events for contact")
