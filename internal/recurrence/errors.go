package recurrence

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for rule validation and evaluation. Match with errors.Is.
var (
	ErrInvalidRule     = errors.New("invalid recurrence rule")
	ErrUnknownTimezone = errors.New("unknown timezone")
	ErrInvalidCron     = errors.New("invalid cron expression")
	ErrEmptySelection  = errors.New("empty selection")
)

// Field error codes.
const (
	CodeRequired        = "required"
	CodeInvalid         = "invalid"
	CodeOutOfRange      = "out_of_range"
	CodeEmptySelection  = "empty_selection"
	CodeUnknownTimezone = "unknown_timezone"
	CodeInvalidCron     = "invalid_cron"
)

// FieldError describes one rejected field of a rule.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

func (e FieldError) Unwrap() error { return e.Err }

// ValidationError collects every field-level violation of a candidate rule.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Error()
	}
	return "invalid recurrence rule: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the typed cause of each field error.
func (e *ValidationError) Unwrap() []error {
	out := make([]error, 0, len(e.Errors))
	for _, fe := range e.Errors {
		if fe.Err != nil {
			out = append(out, fe.Err)
		}
	}
	return out
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidRule }

// Field returns the first error recorded for field, if any.
func (e *ValidationError) Field(field string) (FieldError, bool) {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return fe, true
		}
	}
	return FieldError{}, false
}

func (e *ValidationError) add(field, code, msg string, cause error) {
	e.Errors = append(e.Errors, FieldError{Field: field, Code: code, Message: msg, Err: cause})
}

// UnknownTimezoneError reports a zone identifier missing from the zone database.
type UnknownTimezoneError struct {
	Name string
	Err  error
}

func (e *UnknownTimezoneError) Error() string {
	return fmt.Sprintf("unknown timezone %q", e.Name)
}

func (e *UnknownTimezoneError) Unwrap() error { return e.Err }

func (e *UnknownTimezoneError) Is(target error) bool { return target == ErrUnknownTimezone }

// InvalidCronError reports a malformed cron expression.
type InvalidCronError struct {
	Expression string
	Field      string // empty when the field count is wrong
	Reason     string
}

func (e *InvalidCronError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("cron %q: %s", e.Expression, e.Reason)
	}
	return fmt.Sprintf("cron %q: %s field: %s", e.Expression, e.Field, e.Reason)
}

func (e *InvalidCronError) Is(target error) bool { return target == ErrInvalidCron }

// EmptySelectionError reports a set-valued field with nothing selected.
type EmptySelectionError struct {
	Field string
}

func (e *EmptySelectionError) Error() string {
	return e.Field + " must select at least one value"
}

func (e *EmptySelectionError) Is(target error) bool { return target == ErrEmptySelection }
