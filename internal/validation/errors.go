// Package validation normalizes and validates caller input for the booking tools:
// phone numbers, calendar dates, clock times and tool argument shapes.
package validation

import "errors"

// ErrInvalidPhoneFormat is wrapped by the Error returned from NormalizePhone.
var ErrInvalidPhoneFormat = errors.New("invalid phone format")

// Error describes malformed or missing caller input. Field holds the JSON path
// of the offending argument when known.
type Error struct {
	Message string
	Field   string
	err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.err
}

func newError(field, message string) *Error {
	return &Error{Message: message, Field: field}
}
