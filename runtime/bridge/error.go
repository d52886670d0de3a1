// Package bridge connects the interpreter's variable environment to an
// embedded general-purpose expression runtime. Contexts persist across calls
// within one processing run so that compiled guest programs amortize their
// startup cost.
package bridge

// ErrorPrefix is prepended to every guest-side failure so callers can detect
// the failure class from the message alone.
const ErrorPrefix = "foreign runtime: "

// Error wraps any guest-side compile or runtime failure.
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return ErrorPrefix + e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func wrapError(err error) *Error {
	return &Error{Message: err.Error(), Cause: err}
}
