// Package dispatcherr defines the error taxonomy shared by every service in
// the dispatch core. Every user-facing failure is one of a fixed set of
// codes so callers can branch on Code() instead of string-matching.
package dispatcherr

import (
	"errors"
	"fmt"
)

// Code is one of the fixed taxonomy values a caller can branch on.
type Code string

const (
	BadRequest        Code = "BAD_REQUEST"
	Unauthorized      Code = "UNAUTHORIZED"
	Forbidden         Code = "FORBIDDEN"
	NotFound          Code = "NOT_FOUND"
	Conflict          Code = "CONFLICT"
	TooManyRequests   Code = "TOO_MANY_REQUESTS"
	ServiceUnavailable Code = "SERVICE_UNAVAILABLE"
)

// Error is a typed, taxonomy-coded failure. CurrentState carries the
// observed state of the target entity for conflicts where the caller
// benefits from it without a follow-up read (e.g. acceptOffer losing the
// race against a sibling acceptance).
type Error struct {
	Code         Code
	Message      string
	CurrentState string
	Err          error
}

func (e *Error) Error() string {
	if e.CurrentState != "" {
		return fmt.Sprintf("%s: %s (current state: %s)", e.Code, e.Message, e.CurrentState)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// As reports whether err is (or wraps) a *Error and, if so, returns it.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithState attaches current-state diagnostic information to a CONFLICT
// (or any) error, matching §7's "response SHOULD include the current offer
// status" requirement.
func (e *Error) WithState(state string) *Error {
	e.CurrentState = state
	return e
}
