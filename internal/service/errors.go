package service

import (
	"errors"
	"fmt"

	"github.com/rchat/internal/event"
)

// Kind discriminates service failures so callers branch on the kind of
// failure instead of catching a generic error: validation and authorization
// denials are expected control flow, internal errors are faults.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindPermission
	KindNotFound
	KindInternal
)

// Error carries the failure kind and the error-event status to report to
// the initiating connection.
type Error struct {
	Kind   Kind
	Status event.ErrorStatus
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a typed service error.
func E(kind Kind, status event.ErrorStatus, msg string) *Error {
	return &Error{Kind: kind, Status: status, Msg: msg}
}

// Internal wraps an unexpected storage/I-O failure.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Status: event.StatusServerError, Msg: msg, Err: err}
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// StatusOf returns the error-event status for err, defaulting to
// server_error for untyped errors.
func StatusOf(err error) event.ErrorStatus {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return event.StatusServerError
}
