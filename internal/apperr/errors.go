// Package apperr defines the error kinds shared by the store, service and
// HTTP layers. Callers classify errors with errors.Is against the sentinel
// kinds; the message of an *Error is safe to show to clients.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrStorage      = errors.New("storage failure")
)

// Error is a classified error with a client-facing message and an optional
// internal cause.
type Error struct {
	Kind  error
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil && e.Kind == ErrStorage {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

// Is reports whether target is the kind of e.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...any) error { return newf(ErrValidation, format, args...) }
func NotFoundf(format string, args ...any) error   { return newf(ErrNotFound, format, args...) }
func Conflictf(format string, args ...any) error   { return newf(ErrConflict, format, args...) }
func Unauthorizedf(format string, args ...any) error {
	return newf(ErrUnauthorized, format, args...)
}
func Forbiddenf(format string, args ...any) error { return newf(ErrForbidden, format, args...) }

// Storage wraps an unexpected storage failure. The cause is kept for logging
// and never shown to clients.
func Storage(op string, cause error) error {
	return &Error{Kind: ErrStorage, Msg: op, Cause: cause}
}

// Message returns the client-facing message for err. Unclassified errors and
// storage failures collapse to a generic message.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != ErrStorage {
		return e.Msg
	}
	return "internal server error"
}

// Kind returns the sentinel kind of err, or ErrStorage when err carries no
// classification.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrUnauthorized, ErrForbidden} {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrStorage
}
