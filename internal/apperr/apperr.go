// Package apperr defines the typed error kinds used across the broker so
// the HTTP and webhook boundaries can map them to the right status code or
// user-facing message without inspecting error strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories named in the error handling design.
type Kind string

const (
	NotFound            Kind = "not_found"
	Unauthorized         Kind = "unauthorized"
	Validation           Kind = "validation"
	InsufficientBalance  Kind = "insufficient_balance"
	Upstream             Kind = "upstream"
	Conflict             Kind = "conflict"
	Internal             Kind = "internal"
)

// Error wraps an underlying cause with a Kind so callers can branch on it
// with errors.As, and a human-readable Message safe to show to a user.
type Error struct {
	Kind    Kind
	Message string
	Retcode int // set only for Kind == Upstream
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func newErr(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, cause: cause}
}

func NotFoundf(format string, args ...any) *Error {
	return newErr(NotFound, fmt.Sprintf(format, args...), nil)
}

func Unauthorizedf(format string, args ...any) *Error {
	return newErr(Unauthorized, fmt.Sprintf(format, args...), nil)
}

func Validationf(format string, args ...any) *Error {
	return newErr(Validation, fmt.Sprintf(format, args...), nil)
}

func InsufficientBalancef(format string, args ...any) *Error {
	return newErr(InsufficientBalance, fmt.Sprintf(format, args...), nil)
}

func Conflictf(format string, args ...any) *Error {
	return newErr(Conflict, fmt.Sprintf(format, args...), nil)
}

func Internalf(cause error, format string, args ...any) *Error {
	return newErr(Internal, fmt.Sprintf(format, args...), cause)
}

// Upstreamf builds an error for a failed upstream-venue call, carrying the
// MT5 retcode so the caller can decide whether it is retryable.
func Upstreamf(retcode int, format string, args ...any) *Error {
	e := newErr(Upstream, fmt.Sprintf(format, args...), nil)
	e.Retcode = retcode
	return e
}

// KindOf extracts the Kind from err, defaulting to Internal if err is not
// (or does not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
