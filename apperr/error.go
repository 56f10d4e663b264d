// Package apperr defines the error taxonomy from spec.md §7 and the
// single mapping from taxonomy kind to HTTP status. Controllers use it
// when a service returns an *Error (controllers.respondAppErr and
// MessageController.Send); their other error branches still call
// controllers.RespondError with a literal status.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	Validation Kind = "validation"
	Authn      Kind = "authn"
	Authz      Kind = "authz"
	NotFound   Kind = "not_found"
	Conflict   Kind = "conflict"
	Provider   Kind = "provider"
	Transient  Kind = "transient"
	Fatal      Kind = "fatal"
)

// Error carries enough to render a {message, details?} JSON body and to
// decide job-retry policy (Transient and Provider retry; Validation and
// Conflict are terminal).
type Error struct {
	Kind    Kind
	Message string
	Details any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func WithDetails(kind Kind, message string, details any) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// As extracts the *Error from err, if there is one, the way
// controllers map an error into an HTTP response.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Status maps a Kind to its HTTP status, per spec.md §7's literal
// kind -> status table.
func Status(kind Kind) int {
	switch kind {
	case Validation:
		return http.StatusBadRequest
	case Authn:
		return http.StatusUnauthorized
	case Authz:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Provider:
		return http.StatusBadGateway
	case Transient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a worker attempt error should trigger a job
// retry, per spec.md §7's propagation policy: Transient and Provider
// retry; everything else (Validation, Conflict, Authn/Authz, NotFound,
// Fatal) is terminal.
func Retryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == Transient || e.Kind == Provider
	}
	// an un-typed error from a library call (e.g. a driver timeout) is
	// treated as transient rather than silently swallowed.
	return true
}
