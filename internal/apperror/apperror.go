package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
)

// Kind classifies an error for the HTTP boundary
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindUnauthenticated
	KindUnauthorized
	KindConflict
	KindValidation
	KindPrecondition
	KindInvariant
	// KindExternal is a failure of an outside system the client is told
	// about, such as the mail server.
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation_failed"
	case KindPrecondition:
		return "precondition_failed"
	case KindInvariant:
		return "invariant_violation"
	case KindExternal:
		return "external_failure"
	default:
		return "internal"
	}
}

// StatusCode returns the HTTP status used to render errors of this kind
func (k Kind) StatusCode() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindUnauthorized:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindValidation, KindPrecondition:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Operational reports whether errors of this kind are expected outcomes of a
// request rather than bugs or infrastructure failures.
func (k Kind) Operational() bool {
	return k != KindInternal && k != KindInvariant
}

// FieldError describes a single invalid input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is a domain error carrying its kind, a client-facing message and an
// optional underlying cause. Non-operational errors built with New or Wrap
// record the stack of their creation site.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Err     error
	Stack   string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status for the error
func (e *Error) StatusCode() int {
	return e.Kind.StatusCode()
}

// Operational reports whether the error is an expected request outcome
func (e *Error) Operational() bool {
	return e.Kind.Operational()
}

func New(kind Kind, message string) *Error {
	return Wrap(kind, message, nil)
}

// Wrap attaches a cause to a new error of the given kind
func Wrap(kind Kind, message string, err error) *Error {
	e := &Error{Kind: kind, Message: message, Err: err}
	if !kind.Operational() {
		e.Stack = string(debug.Stack())
	}
	return e
}

func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

func Unauthenticated(message string) *Error {
	return New(KindUnauthenticated, message)
}

func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message)
}

func Conflict(message string) *Error {
	return New(KindConflict, message)
}

func Precondition(message string) *Error {
	return New(KindPrecondition, message)
}

func Invariant(message string) *Error {
	return New(KindInvariant, message)
}

func Internal(message string, err error) *Error {
	return Wrap(KindInternal, message, err)
}

// External reports a failed outside system with a message safe to show
func External(message string, err error) *Error {
	return Wrap(KindExternal, message, err)
}

// Validation builds a validation error with optional field details
func Validation(message string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// As extracts an *Error from the chain
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
