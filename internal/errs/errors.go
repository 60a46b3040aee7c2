// Package errs defines the core's closed error taxonomy.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a CoreError for caller-side handling.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindTransient  Kind = "transient"
	KindPermanent  Kind = "permanent"
	KindTimeout    Kind = "timeout"
	KindFatal      Kind = "fatal"
)

// CoreError wraps an underlying error with a Kind so callers can branch
// on failure category without string-matching messages.
type CoreError struct {
	kind    Kind
	msg     string
	wrapped error
}

func (e *CoreError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.wrapped)
	}
	return e.msg
}

func (e *CoreError) Unwrap() error { return e.wrapped }

// Kind returns the error's category.
func (e *CoreError) Kind() Kind { return e.kind }

func newErr(k Kind, msg string, wrapped error) *CoreError {
	return &CoreError{kind: k, msg: msg, wrapped: wrapped}
}

func NewValidationError(msg string) *CoreError           { return newErr(KindValidation, msg, nil) }
func NewNotFoundError(msg string) *CoreError              { return newErr(KindNotFound, msg, nil) }
func NewConflictError(msg string) *CoreError               { return newErr(KindConflict, msg, nil) }
func NewTimeoutError(msg string) *CoreError                 { return newErr(KindTimeout, msg, nil) }
func NewFatalError(msg string, wrapped error) *CoreError    { return newErr(KindFatal, msg, wrapped) }
func NewTransientError(msg string, wrapped error) *CoreError { return newErr(KindTransient, msg, wrapped) }
func NewPermanentError(msg string, wrapped error) *CoreError { return newErr(KindPermanent, msg, wrapped) }

// Is reports whether err is a CoreError of the given kind.
func Is(err error, k Kind) bool {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.kind == k
	}
	return false
}

// KindOf extracts the Kind of err, or "" if err is not a CoreError.
func KindOf(err error) Kind {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.kind
	}
	return ""
}
