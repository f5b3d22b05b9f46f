// Package domain holds the vocabulary shared by every mesh service: the
// principal model, the typed error taxonomy carried across the bus, and the
// record types exchanged between domains.
package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain failure. Kinds travel across the bus in the
// response envelope so the calling side can rebuild the same error.
type ErrorKind string

const (
	// ErrAuthorization covers missing principals and ownership violations.
	ErrAuthorization ErrorKind = "authorization"
	// ErrNotFound means a referenced uid does not exist.
	ErrNotFound ErrorKind = "not_found"
	// ErrAlreadyExists means a create collided on uid.
	ErrAlreadyExists ErrorKind = "already_exists"
	// ErrValidation covers malformed entities and graphs.
	ErrValidation ErrorKind = "validation"
	// ErrTransport covers publish failures and call timeouts.
	ErrTransport ErrorKind = "transport"
	// ErrTypeMismatch means a response arrived with an unexpected kind. It
	// indicates deployment skew, not a business failure.
	ErrTypeMismatch ErrorKind = "type_mismatch"
	// ErrInternal is the fallback for unclassified failures.
	ErrInternal ErrorKind = "internal"
)

// Error is the domain error type surfaced by services and rebuilt from
// response envelopes on the calling side.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is lets errors.Is match two domain errors by kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Unauthorizedf(format string, args ...any) *Error {
	return newError(ErrAuthorization, format, args...)
}

func NotFoundf(format string, args ...any) *Error {
	return newError(ErrNotFound, format, args...)
}

func AlreadyExistsf(format string, args ...any) *Error {
	return newError(ErrAlreadyExists, format, args...)
}

func Validationf(format string, args ...any) *Error {
	return newError(ErrValidation, format, args...)
}

func Transportf(format string, args ...any) *Error {
	return newError(ErrTransport, format, args...)
}

func TypeMismatchf(format string, args ...any) *Error {
	return newError(ErrTypeMismatch, format, args...)
}

// KindOf extracts the kind from err, defaulting to ErrInternal for plain
// errors so every failure can cross the bus.
func KindOf(err error) ErrorKind {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Kind
	}
	return ErrInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var derr *Error
	return errors.As(err, &derr) && derr.Kind == kind
}

// FromWire rebuilds a domain error from the kind and message carried in a
// failed response envelope. Unknown kinds map to ErrInternal.
func FromWire(kind, message string) *Error {
	switch ErrorKind(kind) {
	case ErrAuthorization, ErrNotFound, ErrAlreadyExists, ErrValidation, ErrTransport, ErrTypeMismatch:
		return &Error{Kind: ErrorKind(kind), Message: message}
	default:
		return &Error{Kind: ErrInternal, Message: message}
	}
}
