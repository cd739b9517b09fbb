package model

import (
	"fmt"

	errors "github.com/Laisky/errors/v2"
)

// Kind classifies errors surfaced by the cms services.
type Kind string

const (
	KindNotFound           Kind = "NOT_FOUND"
	KindForbidden          Kind = "FORBIDDEN"
	KindInvalidArgument    Kind = "INVALID_ARGUMENT"
	KindConflict           Kind = "CONFLICT"
	KindStorageUnavailable Kind = "STORAGE_UNAVAILABLE"
)

// Error is a kinded error. Validation and authorization kinds are never retried.
type Error struct {
	Kind    Kind
	Message string
}

// Error returns the error message.
func (e *Error) Error() string {
	if e == nil {
		return "cms error: <nil>"
	}
	if e.Message == "" {
		return fmt.Sprintf("cms error: %s", e.Kind)
	}
	return e.Message
}

// NewError constructs a kinded error.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf constructs a kinded error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from the error chain, or "" when none is set.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return ""
}

// IsNotFound reports whether err carries KindNotFound.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsForbidden reports whether err carries KindForbidden.
func IsForbidden(err error) bool {
	return KindOf(err) == KindForbidden
}

// IsInvalidArgument reports whether err carries KindInvalidArgument.
func IsInvalidArgument(err error) bool {
	return KindOf(err) == KindInvalidArgument
}

// IsConflict reports whether err carries KindConflict.
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}
