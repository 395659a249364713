// Package apperrors defines the domain error kinds returned by the core services.
package apperrors

import (
	"errors"
	"net/http"
)

// Kind is a machine-readable error category.
type Kind string

const (
	KindNotFound        Kind = "NOT_FOUND"
	KindPermission      Kind = "PERMISSION_DENIED"
	KindInvalidState    Kind = "INVALID_STATE"
	KindInvalidArgument Kind = "INVALID_ARGUMENT"
)

// Sentinels for errors.Is matching. Matching compares kinds only.
var (
	ErrNotFound        = &Error{Kind: KindNotFound, Message: "not found"}
	ErrPermission      = &Error{Kind: KindPermission, Message: "permission denied"}
	ErrInvalidState    = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument, Message: "invalid argument"}
)

// Error is the domain error type with structured metadata.
type Error struct {
	Kind     Kind              // Machine-readable error kind
	Message  string            // Internal message (for logs)
	Metadata map[string]string // Entity ids and offending fields for the caller to render
	Cause    error             // Wrapped underlying error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a domain error with a kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithMetadata creates a domain error carrying metadata.
func WithMetadata(kind Kind, message string, metadata map[string]string) *Error {
	return &Error{Kind: kind, Message: message, Metadata: metadata}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NotFound(entity, id string) *Error {
	return WithMetadata(KindNotFound, entity+" not found", map[string]string{
		"entity": entity,
		"id":     id,
	})
}

func Permission(entity, id, actorID string) *Error {
	return WithMetadata(KindPermission, "not allowed to modify "+entity, map[string]string{
		"entity":   entity,
		"id":       id,
		"actor_id": actorID,
	})
}

func InvalidState(entity, id, message string) *Error {
	return WithMetadata(KindInvalidState, message, map[string]string{
		"entity": entity,
		"id":     id,
	})
}

func InvalidArgument(field, message string) *Error {
	return WithMetadata(KindInvalidArgument, message, map[string]string{
		"field": field,
	})
}

// KindOf returns the kind of the first domain error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps a kind to its HTTP status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindPermission:
		return http.StatusForbidden
	case KindInvalidState:
		return http.StatusConflict
	case KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
