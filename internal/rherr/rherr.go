// Package rherr defines the sum-typed error taxonomy shared by every
// backend, source and sink in the module.
package rherr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the error categories every component agrees on.
type Kind int

const (
	// NotFound means the entry or id is missing in the store.
	NotFound Kind = iota
	// NoMoreData means an iterator is exhausted.
	NoMoreData
	// Again means the operation is retryable (transient transaction, bulk executing).
	Again
	// NotConnected means the driver cannot reach the server.
	NotConnected
	// NotSupported means the option or feature is not implemented.
	NotSupported
	// Invalid means a malformed filter/AST/URI.
	Invalid
	// NoBufferSpace means a ringr is full; caller recovers via recursion.
	NoBufferSpace
	// Overflow means a buffer was too small for info/getxattr; caller grows and retries.
	Overflow
	// NoMemory means an allocation failed; fatal to the current operation.
	NoMemory
	// Stale means the inode moved or vanished during a walk.
	Stale
	// BackendError is a driver-specific error; the message carries detail.
	BackendError
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not-found"
	case NoMoreData:
		return "no-more-data"
	case Again:
		return "again"
	case NotConnected:
		return "not-connected"
	case NotSupported:
		return "not-supported"
	case Invalid:
		return "invalid"
	case NoBufferSpace:
		return "no-buffer-space"
	case Overflow:
		return "overflow"
	case NoMemory:
		return "no-memory"
	case Stale:
		return "stale"
	case BackendError:
		return "backend-error"
	default:
		return "unknown"
	}
}

// Error is the single error type propagated across backend boundaries.
// Each component classifies what happened into one of the Kinds above
// before returning: a numeric code plus an optional detail message,
// and optionally the underlying error (Errno), reachable via Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Errno   error // underlying syscall/driver error, if any
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Errno != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Errno)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Errno }

// New builds an Error of the given Kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error as the given Kind, keeping it
// reachable via errors.Unwrap/errors.As. The stored Errno carries a
// stack trace (github.com/pkg/errors) captured at the wrap site, since
// driver/syscall errors otherwise arrive with no caller context once
// they cross a backend boundary.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Errno: errors.WithStack(err)}
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
