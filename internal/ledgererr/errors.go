// Package ledgererr defines the single error taxonomy shared by every
// component of the ingestion core. Repositories, the storage adapter, the
// queue, and the worker runtime all convert lower-level errors (database/sql,
// os, http) into one of these kinds at the boundary, instead of returning
// ad-hoc sentinel errors per package.
package ledgererr

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed and what the caller should do
// about it.
type Kind int

const (
	// KindNotFound means a row or file was absent. Repositories typically
	// return (nil, nil) for lookups instead of this kind; it is reserved
	// for operations that must locate something to proceed (e.g. update).
	KindNotFound Kind = iota
	// KindConflict means a uniqueness or state-machine constraint was
	// violated (duplicate file_path, duplicate playlist position).
	KindConflict
	// KindInvalidTransition means a status change would violate the
	// monotone job-status state machine.
	KindInvalidTransition
	// KindTransient means the failure is likely to succeed on retry
	// (network blip, mount briefly unreachable, auth refresh needed).
	KindTransient
	// KindPermanent means retrying will not help (bad URL, unsupported
	// format, disk full at destination).
	KindPermanent
	// KindStorage means the ledger's underlying engine failed; callers
	// should log and back off rather than treat it as business logic.
	KindStorage
	// KindFatal means a process-level condition the worker cannot
	// recover from (e.g. the ledger file itself is missing).
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindStorage:
		return "storage"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the single error type every component returns across package
// boundaries. It wraps an underlying cause while carrying a Kind that the
// worker runtime and use cases can classify on without string matching.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind wrapping cause. If cause is nil,
// Wrap returns nil so callers can write `return ledgererr.Wrap(...)`
// directly against a possibly-nil error without an extra branch.
func Wrap(kind Kind, message string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NotFound builds a KindNotFound error.
func NotFound(message string) *Error { return New(KindNotFound, message) }

// Conflict builds a KindConflict error.
func Conflict(message string) *Error { return New(KindConflict, message) }

// InvalidTransition builds a KindInvalidTransition error.
func InvalidTransition(message string) *Error { return New(KindInvalidTransition, message) }

// Transient wraps cause as a KindTransient error.
func Transient(message string, cause error) error { return Wrap(KindTransient, message, cause) }

// Permanent wraps cause as a KindPermanent error.
func Permanent(message string, cause error) error { return Wrap(KindPermanent, message, cause) }

// Storage wraps cause as a KindStorage error.
func Storage(message string, cause error) error { return Wrap(KindStorage, message, cause) }

// Fatal wraps cause as a KindFatal error.
func Fatal(message string, cause error) error { return Wrap(KindFatal, message, cause) }

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// As is a small convenience wrapper over errors.As for *Error.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
