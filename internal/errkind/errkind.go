// Package errkind classifies engine errors per the propagation policy in
// spec.md §7: Configuration errors are fatal, Access/TransientIO are
// demoted to warnings and the offending candidate is dropped, NotFound is
// expected and silent, RestoreConflict and Cancelled are surfaced to the
// caller. Modeled on the original httm's library::results::HttmError
// (_examples/original_source/src/library/results.rs), translated into
// Go's wrapped-error idiom instead of a boxed trait object.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories of spec.md §7.
type Kind int

const (
	// Configuration errors are fatal: cannot read the mount table, unknown
	// alias syntax, conflicting flags.
	Configuration Kind = iota
	// Access errors are recovered: permission denied enumerating a
	// privileged snapshot store. The resolver records a once-per-mount
	// diagnostic and continues.
	Access
	// NotFound means a candidate snapshot path is absent. Expected;
	// silently dropped.
	NotFound
	// TransientIO covers EIO and similar per-candidate failures. Logged as
	// a warning; the candidate is dropped, the stream continues.
	TransientIO
	// RestoreConflict means a restore's source and destination are
	// identity-equal under the active UniquenessLevel.
	RestoreConflict
	// Cancelled is raised when the cooperative cancellation flag trips
	// mid-operation. The partial stream produced up to that point remains
	// valid.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case Access:
		return "access"
	case NotFound:
		return "not-found"
	case TransientIO:
		return "transient-io"
	case RestoreConflict:
		return "restore-conflict"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with the kind that governs how the
// engine propagates it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err (which may be nil) with kind and an operation label.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err, or any error it wraps, is a *Error carrying
// kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Fatal reports whether a Kind must abort the process per spec.md §7's
// propagation policy (Configuration is fatal; controller operations
// promote RestoreConflict to failure; everything else is recoverable at
// the enumeration layer).
func (k Kind) Fatal() bool {
	return k == Configuration
}
