// Package errkind implements the error taxonomy described by the compiler's
// external-interfaces contract: every fallible operation returns a result
// whose root cause is one of a small closed set of kinds, so callers can
// distinguish a user-facing source error from an internal compiler bug
// without parsing message text.
package errkind

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the taxonomy entries. User-visible failures are
// KindAnalysisError and KindSyntaxError; everything else indicates a
// compiler bug.
type Kind int

const (
	KindInvalidParameter Kind = iota
	KindInvalidState
	KindInvalidRequest
	KindInvalidChange
	KindNotFound
	KindAlreadyExists
	KindOutOfBounds
	KindMemoryAllocFailure
	KindObjectAllocFailure
	KindIteratorEnd
	KindAnalysisError
	KindSyntaxError
	KindInternalError
)

func (k Kind) String() string {
	switch k {
	case KindInvalidParameter:
		return "invalid-parameter"
	case KindInvalidState:
		return "invalid-state"
	case KindInvalidRequest:
		return "invalid-request"
	case KindInvalidChange:
		return "invalid-change"
	case KindNotFound:
		return "not-found"
	case KindAlreadyExists:
		return "already-exists"
	case KindOutOfBounds:
		return "out-of-bounds"
	case KindMemoryAllocFailure:
		return "memory-alloc-failure"
	case KindObjectAllocFailure:
		return "object-alloc-failure"
	case KindIteratorEnd:
		return "iterator-end"
	case KindAnalysisError:
		return "analysis-error"
	case KindSyntaxError:
		return "syntax-error"
	case KindInternalError:
		return "internal-error"
	default:
		return "unknown-error-kind"
	}
}

// IsUserFault reports whether the kind reflects a fault in the source
// program being compiled, rather than a compiler bug.
func (k Kind) IsUserFault() bool {
	return k == KindAnalysisError || k == KindSyntaxError
}

// Error wraps a Kind with a message and, optionally, an underlying cause.
type Error struct {
	Kind Kind
	msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a new *Error of the given kind, wrapped with a stack trace by
// pkg/errors so callers upstream retain the original call site.
func New(kind Kind, format string, args ...interface{}) error {
	return errors.WithStack(&Error{Kind: kind, msg: fmt.Sprintf(format, args...)})
}

// Wrap attaches kind and message to an existing error, preserving it as the
// cause.
func Wrap(err error, kind Kind, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&Error{Kind: kind, msg: fmt.Sprintf(format, args...), Err: err})
}

// KindOf extracts the Kind from err, walking the cause chain. Returns
// (KindInternalError, false) if err does not carry a *Error anywhere in its
// chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindInternalError, false
}

// Is reports whether err's kind, anywhere in its chain, equals kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
