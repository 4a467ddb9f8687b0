// Package ferrors defines the closed error taxonomy shared by every Fold
// component: NotFound, Conflict, Validation, Transient, ProviderExhausted,
// CircuitOpen, and StorageCorrupt. Components classify failures into one of
// these kinds so callers can branch on errors.Is without parsing strings.
package ferrors

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of error categories.
type Kind string

const (
	NotFound          Kind = "not_found"
	Conflict          Kind = "conflict"
	Validation        Kind = "validation"
	Transient         Kind = "transient"
	ProviderExhausted Kind = "provider_exhausted"
	CircuitOpen       Kind = "circuit_open"
	StorageCorrupt    Kind = "storage_corrupt"
)

// Error is a Fold error carrying a Kind, a message, and an optional cause.
type Error struct {
	Kind    Kind
	Op      string // component/operation that raised the error, e.g. "store.GetMemory"
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Op != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error with the same Kind, so
// errors.Is(err, ferrors.New(ferrors.NotFound, "", "")) style sentinel
// comparisons work without matching Op/Message/Cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an Error.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap constructs an Error with an underlying cause.
func Wrap(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// sentinel kind-only errors, usable with errors.Is(err, ferrors.ErrNotFound).
var (
	ErrNotFound          = &Error{Kind: NotFound}
	ErrConflict          = &Error{Kind: Conflict}
	ErrValidation        = &Error{Kind: Validation}
	ErrTransient         = &Error{Kind: Transient}
	ErrProviderExhausted = &Error{Kind: ProviderExhausted}
	ErrCircuitOpen       = &Error{Kind: CircuitOpen}
	ErrStorageCorrupt    = &Error{Kind: StorageCorrupt}
)

// KindOf extracts the Kind of err if it is (or wraps) a *Error, and ok=false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// IsRetriable reports whether err's kind is one the caller may retry:
// Transient, ProviderExhausted, or CircuitOpen.
func IsRetriable(err error) bool {
	k, ok := KindOf(err)
	if !ok {
		return false
	}
	return k == Transient || k == ProviderExhausted || k == CircuitOpen
}
