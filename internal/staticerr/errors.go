package staticerr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("ValidationError")
	ErrAuth       = errors.New("AuthError")
	ErrState      = errors.New("StateError")
	ErrLifecycle  = errors.New("LifecycleError")
	// ErrInvariant marks a broken book invariant. It is reported to the caller
	// like a StateError but must be logged loudly.
	ErrInvariant = errors.New("InvariantViolation")
)

// Error is a user-facing failure. Msg is returned to the caller verbatim and
// Kind classifies it for errors.Is.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func newf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error { return newf(ErrValidation, format, args...) }

func Auth(format string, args ...any) error { return newf(ErrAuth, format, args...) }

func State(format string, args ...any) error { return newf(ErrState, format, args...) }

func Lifecycle(format string, args ...any) error { return newf(ErrLifecycle, format, args...) }

func Invariant(format string, args ...any) error { return newf(ErrInvariant, format, args...) }
