package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by the analytics packages unwraps to
// exactly one of these, so callers can branch with errors.Is.
var (
	// ErrInsufficientData reports a series shorter than the requested window
	// or a statistical test's minimum sample size.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidParameter reports an out-of-range window, confidence level,
	// cost fraction or a misaligned pair of series.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidPrice reports a non-positive price where a logarithm or a
	// ratio is required.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrDivisionByZero reports a degenerate denominator.
	ErrDivisionByZero = errors.New("division by zero")
)

// Error carries the failing operation and the offending parameter alongside
// its kind.
type Error struct {
	Kind  error  // one of the Err* sentinels above
	Op    string // e.g. "indicator.SMA"
	Param string // offending parameter name, empty when not applicable
	Msg   string
}

func (e *Error) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %v: %s: %s", e.Op, e.Kind, e.Param, e.Msg)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, op, param, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Param: param, Msg: fmt.Sprintf(format, args...)}
}

// InsufficientData builds an ErrInsufficientData failure.
func InsufficientData(op, param, format string, args ...any) error {
	return newError(ErrInsufficientData, op, param, format, args...)
}

// InvalidParameter builds an ErrInvalidParameter failure.
func InvalidParameter(op, param, format string, args ...any) error {
	return newError(ErrInvalidParameter, op, param, format, args...)
}

// InvalidPrice builds an ErrInvalidPrice failure.
func InvalidPrice(op, param, format string, args ...any) error {
	return newError(ErrInvalidPrice, op, param, format, args...)
}

// DivisionByZero builds an ErrDivisionByZero failure.
func DivisionByZero(op, param, format string, args ...any) error {
	return newError(ErrDivisionByZero, op, param, format, args...)
}
