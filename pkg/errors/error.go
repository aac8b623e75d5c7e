// Package errors provides coded errors for the radx pipeline.
//
// Codes are grouped by the layer that raises them:
//   - Validation errors (100-199): bad parameters and configuration
//   - Data errors (200-299): empty series, cache and contract id failures
//   - Strategy errors (400-499): registry lookups and signal invariant violations
//   - Backtest errors (600-699): sweep grid rejection and cancellation
//   - Market data errors (700-799): upstream provider, auth and stream failures
//
// Usage:
//
//	err := errors.Newf(errors.ErrCodeEmptySeries, "no bars for %s", symbol)
//
//	err := errors.Wrap(errors.ErrCodeUpstream, "retrieve bars failed", cause)
//
//	if errors.IsUpstream(err) { ... retry ... }
package errors

import (
	"errors"
	"fmt"
)

// Error is a failure tagged with an ErrorCode and an optional cause.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates an Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates an Error with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap creates an Error that carries cause.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf creates an Error that carries cause with a formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode returns the code of the first *Error in err's chain, or ErrCodeUnknown.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}

		if e.Code == code {
			return true
		}

		err = e.Cause
	}

	return false
}

// IsUpstream reports a failed provider call. These are retryable by the caller.
func IsUpstream(err error) bool {
	return HasCode(err, ErrCodeUpstream)
}

// IsEmptySeries reports a request that produced no bars. It is terminal for the request.
func IsEmptySeries(err error) bool {
	return HasCode(err, ErrCodeEmptySeries)
}

// IsGridTooLarge reports a sweep rejected before any computation.
func IsGridTooLarge(err error) bool {
	return HasCode(err, ErrCodeGridTooLarge)
}

// IsInconsistentSignal reports a broken entry/exit pairing in an annotated series.
func IsInconsistentSignal(err error) bool {
	return HasCode(err, ErrCodeInconsistentSignal)
}
