package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorCode is the stable identifier surfaced at the API boundary.
type ErrorCode string

const (
	CodeValidation           ErrorCode = "VALIDATION_ERROR"
	CodeNotFound             ErrorCode = "NOT_FOUND"
	CodeResourceUnavailable  ErrorCode = "RESOURCE_UNAVAILABLE"
	CodeInsufficientFunds    ErrorCode = "INSUFFICIENT_FUNDS"
	CodeConcurrencyConflict  ErrorCode = "CONCURRENCY_CONFLICT"
	CodeInvalidTransition    ErrorCode = "INVALID_STATE_TRANSITION"
	CodePhysicalVerification ErrorCode = "PHYSICAL_VERIFICATION_FAILED"
	CodeIntegrityDefect      ErrorCode = "INTEGRITY_DEFECT"
	CodeInternal             ErrorCode = "INTERNAL"
)

var (
	ErrValidation           = &Error{Code: CodeValidation}
	ErrNotFound             = &Error{Code: CodeNotFound}
	ErrResourceUnavailable  = &Error{Code: CodeResourceUnavailable}
	ErrInsufficientFunds    = &Error{Code: CodeInsufficientFunds}
	ErrConcurrencyConflict  = &Error{Code: CodeConcurrencyConflict}
	ErrInvalidTransition    = &Error{Code: CodeInvalidTransition}
	ErrPhysicalVerification = &Error{Code: CodePhysicalVerification}
	ErrIntegrityDefect      = &Error{Code: CodeIntegrityDefect}
)

type Error struct {
	Code      ErrorCode
	Message   string
	Shortfall decimal.Decimal
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so the package-level
// sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func NewValidationError(format string, args ...any) error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(format string, args ...any) error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewResourceUnavailableError(format string, args ...any) error {
	return &Error{Code: CodeResourceUnavailable, Message: fmt.Sprintf(format, args...)}
}

func NewInsufficientFundsError(shortfall decimal.Decimal) error {
	return &Error{
		Code:      CodeInsufficientFunds,
		Message:   fmt.Sprintf("insufficient funds: short by %s", shortfall.StringFixed(2)),
		Shortfall: shortfall,
	}
}

func NewConcurrencyConflictError(err error) error {
	return &Error{Code: CodeConcurrencyConflict, Message: "concurrent update conflict", Err: err}
}

func NewInvalidTransitionError(format string, args ...any) error {
	return &Error{Code: CodeInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

func NewPhysicalVerificationError(format string, args ...any) error {
	return &Error{Code: CodePhysicalVerification, Message: fmt.Sprintf(format, args...)}
}

func NewIntegrityDefectError(format string, args ...any) error {
	return &Error{Code: CodeIntegrityDefect, Message: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsRetryable reports whether the operation may be retried as-is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
