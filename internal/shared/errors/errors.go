package errors

import (
	"errors"
	"fmt"
)

// AppError represents an application error with additional context
type AppError struct {
	Code    string // Error code for client
	Message string // Human-readable message
	Err     error  // Underlying error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Error codes
const (
	// Configuration: fatal, never retried
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// Invariant violations: the enclosing transaction is always rolled back
	ErrCodeLedgerIntegrity = "LEDGER_INTEGRITY"

	// Business rule violations: recoverable, carry a human-readable reason
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrCodeInvalidState        = "INVALID_STATE"
	ErrCodeDuplicateRequest    = "DUPLICATE_REQUEST"
	ErrCodeAlreadyReversed     = "ALREADY_REVERSED"
	ErrCodeRecoveryMode        = "RECOVERY_MODE"
	ErrCodeAutoFixRefused      = "AUTOFIX_REFUSED"
	ErrCodeUnauthorized        = "UNAUTHORIZED"

	// Contention: retry later, distinct from business errors
	ErrCodeRetryLater = "RETRY_LATER"

	ErrCodeInternal      = "INTERNAL_ERROR"
	ErrCodeDatabaseError = "DATABASE_ERROR"
)

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Configuration creates a fatal configuration error
func Configuration(message string, err error) *AppError {
	return Wrap(err, ErrCodeConfiguration, message)
}

// LedgerIntegrity creates a ledger integrity error
func LedgerIntegrity(message string, err error) *AppError {
	return Wrap(err, ErrCodeLedgerIntegrity, message)
}

// Validation creates a validation error
func Validation(message string, err error) *AppError {
	return Wrap(err, ErrCodeValidation, message)
}

// NotFound creates a not found error
func NotFound(resource string, err error) *AppError {
	return Wrap(err, ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

// InsufficientBalance creates an insufficient balance error
func InsufficientBalance(message string, err error) *AppError {
	return Wrap(err, ErrCodeInsufficientBalance, message)
}

// InvalidState creates an invalid state transition error
func InvalidState(message string, err error) *AppError {
	return Wrap(err, ErrCodeInvalidState, message)
}

// DuplicateRequest creates a duplicate idempotency key error
func DuplicateRequest(message string, err error) *AppError {
	return Wrap(err, ErrCodeDuplicateRequest, message)
}

// AlreadyReversed creates an already-reversed error
func AlreadyReversed(message string, err error) *AppError {
	return Wrap(err, ErrCodeAlreadyReversed, message)
}

// RecoveryMode creates an error for actions blocked by an outstanding receivable
func RecoveryMode(message string, err error) *AppError {
	return Wrap(err, ErrCodeRecoveryMode, message)
}

// AutoFixRefused creates a refused auto-fix error
func AutoFixRefused(message string, err error) *AppError {
	return Wrap(err, ErrCodeAutoFixRefused, message)
}

// Unauthorized creates an unauthorized error
func Unauthorized(message string, err error) *AppError {
	return Wrap(err, ErrCodeUnauthorized, message)
}

// RetryLater creates a contention error
func RetryLater(message string, err error) *AppError {
	return Wrap(err, ErrCodeRetryLater, message)
}

// Internal creates an internal error
func Internal(message string, err error) *AppError {
	return Wrap(err, ErrCodeInternal, message)
}

// DatabaseError creates a database error
func DatabaseError(message string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseError, message)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts the outermost AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// HasCode reports whether any AppError in the chain carries code
func HasCode(err error, code string) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// IsFatal reports configuration errors, which must surface immediately and never be retried
func IsFatal(err error) bool {
	return HasCode(err, ErrCodeConfiguration)
}

// IsIntegrity reports ledger integrity violations
func IsIntegrity(err error) bool {
	return HasCode(err, ErrCodeLedgerIntegrity)
}

// IsRetryable reports contention errors the caller may retry later
func IsRetryable(err error) bool {
	return HasCode(err, ErrCodeRetryLater)
}
