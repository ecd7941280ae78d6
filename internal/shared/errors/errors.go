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

// Common error codes
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeDatabaseError      = "DATABASE_ERROR"
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeUnbalancedEntry    = "UNBALANCED_ENTRY"
	ErrCodeDocumentLocked     = "DOCUMENT_LOCKED"
	ErrCodeInsufficientCredit = "INSUFFICIENT_CREDIT"
	ErrCodeOverApplication    = "OVER_APPLICATION"
	ErrCodeOverRefund         = "OVER_REFUND"
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

// Validation creates a validation error
func Validation(message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
	}
}

// NotFound creates a not found error
func NotFound(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return &AppError{
		Code:    ErrCodeConflict,
		Message: message,
	}
}

// Internal creates an internal error
func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// DatabaseError creates a database error
func DatabaseError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeDatabaseError,
		Message: message,
		Err:     err,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidInput,
		Message: message,
	}
}

// UnbalancedEntry creates an unbalanced journal entry error. This signals
// a business-logic defect: it is never retried and fails loudly.
func UnbalancedEntry(message string) *AppError {
	return &AppError{
		Code:    ErrCodeUnbalancedEntry,
		Message: message,
	}
}

// DocumentLocked creates a document locked error carrying the condition
// that triggered the lock, for UI rendering.
func DocumentLocked(reason string) *AppError {
	return &AppError{
		Code:    ErrCodeDocumentLocked,
		Message: reason,
	}
}

// InsufficientCredit creates an insufficient credit balance error
func InsufficientCredit(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInsufficientCredit,
		Message: message,
	}
}

// OverApplication creates an error for applying more credit than the
// invoice's remaining balance
func OverApplication(message string) *AppError {
	return &AppError{
		Code:    ErrCodeOverApplication,
		Message: message,
	}
}

// OverRefund creates an error for refunding beyond the payment amount
func OverRefund(message string) *AppError {
	return &AppError{
		Code:    ErrCodeOverRefund,
		Message: message,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts an AppError from an error
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// HasCode reports whether err is an AppError with the given code.
func HasCode(err error, code string) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Code == code
}
