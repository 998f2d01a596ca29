// Package errors provides error code definitions shared across the client core.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique error code that can be surfaced to the UI shell.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrDuplicate  ErrorCode = "DUPLICATE"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Local store errors
	ErrDatabase   ErrorCode = "DATABASE_ERROR"
	ErrMigration  ErrorCode = "MIGRATION_FAILED"
	ErrConstraint ErrorCode = "CONSTRAINT_VIOLATION"

	// Session errors
	ErrNoSession ErrorCode = "NO_SESSION"

	// Sync errors
	ErrSyncFailed        ErrorCode = "SYNC_FAILED"
	ErrSyncTransport     ErrorCode = "SYNC_TRANSPORT_ERROR"
	ErrSyncTimeout       ErrorCode = "SYNC_TIMEOUT"
	ErrSyncAuthFailed    ErrorCode = "SYNC_AUTH_FAILED"
	ErrSyncRejected      ErrorCode = "SYNC_REJECTED"
	ErrSyncAbandoned     ErrorCode = "SYNC_ABANDONED"
	ErrSyncInProgress    ErrorCode = "SYNC_IN_PROGRESS"
	ErrQueueEntryMissing ErrorCode = "QUEUE_ENTRY_MISSING"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error is of a specific code, unwrapping as needed.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the error code of err, or ErrInternal when err carries none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// MessageOf returns the human-readable message of err, without the coded
// rendering Error produces. Falls back to Error for plain errors.
func MessageOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}
