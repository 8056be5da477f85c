// Package errors holds the data-layer error type shared by repositories and the admin CLI.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of data-layer error.
type ErrorCode string

const (
	ErrCodeNotFound   ErrorCode = "not_found"
	ErrCodeConflict   ErrorCode = "conflict"
	ErrCodeValidation ErrorCode = "validation"
	ErrCodeInternal   ErrorCode = "internal"
	ErrCodeTimeout    ErrorCode = "timeout"
	ErrCodeCanceled   ErrorCode = "canceled"
	// ErrCodeUnavailable means the database could not be reached at all.
	ErrCodeUnavailable ErrorCode = "unavailable"
)

// AppError is a structured error with a code, a safe message and an optional cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	// Field names the offending column for conflicts and validation failures.
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// Wrap wraps err with an AppError, preserving the cause. A nil err returns nil.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func IsNotFound(err error) bool    { return isCode(err, ErrCodeNotFound) }
func IsConflict(err error) bool    { return isCode(err, ErrCodeConflict) }
func IsValidation(err error) bool  { return isCode(err, ErrCodeValidation) }
func IsTimeout(err error) bool     { return isCode(err, ErrCodeTimeout) }
func IsUnavailable(err error) bool { return isCode(err, ErrCodeUnavailable) }

// IsTransient reports whether retrying the operation could succeed.
func IsTransient(err error) bool {
	return IsTimeout(err) || IsUnavailable(err)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
