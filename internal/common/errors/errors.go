package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode identifies the class of an application error.
type ErrorCode string

const (
	ErrCodeInternal   ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound   ErrorCode = "NOT_FOUND"
	ErrCodeConflict   ErrorCode = "CONFLICT"

	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// Giveaway lifecycle
	ErrCodePermissionDenied       ErrorCode = "PERMISSION_DENIED"
	ErrCodeRateLimit              ErrorCode = "RATE_LIMITED"
	ErrCodeUnknownPreset          ErrorCode = "UNKNOWN_PRESET"
	ErrCodeUnknownEntryAffordance ErrorCode = "UNKNOWN_ENTRY_AFFORDANCE"
	ErrCodeQuotaExceeded          ErrorCode = "QUOTA_EXCEEDED"

	// Storage
	ErrCodeStorage ErrorCode = "STORAGE_FAILURE"

	// External APIs
	ErrCodePlatform ErrorCode = "PLATFORM_ERROR"
)

// AppError is a typed application error. Two AppErrors match under errors.Is
// when their codes are equal, so package-level sentinels can be compared
// against errors wrapped with extra context.
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// IsNotFound reports whether the error is a "not found" error
func (e *AppError) IsNotFound() bool {
	return e.Code == ErrCodeNotFound
}

// IsRetryable reports whether the failure is transient
func (e *AppError) IsRetryable() bool {
	return e.Code == ErrCodeRateLimit || e.Code == ErrCodeStorage
}

// WithDetail attaches a detail value to the error
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new application error
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Wrap wraps an existing error
func Wrap(err error, code ErrorCode, message string) *AppError {
	appErr := New(code, message)
	appErr.Cause = err
	return appErr
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// NewValidationError creates a validation error
func NewValidationError(field, reason string) *AppError {
	return New(ErrCodeValidation, fmt.Sprintf("Validation failed for field '%s': %s", field, reason)).
		WithDetail("field", field).
		WithDetail("reason", reason)
}

// NewNotFoundError creates a "not found" error
func NewNotFoundError(resource, id interface{}) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithDetail("resource", resource).
		WithDetail("id", id)
}

// NewStorageError creates a storage error
func NewStorageError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeStorage, fmt.Sprintf("Storage operation failed: %s", operation)).
		WithDetail("operation", operation)
}

// NewPlatformError creates a chat platform error
func NewPlatformError(operation string, err error) *AppError {
	return Wrap(err, ErrCodePlatform, fmt.Sprintf("Platform operation failed: %s", operation)).
		WithDetail("operation", operation)
}

// AsAppError extracts an AppError from the chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first AppError in the chain, or ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}
