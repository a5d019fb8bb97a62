// Package errors provides structured error types for claimlens.
// Every error carries a category, code, message, and retryable flag so the
// API boundary can map failures to status codes consistently.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryDataset    ErrorCategory = "DATASET"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryQuery      ErrorCategory = "QUERY"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidParameter = "INVALID_PARAMETER"
	CodeProductRequired  = "PRODUCT_REQUIRED"

	// Dataset codes
	CodeOpenFailed     = "OPEN_FAILED"
	CodeSchemaMismatch = "SCHEMA_MISMATCH"
	CodeScanFailed     = "SCAN_FAILED"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Query codes
	CodeExecutionFailed = "EXECUTION_FAILED"
	CodeCancelled       = "CANCELLED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// ClaimlensError is the structured error type used throughout the system.
type ClaimlensError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *ClaimlensError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *ClaimlensError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *ClaimlensError) Is(target error) bool {
	var t *ClaimlensError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new ClaimlensError.
func New(category ErrorCategory, code, message string) *ClaimlensError {
	return &ClaimlensError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new ClaimlensError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *ClaimlensError {
	return &ClaimlensError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *ClaimlensError) WithDetails(details map[string]interface{}) *ClaimlensError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ce *ClaimlensError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a ClaimlensError.
func GetCategory(err error) ErrorCategory {
	var ce *ClaimlensError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a ClaimlensError.
func GetCode(err error) string {
	var ce *ClaimlensError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsValidation reports whether err is a caller contract violation.
func IsValidation(err error) bool {
	return GetCategory(err) == ErrCategoryValidation
}

// isRetryable determines if an error code is retryable. Everything except
// object storage transfer is local and deterministic.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *ClaimlensError {
	return New(ErrCategoryValidation, code, message)
}

// InvalidParameter reports a parameter value outside its recognized set.
func InvalidParameter(name, value string) *ClaimlensError {
	return NewValidationError(CodeInvalidParameter, fmt.Sprintf("invalid %s: %q", name, value)).
		WithDetails(map[string]interface{}{"parameter": name, "value": value})
}

func NewDatasetError(code, message string, cause error) *ClaimlensError {
	return Wrap(ErrCategoryDataset, code, message, cause)
}

func NewStorageError(code, message string, cause error) *ClaimlensError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewQueryError(code, message string, cause error) *ClaimlensError {
	return Wrap(ErrCategoryQuery, code, message, cause)
}

func NewInternalError(message string, cause error) *ClaimlensError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
