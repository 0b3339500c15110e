package errors

import (
	"fmt"
)

// CivError is the structured error type for Cividex.
// It provides rich context for error handling, logging, and user presentation.
type CivError struct {
	// Code is the unique error code (e.g., "ERR_301_INDEX_CORRUPT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Corpus, Index, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *CivError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *CivError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with CivError.
func (e *CivError) Is(target error) bool {
	if t, ok := target.(*CivError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *CivError) WithDetail(key, value string) *CivError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *CivError) WithSuggestion(suggestion string) *CivError {
	e.Suggestion = suggestion
	return e
}

// New creates a new CivError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *CivError {
	return &CivError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a CivError from an existing error.
// The error's message becomes the CivError message.
func Wrap(code string, err error) *CivError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *CivError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// CorpusError creates a record corpus error.
func CorpusError(message string, cause error) *CivError {
	return New(ErrCodeRecordNotFound, message, cause)
}

// IndexError creates an index-related error.
func IndexError(message string, cause error) *CivError {
	return New(ErrCodeIndexFailed, message, cause)
}

// QueryError creates a query-related error.
func QueryError(message string, cause error) *CivError {
	return New(ErrCodeQueryFailed, message, cause)
}

// ValidationError creates an input validation error.
func ValidationError(message string, cause error) *CivError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *CivError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a CivError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ce, ok := err.(*CivError); ok {
		return ce.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ce, ok := err.(*CivError); ok {
		return ce.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a CivError.
// Returns empty string if not a CivError.
func GetCode(err error) string {
	if ce, ok := err.(*CivError); ok {
		return ce.Code
	}
	return ""
}

// GetCategory extracts the category from a CivError.
// Returns empty string if not a CivError.
func GetCategory(err error) Category {
	if ce, ok := err.(*CivError); ok {
		return ce.Category
	}
	return ""
}
