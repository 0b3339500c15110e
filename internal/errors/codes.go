// Package errors provides structured error handling for Cividex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Corpus errors (record files, disk)
//   - 3XX: Index errors
//   - 4XX: Query errors
//   - 5XX: Server errors
//   - 9XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryCorpus indicates record file and disk errors.
	CategoryCorpus Category = "CORPUS"
	// CategoryIndex indicates full-text index errors.
	CategoryIndex Category = "INDEX"
	// CategoryQuery indicates query validation and execution errors.
	CategoryQuery Category = "QUERY"
	// CategoryServer indicates HTTP server errors.
	CategoryServer Category = "SERVER"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound   = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    = "ERR_102_CONFIG_INVALID"
	ErrCodeConfigPermission = "ERR_103_CONFIG_PERMISSION"

	// Corpus errors (200-299)
	ErrCodeRecordNotFound     = "ERR_201_RECORD_NOT_FOUND"
	ErrCodeCorpusPermission   = "ERR_202_CORPUS_PERMISSION"
	ErrCodeDiskFull           = "ERR_203_DISK_FULL"
	ErrCodeRecordTooLarge     = "ERR_204_RECORD_TOO_LARGE"
	ErrCodeFrontMatterInvalid = "ERR_205_FRONT_MATTER_INVALID"
	ErrCodeCorpusLocked       = "ERR_206_CORPUS_LOCKED"

	// Index errors (300-399)
	ErrCodeIndexCorrupt = "ERR_301_INDEX_CORRUPT"
	ErrCodeIndexFailed  = "ERR_302_INDEX_FAILED"
	ErrCodeIndexSchema  = "ERR_303_INDEX_SCHEMA"
	ErrCodeIndexBusy    = "ERR_304_INDEX_BUSY"

	// Query errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeUnsafeTerm   = "ERR_402_UNSAFE_TERM"
	ErrCodeQueryFailed  = "ERR_403_QUERY_FAILED"

	// Server errors (500-599)
	ErrCodeServerBind     = "ERR_501_SERVER_BIND"
	ErrCodeUnauthorized   = "ERR_502_UNAUTHORIZED"
	ErrCodeRequestInvalid = "ERR_503_REQUEST_INVALID"

	// Internal errors (900-999)
	ErrCodeInternal = "ERR_901_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	numStr := code[4:7]
	if len(numStr) < 1 {
		return CategoryInternal
	}

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryCorpus
	case '3':
		return CategoryIndex
	case '4':
		return CategoryQuery
	case '5':
		return CategoryServer
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	// Fatal errors
	switch code {
	case ErrCodeIndexCorrupt, ErrCodeDiskFull:
		return SeverityFatal
	}

	// Contention errors clear on their own, callers may try again later
	if isRetryableCode(code) {
		return SeverityWarning
	}

	// Default to error severity
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Search queries are never retried; this flag only marks lock and busy
// contention that a later invocation would not hit.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeCorpusLocked, ErrCodeIndexBusy:
		return true
	default:
		return false
	}
}
