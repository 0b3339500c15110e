package errors

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatForUser returns a user-friendly error message.
func FormatForUser(err error) string {
	if err == nil {
		return ""
	}

	ce, ok := err.(*CivError)
	if !ok {
		// Standard error - just return message
		return err.Error()
	}

	var sb strings.Builder

	// Main error message
	sb.WriteString("Error: ")
	sb.WriteString(ce.Message)
	sb.WriteString("\n")

	// Suggestion if available
	if ce.Suggestion != "" {
		sb.WriteString("\nSuggestion: ")
		sb.WriteString(ce.Suggestion)
		sb.WriteString("\n")
	}

	// Error code for reference
	sb.WriteString(fmt.Sprintf("\n[%s]", ce.Code))

	return sb.String()
}

// FormatForCLI formats an error for CLI output.
// Uses a concise format suitable for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	ce, ok := err.(*CivError)
	if !ok {
		// Wrap standard error
		ce = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder

	// Error message with code
	sb.WriteString(fmt.Sprintf("Error: %s\n", ce.Message))

	// Suggestion if available
	if ce.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", ce.Suggestion))
	}

	// Code reference
	sb.WriteString(fmt.Sprintf("  Code: %s\n", ce.Code))

	return sb.String()
}

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error.
// Suitable for machine consumption and API responses.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	ce, ok := err.(*CivError)
	if !ok {
		// Wrap standard error
		ce = Wrap(ErrCodeInternal, err)
	}

	je := jsonError{
		Code:       ce.Code,
		Message:    ce.Message,
		Category:   string(ce.Category),
		Severity:   string(ce.Severity),
		Details:    ce.Details,
		Suggestion: ce.Suggestion,
		Retryable:  ce.Retryable,
	}

	if ce.Cause != nil {
		je.Cause = ce.Cause.Error()
	}

	return json.Marshal(je)
}

// FormatForLog formats an error for structured logging.
// Returns key-value pairs suitable for slog attributes.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	ce, ok := err.(*CivError)
	if !ok {
		return map[string]any{
			"error": err.Error(),
		}
	}

	result := map[string]any{
		"error_code": ce.Code,
		"message":    ce.Message,
		"category":   string(ce.Category),
		"severity":   string(ce.Severity),
		"retryable":  ce.Retryable,
	}

	if ce.Cause != nil {
		result["cause"] = ce.Cause.Error()
	}

	if ce.Suggestion != "" {
		result["suggestion"] = ce.Suggestion
	}

	for k, v := range ce.Details {
		result["detail_"+k] = v
	}

	return result
}
