// Package mcp implements the Model Context Protocol server for Cividex.
package mcp

import (
	"context"
	"errors"
	"fmt"

	civerrors "github.com/openmuni/cividex/internal/errors"
	"github.com/openmuni/cividex/internal/query"
)

// Custom MCP error codes for Cividex.
const (
	// ErrCodeIndexNotFound indicates no index exists for the corpus.
	ErrCodeIndexNotFound = -32001

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeRecordNotFound indicates a record does not exist.
	ErrCodeRecordNotFound = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for internal use.
var (
	// ErrIndexNotFound indicates no index exists for the corpus.
	ErrIndexNotFound = errors.New("index not found")

	// ErrRecordNotFound indicates the requested record does not exist.
	ErrRecordNotFound = errors.New("record not found")

	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrResourceNotFound indicates the requested resource does not exist.
	ErrResourceNotFound = errors.New("resource not found")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
// It maps known error types to appropriate MCP error codes and messages.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	// Already an MCP error: pass through unchanged.
	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	// Check for CivError first
	var civErr *civerrors.CivError
	if errors.As(err, &civErr) {
		return mapCivError(civErr)
	}

	switch {
	case errors.Is(err, query.ErrUnsafeTerm):
		return &MCPError{
			Code:    ErrCodeInvalidParams,
			Message: err.Error(),
		}
	case errors.Is(err, ErrIndexNotFound):
		return &MCPError{
			Code:    ErrCodeIndexNotFound,
			Message: "Index not found. Run 'cividex index' first.",
		}
	case errors.Is(err, ErrRecordNotFound):
		return &MCPError{
			Code:    ErrCodeRecordNotFound,
			Message: "Record not found.",
		}
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request timed out.",
		}
	case errors.Is(err, context.Canceled):
		return &MCPError{
			Code:    ErrCodeTimeout,
			Message: "Request was canceled.",
		}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{
			Code:    ErrCodeMethodNotFound,
			Message: "Tool not found.",
		}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{
			Code:    ErrCodeMethodNotFound,
			Message: "Resource not found.",
		}
	default:
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: "Internal server error.",
		}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown methods/tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

// mapCivError converts a CivError to an MCPError.
func mapCivError(ce *civerrors.CivError) *MCPError {
	// Build message with suggestion if available
	message := ce.Message
	if ce.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ce.Message, ce.Suggestion)
	}

	// Map category to MCP error code
	switch ce.Category {
	case civerrors.CategoryCorpus:
		switch ce.Code {
		case civerrors.ErrCodeRecordNotFound:
			return &MCPError{
				Code:    ErrCodeRecordNotFound,
				Message: message,
			}
		default:
			return &MCPError{
				Code:    ErrCodeInternalError,
				Message: message,
			}
		}
	case civerrors.CategoryIndex:
		switch ce.Code {
		case civerrors.ErrCodeIndexCorrupt, civerrors.ErrCodeIndexSchema:
			return &MCPError{
				Code:    ErrCodeIndexNotFound,
				Message: message,
			}
		default:
			return &MCPError{
				Code:    ErrCodeInternalError,
				Message: message,
			}
		}
	case civerrors.CategoryQuery:
		switch ce.Code {
		case civerrors.ErrCodeInvalidInput, civerrors.ErrCodeUnsafeTerm:
			return &MCPError{
				Code:    ErrCodeInvalidParams,
				Message: message,
			}
		default:
			return &MCPError{
				Code:    ErrCodeInternalError,
				Message: message,
			}
		}
	default: // CategoryConfig, CategoryServer, CategoryInternal, and unknown
		return &MCPError{
			Code:    ErrCodeInternalError,
			Message: message,
		}
	}
}
