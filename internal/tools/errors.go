package tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/effect-patterns/mcp-gateway/internal/client"
)

// ToolError represents a structured error from tool execution
type ToolError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorCode categorizes tool errors for JSON-RPC translation
type ErrorCode string

const (
	ErrCodeInvalidParams  ErrorCode = "INVALID_PARAMS"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeUpstream       ErrorCode = "UPSTREAM_ERROR"
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
	ErrCodeMethodNotFound ErrorCode = "METHOD_NOT_FOUND"
)

// NewToolError creates a tool error with optional data
func NewToolError(code ErrorCode, message string, data map[string]any) *ToolError {
	return &ToolError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// WrapAPIError converts patterns API client errors into ToolErrors,
// preserving the network classification in the data member.
func WrapAPIError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return NewToolError(ErrCodeInternal, err.Error(), nil)
	}

	data := map[string]any{"retryable": apiErr.Retryable()}
	if apiErr.Status > 0 {
		data["status"] = apiErr.Status
	}
	if apiErr.Details != nil {
		data["errorType"] = string(apiErr.Details.ErrorType)
	}

	if apiErr.Status == 404 {
		return NewToolError(ErrCodeNotFound, apiErr.Message, data)
	}
	return NewToolError(ErrCodeUpstream, apiErr.Message, data)
}

// ToJSONRPCError converts ToolError to JSON-RPC error code
func (e *ToolError) ToJSONRPCError() (int, string, json.RawMessage) {
	var code int
	switch e.Code {
	case ErrCodeInvalidParams, ErrCodeNotFound:
		code = -32602 // InvalidParams
	case ErrCodeMethodNotFound:
		code = -32601 // MethodNotFound
	default:
		code = -32603 // InternalError
	}

	var data json.RawMessage
	if e.Data != nil {
		dataBytes, _ := json.Marshal(e.Data)
		data = dataBytes
	}

	return code, e.Message, data
}
