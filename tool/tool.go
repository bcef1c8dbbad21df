// Package tool implements the function / tool calling subsystem that lets the
// assistant invoke repository capabilities with schema validated arguments,
// consistent error handling and metadata for model guidance.
package tool

import (
	"fmt"

	"github.com/hupe1980/devassist/core"
	"github.com/hupe1980/devassist/internal/util"
)

// Tool defines the interface for capabilities exposed to the model.
//
// The result of a tool is always text: it is fed back to the model verbatim.
// Failures the model should reason about (a missing file, a rejected write)
// are returned as ordinary text results. A returned error is reserved for
// validation and unexpected execution failures; the executor converts it to
// text as well.
//
// Tool implementations must be safe for concurrent use: calls of one model
// turn run in parallel.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the model to help it decide when to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with decoded arguments.
	Call(toolCtx *core.ToolContext, args map[string]any) (string, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Error codes used by the executor and FunctionTool.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeExecution   = "EXECUTION_ERROR"
	CodeUnknownTool = "UNKNOWN_TOOL"
	CodeTimeout     = "TIMEOUT"
	CodePanic       = "PANIC"
)

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
