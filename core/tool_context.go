package core

import (
	"context"

	"github.com/hupe1980/devassist/logging"
)

// ToolContext provides the constrained surface handed to a tool for one
// invocation: the per-call context (carrying deadline and cancellation), the
// correlating call id and a logger.
type ToolContext struct {
	ctx  context.Context
	call FunctionCall

	*loggerAdapter
}

// NewToolContext constructs a tool context bound to ctx and the originating call.
func NewToolContext(ctx context.Context, call FunctionCall, logger logging.Logger) *ToolContext {
	return &ToolContext{
		ctx:           ctx,
		call:          call,
		loggerAdapter: newLoggerAdapter(logger, "tool", call.Name, "function_call_id", call.ID),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.call.ID }

// ToolName returns the name the model used to address the tool.
func (tc *ToolContext) ToolName() string { return tc.call.Name }

// RequestID returns the request identifier attached to the context, if any.
func (tc *ToolContext) RequestID() string { return RequestIDFromContext(tc.ctx) }
