package core

import "strings"

// Conversation roles understood by the assistant.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	// RoleTool marks a turn carrying tool results. The wire alias
	// "tool-result" is normalized to this value.
	RoleTool = "tool"
)

// Part represents a polymorphic segment of role-based content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text string // Plain UTF-8 text
}

// isPart implements the Part interface for TextPart.
func (TextPart) isPart() {}

// FunctionCall describes a tool invocation requested by the model. ID is
// opaque and must be echoed back unchanged in the matching FunctionResponse.
type FunctionCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"` // JSON object
}

// FunctionCallPart wraps a FunctionCall as a content part.
type FunctionCallPart struct {
	FunctionCall FunctionCall
}

// isPart implements the Part interface for FunctionCallPart.
func (FunctionCallPart) isPart() {}

// FunctionResponse is the textual outcome of a FunctionCall. Failures are
// encoded as text too; IsError only hints the provider about the outcome.
type FunctionResponse struct {
	ID       string `json:"id"`       // Matches originating FunctionCall ID
	Name     string `json:"name"`     // Tool name
	Response string `json:"response"` // Tool output or error text
	IsError  bool   `json:"is_error,omitempty"`
}

// FunctionResponsePart wraps a FunctionResponse as a content part.
type FunctionResponsePart struct {
	FunctionResponse FunctionResponse
}

// isPart implements the Part interface for FunctionResponsePart.
func (FunctionResponsePart) isPart() {}

// Content holds role + ordered parts.
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// NewTextContent builds a single text part turn.
func NewTextContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// NewToolResultContent builds the tool turn that answers one batch of calls.
func NewToolResultContent(results []FunctionResponse) Content {
	parts := make([]Part, 0, len(results))
	for _, r := range results {
		parts = append(parts, FunctionResponsePart{FunctionResponse: r})
	}
	return Content{Role: RoleTool, Parts: parts}
}

// Text concatenates all text parts in order.
func (c Content) Text() string {
	var sb strings.Builder
	for _, p := range c.Parts {
		if tp, ok := p.(TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}

// FunctionCalls returns the tool calls contained in the turn preserving order.
func (c Content) FunctionCalls() []FunctionCall {
	var calls []FunctionCall
	for _, p := range c.Parts {
		if fc, ok := p.(FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}

// FunctionResponses returns the tool results contained in the turn preserving order.
func (c Content) FunctionResponses() []FunctionResponse {
	var responses []FunctionResponse
	for _, p := range c.Parts {
		if fr, ok := p.(FunctionResponsePart); ok {
			responses = append(responses, fr.FunctionResponse)
		}
	}
	return responses
}

// Conversation is the ordered dialogue history supplied by the caller for a
// single request. Insertion order is the dialogue order.
type Conversation []Content

// Clone returns a copy whose backing array can be appended to without
// affecting the caller's slice. Parts are immutable values and are shared.
func (c Conversation) Clone() Conversation {
	out := make(Conversation, len(c))
	copy(out, c)
	return out
}

// Last returns the final turn, or false for an empty conversation.
func (c Conversation) Last() (Content, bool) {
	if len(c) == 0 {
		return Content{}, false
	}
	return c[len(c)-1], true
}
