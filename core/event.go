package core

import (
	"context"

	"github.com/google/uuid"
)

// EventKind discriminates the client facing stream events.
type EventKind string

const (
	// EventText carries an incremental text delta from the model.
	EventText EventKind = "text"
	// EventTool announces that a tool call started executing.
	EventTool EventKind = "tool"
	// EventDone carries the complete answer and the tools used.
	EventDone EventKind = "done"
	// EventError terminates a stream that could not produce an answer.
	EventError EventKind = "error"
)

// Event is one unit of the ordered stream observed by a client. Only the
// fields relevant to Kind are populated.
//
//	text  -> Text (delta)
//	tool  -> Tool, ToolCallID
//	done  -> Text (full answer), ToolsUsed
//	error -> Error, ToolsUsed, Mutations
type Event struct {
	Kind       EventKind `json:"kind"`
	Text       string    `json:"text,omitempty"`
	Tool       string    `json:"tool,omitempty"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	ToolsUsed  []string  `json:"tools_used,omitempty"`
	Mutations  []string  `json:"mutations,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// NewTextEvent creates a text delta event.
func NewTextEvent(delta string) Event { return Event{Kind: EventText, Text: delta} }

// NewToolEvent creates a tool-start notification.
func NewToolEvent(name, callID string) Event {
	return Event{Kind: EventTool, Tool: name, ToolCallID: callID}
}

// NewDoneEvent creates the terminal success event.
func NewDoneEvent(text string, toolsUsed []string) Event {
	return Event{Kind: EventDone, Text: text, ToolsUsed: toolsUsed}
}

// NewErrorEvent creates the terminal failure event. Mutations lists side
// effects that were already applied before the failure.
func NewErrorEvent(msg string, toolsUsed, mutations []string) Event {
	return Event{Kind: EventError, Error: msg, ToolsUsed: toolsUsed, Mutations: mutations}
}

// IsTerminal reports whether no further events follow.
func (e Event) IsTerminal() bool { return e.Kind == EventDone || e.Kind == EventError }

// Sink receives stream events in emission order. Implementations must be safe
// for concurrent use: tool-start notifications of one batch are sent from
// parallel goroutines.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev Event) error

// Send implements Sink.
func (f SinkFunc) Send(ctx context.Context, ev Event) error { return f(ctx, ev) }

// DiscardSink drops every event. Used by non-streaming callers.
var DiscardSink Sink = SinkFunc(func(context.Context, Event) error { return nil })

// NewID generates a new unique identifier for requests and stored records.
func NewID() string { return uuid.NewString() }

type requestIDKey struct{}

// WithRequestID attaches a request identifier to ctx for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request identifier attached to ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
