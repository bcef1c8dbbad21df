// Package agent implements the assistant's orchestration loop.
//
// An Assistant alternates between the model and the tool executor:
//
//	AWAITING_MODEL -> FINAL
//	AWAITING_MODEL -> TOOLS_REQUESTED -> EXECUTING_TOOLS -> AWAITING_MODEL
//
// Every model call receives the full transcript, the system prompt and the
// tool declarations. The loop stops at the first answer without tool calls,
// on a model error, on context cancellation or once the iteration ceiling is
// exceeded. Events are reported to a core.Sink as they happen so a transport
// can stream them.
//
// The Assistant holds no per-conversation state; one value serves all
// requests concurrently.
package agent
