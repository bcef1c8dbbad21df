// Package core provides the foundational domain types shared by the dev
// assistant. It defines:
//
//   - Content / Part (role based conversation turns with text, tool call and
//     tool result segments)
//   - Conversation (the caller supplied transcript for one request)
//   - Message (the wire form of a turn as sent by clients)
//   - Event / Sink (client facing stream events and their transport)
//   - ToolContext (scoped execution surface handed to tools)
//   - IterationLimiter (hard ceiling on model round trips)
//
// The package intentionally keeps implementation concerns (model providers,
// repository access, transport) out of scope so every other package can
// depend on it without import cycles.
package core
