// Package model defines the provider‑agnostic abstractions and concrete
// helpers for interacting with language models inside devassist.
//
// Core goals:
//   - Unify streaming + non‑streaming generation behind a single interface
//   - Normalize tool definitions and tool call representation
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate deterministic testing (ScriptedModel)
//
// Providers (Anthropic, OpenAI) implement the Model interface from this
// package so the assistant loop stays decoupled from vendor SDKs.
package model
