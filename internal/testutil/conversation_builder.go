package testutil

import (
	"encoding/json"

	"github.com/hupe1980/devassist/core"
)

// ConversationBuilder provides a fluent helper for constructing
// conversations in tests.
// Example:
//
//	conv := NewConversationBuilder().User("hi").Call("c1", "list_files", `{"path":""}`).Result("c1", "list_files", "📁 src").Build()
//
// Consecutive calls are grouped into one assistant turn and consecutive
// results into one tool turn.
type ConversationBuilder struct {
	turns []core.Content
}

// NewConversationBuilder creates an empty builder.
func NewConversationBuilder() *ConversationBuilder { return &ConversationBuilder{} }

// User appends a user text turn (chainable).
func (b *ConversationBuilder) User(text string) *ConversationBuilder {
	b.turns = append(b.turns, core.NewTextContent(core.RoleUser, text))
	return b
}

// Assistant appends an assistant text turn (chainable).
func (b *ConversationBuilder) Assistant(text string) *ConversationBuilder {
	b.turns = append(b.turns, core.NewTextContent(core.RoleAssistant, text))
	return b
}

// Call appends a function call to the current assistant turn (chainable).
func (b *ConversationBuilder) Call(id, name, args string) *ConversationBuilder {
	part := core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: id, Name: name, Arguments: args}}
	b.appendPart(core.RoleAssistant, part)
	return b
}

// Result appends a tool result to the current tool turn (chainable).
func (b *ConversationBuilder) Result(id, name, response string) *ConversationBuilder {
	part := core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: id, Name: name, Response: response}}
	b.appendPart(core.RoleTool, part)
	return b
}

func (b *ConversationBuilder) appendPart(role string, p core.Part) {
	if n := len(b.turns); n > 0 && b.turns[n-1].Role == role {
		b.turns[n-1].Parts = append(b.turns[n-1].Parts, p)
		return
	}
	b.turns = append(b.turns, core.Content{Role: role, Parts: []core.Part{p}})
}

// Build returns a copy of the conversation.
func (b *ConversationBuilder) Build() core.Conversation {
	return core.Conversation(b.turns).Clone()
}

// Messages returns the conversation in wire form. It panics on turns that
// cannot be encoded, which is a bug in the test.
func (b *ConversationBuilder) Messages() []core.Message {
	out := make([]core.Message, 0, len(b.turns))
	for _, c := range b.turns {
		m, err := core.NewMessage(c)
		if err != nil {
			panic(err)
		}
		out = append(out, m)
	}
	return out
}

// ChatBody returns a JSON request body {"messages": [...]}.
func (b *ConversationBuilder) ChatBody() string {
	raw, err := json.Marshal(map[string]any{"messages": b.Messages()})
	if err != nil {
		panic(err)
	}
	return string(raw)
}
