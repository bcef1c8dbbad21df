package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/devassist/core"
)

func TestConversationBuilder_GroupsCallsAndResults(t *testing.T) {
	b := NewConversationBuilder().
		User("hi").
		Call("a", "list_files", `{"path":""}`).
		Call("b", "read_file", `{"path":"x"}`).
		Result("a", "list_files", "📄 x").
		Result("b", "read_file", "content")

	conv := b.Build()
	require.Len(t, conv, 3)
	assert.Len(t, conv[1].FunctionCalls(), 2)
	assert.Len(t, conv[2].FunctionResponses(), 2)
	assert.Equal(t, core.RoleTool, conv[2].Role)
}

func TestConversationBuilder_MessagesRoundTrip(t *testing.T) {
	b := NewConversationBuilder().
		User("hi").
		Call("a", "list_files", `{"path":""}`).
		Result("a", "list_files", "📄 x").
		Assistant("done")

	decoded, err := core.DecodeConversation(b.Messages())
	require.NoError(t, err)
	require.Len(t, decoded, 4)
	assert.Equal(t, "a", decoded[2].FunctionResponses()[0].ID)
	assert.Equal(t, "done", decoded[3].Text())
	assert.Contains(t, b.ChatBody(), `"messages"`)
}
