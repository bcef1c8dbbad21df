package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeConversation_StringContent(t *testing.T) {
	conv, err := DecodeConversation([]Message{
		NewTextMessage("user", "list files in src"),
	})
	require.NoError(t, err)
	require.Len(t, conv, 1)
	assert.Equal(t, RoleUser, conv[0].Role)
	assert.Equal(t, "list files in src", conv[0].Text())
}

func TestDecodeConversation_Blocks(t *testing.T) {
	raw := `[
		{"role":"user","content":"read a.ts"},
		{"role":"assistant","content":[
			{"type":"text","text":"Reading."},
			{"type":"tool_use","id":"tu_1","name":"read_file","input":{"path":"a.ts"}}
		]},
		{"role":"user","content":[
			{"type":"tool_result","tool_use_id":"tu_1","content":[{"type":"text","text":"export {}"}]},
			{"type":"text","text":"thanks"}
		]}
	]`
	var msgs []Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msgs))

	conv, err := DecodeConversation(msgs)
	require.NoError(t, err)
	require.Len(t, conv, 4)

	calls := conv[1].FunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "tu_1", calls[0].ID)
	assert.JSONEq(t, `{"path":"a.ts"}`, calls[0].Arguments)

	assert.Equal(t, RoleTool, conv[2].Role)
	results := conv[2].FunctionResponses()
	require.Len(t, results, 1)
	assert.Equal(t, "tu_1", results[0].ID)
	assert.Equal(t, "export {}", results[0].Response)

	assert.Equal(t, RoleUser, conv[3].Role)
	assert.Equal(t, "thanks", conv[3].Text())
}

func TestDecodeConversation_ToolResultAlias(t *testing.T) {
	msg := Message{Role: "tool-result", Content: json.RawMessage(`[{"type":"tool_result","tool_use_id":"x","content":"ok","is_error":true}]`)}
	conv, err := DecodeConversation([]Message{msg})
	require.NoError(t, err)
	require.Len(t, conv, 1)
	assert.Equal(t, RoleTool, conv[0].Role)
	assert.True(t, conv[0].FunctionResponses()[0].IsError)
}

func TestDecodeConversation_Invalid(t *testing.T) {
	cases := map[string]Message{
		"bad role":          {Role: "system", Content: json.RawMessage(`"x"`)},
		"number content":    {Role: "user", Content: json.RawMessage(`42`)},
		"missing content":   {Role: "user"},
		"tool_use for user": {Role: "user", Content: json.RawMessage(`[{"type":"tool_use","id":"1","name":"x"}]`)},
		"unknown block":     {Role: "user", Content: json.RawMessage(`[{"type":"image"}]`)},
		"tool string":       {Role: "tool", Content: json.RawMessage(`"x"`)},
		"empty blocks":      {Role: "user", Content: json.RawMessage(`[]`)},
	}
	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeConversation([]Message{m})
			assert.ErrorIs(t, err, ErrInvalidMessage)
		})
	}

	_, err := DecodeConversation(nil)
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestNewMessage_RoundTrip(t *testing.T) {
	turns := Conversation{
		NewTextContent(RoleUser, "hi"),
		{Role: RoleAssistant, Parts: []Part{
			TextPart{Text: "checking"},
			FunctionCallPart{FunctionCall: FunctionCall{ID: "c1", Name: "list_files", Arguments: `{"path":"src"}`}},
		}},
		NewToolResultContent([]FunctionResponse{{ID: "c1", Name: "list_files", Response: "📄 a.ts"}}),
	}

	msgs := make([]Message, 0, len(turns))
	for _, c := range turns {
		m, err := NewMessage(c)
		require.NoError(t, err)
		msgs = append(msgs, m)
	}
	assert.Equal(t, "user", msgs[2].Role, "tool turns travel as user messages")

	back, err := DecodeConversation(msgs)
	require.NoError(t, err)
	require.Len(t, back, 3)
	assert.Equal(t, "hi", back[0].Text())
	assert.Equal(t, turns[1].FunctionCalls()[0].ID, back[1].FunctionCalls()[0].ID)
	assert.Equal(t, RoleTool, back[2].Role)
	assert.Equal(t, "📄 a.ts", back[2].FunctionResponses()[0].Response)
}
