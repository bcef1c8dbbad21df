package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrInvalidMessage is returned when a wire message cannot be mapped onto a
// conversation turn.
var ErrInvalidMessage = errors.New("invalid message")

// Message is the wire representation of one turn as exchanged with clients.
// Content is either a JSON string or an array of typed blocks:
//
//	{"type":"text","text":"..."}
//	{"type":"tool_use","id":"...","name":"...","input":{...}}
//	{"type":"tool_result","tool_use_id":"...","content":"...","is_error":false}
//
// This matches the message shape the browser client replays as history.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type messageBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// NewTextMessage is a shortcut for a plain text wire message.
func NewTextMessage(role, text string) Message {
	b, _ := json.Marshal(text)
	return Message{Role: role, Content: b}
}

// DecodeConversation converts wire messages into a Conversation. A message
// holding both tool_result blocks and text is split into a tool turn followed
// by a user turn.
func DecodeConversation(msgs []Message) (Conversation, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: conversation is empty", ErrInvalidMessage)
	}
	conv := make(Conversation, 0, len(msgs))
	for i, m := range msgs {
		contents, err := m.Contents()
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		conv = append(conv, contents...)
	}
	return conv, nil
}

// Contents maps the wire message onto one or two conversation turns.
func (m Message) Contents() ([]Content, error) {
	role := normalizeRole(m.Role)
	switch role {
	case RoleUser, RoleAssistant, RoleTool:
	default:
		return nil, fmt.Errorf("%w: unsupported role %q", ErrInvalidMessage, m.Role)
	}

	if len(m.Content) == 0 || !gjson.ValidBytes(m.Content) {
		return nil, fmt.Errorf("%w: content must be a string or an array of blocks", ErrInvalidMessage)
	}

	raw := gjson.ParseBytes(m.Content)
	switch {
	case raw.Type == gjson.String:
		if role == RoleTool {
			return nil, fmt.Errorf("%w: tool turns require tool_result blocks", ErrInvalidMessage)
		}
		return []Content{NewTextContent(role, raw.String())}, nil
	case raw.IsArray():
		return decodeBlocks(role, raw)
	default:
		return nil, fmt.Errorf("%w: content must be a string or an array of blocks", ErrInvalidMessage)
	}
}

func decodeBlocks(role string, raw gjson.Result) ([]Content, error) {
	var (
		primary []Part
		results []Part
		err     error
	)

	raw.ForEach(func(_, b gjson.Result) bool {
		switch kind := b.Get("type").String(); kind {
		case "text":
			primary = append(primary, TextPart{Text: b.Get("text").String()})
		case "tool_use":
			if role != RoleAssistant {
				err = fmt.Errorf("%w: tool_use blocks are only valid in assistant turns", ErrInvalidMessage)
				return false
			}
			args := "{}"
			if in := b.Get("input"); in.Exists() && in.IsObject() {
				args = in.Raw
			}
			primary = append(primary, FunctionCallPart{FunctionCall: FunctionCall{
				ID:        b.Get("id").String(),
				Name:      b.Get("name").String(),
				Arguments: args,
			}})
		case "tool_result":
			id := b.Get("tool_use_id").String()
			if id == "" {
				err = fmt.Errorf("%w: tool_result without tool_use_id", ErrInvalidMessage)
				return false
			}
			results = append(results, FunctionResponsePart{FunctionResponse: FunctionResponse{
				ID:       id,
				Name:     b.Get("name").String(),
				Response: blockText(b.Get("content")),
				IsError:  b.Get("is_error").Bool(),
			}})
		default:
			err = fmt.Errorf("%w: unsupported block type %q", ErrInvalidMessage, kind)
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	var out []Content
	if len(results) > 0 {
		out = append(out, Content{Role: RoleTool, Parts: results})
	}
	if len(primary) > 0 {
		if role == RoleTool {
			role = RoleUser
		}
		out = append(out, Content{Role: role, Parts: primary})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no content blocks", ErrInvalidMessage)
	}
	return out, nil
}

// blockText flattens a tool_result content value (string or text blocks).
func blockText(v gjson.Result) string {
	switch {
	case !v.Exists():
		return ""
	case v.Type == gjson.String:
		return v.String()
	case v.IsArray():
		var sb strings.Builder
		v.ForEach(func(_, b gjson.Result) bool {
			sb.WriteString(b.Get("text").String())
			return true
		})
		return sb.String()
	default:
		return v.Raw
	}
}

func normalizeRole(role string) string {
	switch r := strings.ToLower(strings.TrimSpace(role)); r {
	case "tool-result", "tool_result":
		return RoleTool
	default:
		return r
	}
}

// NewMessage encodes a turn into its wire form. Text-only turns use the
// string shorthand; tool turns are encoded as user messages carrying
// tool_result blocks.
func NewMessage(c Content) (Message, error) {
	role := c.Role
	textOnly := role != RoleTool
	for _, p := range c.Parts {
		if _, ok := p.(TextPart); !ok {
			textOnly = false
		}
	}
	if textOnly {
		return NewTextMessage(role, c.Text()), nil
	}

	blocks := make([]messageBlock, 0, len(c.Parts))
	for _, p := range c.Parts {
		switch part := p.(type) {
		case TextPart:
			blocks = append(blocks, messageBlock{Type: "text", Text: part.Text})
		case FunctionCallPart:
			input := json.RawMessage(part.FunctionCall.Arguments)
			if !json.Valid(input) {
				input = json.RawMessage("{}")
			}
			blocks = append(blocks, messageBlock{
				Type:  "tool_use",
				ID:    part.FunctionCall.ID,
				Name:  part.FunctionCall.Name,
				Input: input,
			})
		case FunctionResponsePart:
			blocks = append(blocks, messageBlock{
				Type:      "tool_result",
				ToolUseID: part.FunctionResponse.ID,
				Content:   part.FunctionResponse.Response,
				IsError:   part.FunctionResponse.IsError,
			})
		}
	}

	b, err := json.Marshal(blocks)
	if err != nil {
		return Message{}, fmt.Errorf("encode message: %w", err)
	}
	if role == RoleTool {
		role = RoleUser
	}
	return Message{Role: role, Content: b}, nil
}
