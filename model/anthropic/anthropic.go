// Package anthropic provides a model wrapper for the Anthropic Claude API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/devassist/core"
	"github.com/hupe1980/devassist/internal/util"
	"github.com/hupe1980/devassist/model"
)

// DefaultModel is the model id used when none is configured.
const DefaultModel = anthropic.Model("claude-sonnet-4-20250514")

// Options configures the Anthropic model adapter. Extend via functional
// options to preserve stability. Temperature is only sent when non-nil.
type Options struct {
	Model       anthropic.Model
	Temperature *float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
	MaxRetries  *int
	HTTPClient  *http.Client
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:     DefaultModel,
		MaxTokens: 4096,
	}
}

// NewModel creates a new Anthropic model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.MaxRetries != nil {
		clientOpts = append(clientOpts, option.WithMaxRetries(*opts.MaxRetries))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		client: &client,
		opts:   opts,
	}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client: client,
		opts:   opts,
	}
}

// Generate implements unified streaming / non-streaming generation.
// It adapts the Messages API (with tool calling) into model.Response events.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := m.buildParams(req)

		var (
			resp model.Response
			err  error
		)
		if req.Stream {
			resp, err = m.stream(ctx, params, out)
		} else {
			resp, err = m.generate(ctx, params)
		}
		if err != nil {
			errCh <- err
			return
		}

		select {
		case out <- resp:
		case <-ctx.Done():
			errCh <- ctx.Err()
		}
	}()

	return out, errCh
}

func (m *Model) buildParams(req model.Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     m.opts.Model,
		Messages:  m.buildMessages(req.Contents),
		MaxTokens: m.opts.MaxTokens,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = req.MaxTokens
	}

	if m.opts.Temperature != nil {
		params.Temperature = anthropic.Float(*m.opts.Temperature)
	}

	var system []anthropic.TextBlockParam
	if req.Instructions != "" {
		system = append(system, anthropic.TextBlockParam{Text: req.Instructions})
	}
	system = append(system, m.extractSystemMessage(req.Contents)...)
	if len(system) > 0 {
		params.System = system
	}

	if len(req.Tools) > 0 {
		params.Tools = m.buildTools(req.Tools)
	}

	return params
}

func (m *Model) generate(ctx context.Context, params anthropic.MessageNewParams) (model.Response, error) {
	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return model.Response{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var parts []core.Part

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			textBlock := block.AsText()
			if textBlock.Text != "" {
				parts = append(parts, core.TextPart{Text: textBlock.Text})
			}
		case "tool_use":
			toolBlock := block.AsToolUse()
			parts = append(parts, core.FunctionCallPart{
				FunctionCall: core.FunctionCall{
					ID:        toolBlock.ID,
					Name:      toolBlock.Name,
					Arguments: marshalInput(toolBlock.Input),
				},
			})
		}
	}

	return model.Response{
		ID:           resp.ID,
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: finishReason(string(resp.StopReason)),
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// streamBlock accumulates one content block of a streamed message.
type streamBlock struct {
	kind string
	id   string
	name string
	buf  strings.Builder
}

// stream forwards text deltas as partial responses and assembles the final
// turn from the content blocks in index order.
func (m *Model) stream(ctx context.Context, params anthropic.MessageNewParams, out chan<- model.Response) (model.Response, error) {
	stream := m.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var (
		blocks     []*streamBlock
		id         string
		stopReason string
		usage      model.TokenUsage
	)

	blockAt := func(idx int64) *streamBlock {
		for int64(len(blocks)) <= idx {
			blocks = append(blocks, &streamBlock{kind: "text"})
		}
		return blocks[idx]
	}

	for stream.Next() {
		switch ev := stream.Current().AsAny().(type) {
		case anthropic.MessageStartEvent:
			id = ev.Message.ID
			usage.PromptTokens = int(ev.Message.Usage.InputTokens)
		case anthropic.ContentBlockStartEvent:
			b := blockAt(ev.Index)
			b.kind = ev.ContentBlock.Type
			b.id = ev.ContentBlock.ID
			b.name = ev.ContentBlock.Name
		case anthropic.ContentBlockDeltaEvent:
			b := blockAt(ev.Index)
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text == "" {
					continue
				}
				b.buf.WriteString(delta.Text)
				select {
				case out <- model.Response{ID: id, Partial: true, Content: core.NewTextContent(core.RoleAssistant, delta.Text)}:
				case <-ctx.Done():
					return model.Response{}, ctx.Err()
				}
			case anthropic.InputJSONDelta:
				b.buf.WriteString(delta.PartialJSON)
			}
		case anthropic.MessageDeltaEvent:
			stopReason = string(ev.Delta.StopReason)
			usage.CompletionTokens = int(ev.Usage.OutputTokens)
		}
	}
	if err := stream.Err(); err != nil {
		return model.Response{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var parts []core.Part
	for _, b := range blocks {
		switch b.kind {
		case "text":
			if b.buf.Len() > 0 {
				parts = append(parts, core.TextPart{Text: b.buf.String()})
			}
		case "tool_use":
			args := b.buf.String()
			if strings.TrimSpace(args) == "" {
				args = "{}"
			}
			parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID:        b.id,
				Name:      b.name,
				Arguments: args,
			}})
		}
	}

	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	return model.Response{
		ID:           id,
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: finishReason(stopReason),
		Usage:        &usage,
	}, nil
}

func marshalInput(input any) string {
	if input == nil {
		return "{}"
	}
	b, err := json.Marshal(input)
	if err != nil || string(b) == "null" {
		return "{}"
	}
	return string(b)
}

func finishReason(stop string) string {
	if stop == "" {
		return "stop"
	}
	return stop
}

// buildMessages converts conversation turns to Anthropic message format.
// Tool result turns become user messages, and consecutive messages of the
// same role are merged.
func (m *Model) buildMessages(contents []core.Content) []anthropic.MessageParam {
	var messages []anthropic.MessageParam

	push := func(role anthropic.MessageParamRole, blocks []anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content = append(messages[n-1].Content, blocks...)
			return
		}
		messages = append(messages, anthropic.MessageParam{Role: role, Content: blocks})
	}

	for _, c := range contents {
		switch c.Role {
		case core.RoleSystem:
			continue // handled separately
		case core.RoleAssistant:
			push(anthropic.MessageParamRoleAssistant, m.buildAssistantContent(c.Parts))
		case core.RoleTool:
			push(anthropic.MessageParamRoleUser, m.buildToolResults(c.Parts))
		default:
			push(anthropic.MessageParamRoleUser, m.buildUserContent(c.Parts))
		}
	}

	return messages
}

// extractSystemMessage extracts system message blocks.
func (m *Model) extractSystemMessage(contents []core.Content) []anthropic.TextBlockParam {
	var systemBlocks []anthropic.TextBlockParam

	for _, c := range contents {
		if c.Role == core.RoleSystem {
			if text := c.Text(); text != "" {
				systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: text})
			}
		}
	}

	return systemBlocks
}

// buildUserContent builds content for user messages.
func (m *Model) buildUserContent(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion

	for _, p := range parts {
		if tp, ok := p.(core.TextPart); ok && tp.Text != "" {
			content = append(content, anthropic.NewTextBlock(tp.Text))
		}
	}

	return content
}

// buildToolResults answers tool_use blocks of the preceding assistant message.
func (m *Model) buildToolResults(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion

	for _, p := range parts {
		switch part := p.(type) {
		case core.FunctionResponsePart:
			fr := part.FunctionResponse
			content = append(content, anthropic.NewToolResultBlock(fr.ID, fr.Response, fr.IsError))
		case core.TextPart:
			if part.Text != "" {
				content = append(content, anthropic.NewTextBlock(part.Text))
			}
		}
	}

	return content
}

// buildAssistantContent builds content for assistant messages.
func (m *Model) buildAssistantContent(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion

	for _, p := range parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				content = append(content, anthropic.NewTextBlock(part.Text))
			}
		case core.FunctionCallPart:
			input := json.RawMessage(part.FunctionCall.Arguments)
			if !json.Valid(input) {
				input = json.RawMessage("{}")
			}

			content = append(content, anthropic.NewToolUseBlock(
				part.FunctionCall.ID,
				input,
				part.FunctionCall.Name,
			))
		}
	}

	return content
}

// buildTools converts tool definitions to Anthropic tool format.
func (m *Model) buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(tools))

	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if params := tool.Function.Parameters; params != nil {
			if properties, exists := params["properties"]; exists {
				inputSchema.Properties = properties
			}
			inputSchema.Required = util.RequiredFields(params)
		}

		toolUnion := anthropic.ToolUnionParamOfTool(inputSchema, tool.Function.Name)
		if t := toolUnion.OfTool; t != nil && tool.Function.Description != "" {
			t.Description = anthropic.String(tool.Function.Description)
		}

		anthropicTools[i] = toolUnion
	}

	return anthropicTools
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
