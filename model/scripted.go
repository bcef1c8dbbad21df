package model

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/devassist/core"
)

// ScriptedTurn is one canned model reply. Err, when set, is emitted instead
// of a response.
type ScriptedTurn struct {
	Text  string
	Calls []core.FunctionCall
	Err   error
}

// ScriptedModel is a deterministic in‑memory Model replaying canned turns in
// order. It records every request for later inspection and is safe for
// concurrent use.
type ScriptedModel struct {
	mu       sync.Mutex
	info     Info
	turns    []ScriptedTurn
	requests []Request
}

// NewScriptedModel constructs a ScriptedModel with tool support enabled.
func NewScriptedModel(turns ...ScriptedTurn) *ScriptedModel {
	return &ScriptedModel{
		info:  Info{Name: "scripted", Provider: "scripted", SupportsTools: true},
		turns: turns,
	}
}

// Requests returns a copy of the recorded requests.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of Generate invocations so far.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.requests)
}

// Generate implements Model; in streaming mode the text is emitted word by
// word before the final response.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	idx := len(m.requests)
	req.Contents = append([]core.Content(nil), req.Contents...)
	m.requests = append(m.requests, req)
	var (
		turn ScriptedTurn
		ok   = idx < len(m.turns)
	)
	if ok {
		turn = m.turns[idx]
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if !ok {
			errCh <- fmt.Errorf("scripted model: no turn scripted for call %d", idx+1)
			return
		}
		if turn.Err != nil {
			errCh <- turn.Err
			return
		}

		if req.Stream && turn.Text != "" {
			for _, chunk := range strings.SplitAfter(turn.Text, " ") {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Content: core.NewTextContent(core.RoleAssistant, chunk)}:
				}
			}
		}

		var parts []core.Part
		if turn.Text != "" {
			parts = append(parts, core.TextPart{Text: turn.Text})
		}
		for _, c := range turn.Calls {
			parts = append(parts, core.FunctionCallPart{FunctionCall: c})
		}

		finish := "end_turn"
		if len(turn.Calls) > 0 {
			finish = "tool_use"
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{
			Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
			FinishReason: finish,
		}:
		}
	}()

	return respCh, errCh
}

// Info implements Model interface.
func (m *ScriptedModel) Info() Info { return m.info }
