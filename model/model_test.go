package model

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/devassist/core"
)

func TestCollect_StreamingDeltas(t *testing.T) {
	m := NewScriptedModel(ScriptedTurn{Text: "hello there world"})

	var deltas []string
	resp, err := Collect(context.Background(), m, Request{
		Contents: []core.Content{core.NewTextContent(core.RoleUser, "hi")},
		Stream:   true,
	}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "hello there world", resp.Content.Text())
	assert.Equal(t, "hello there world", strings.Join(deltas, ""))
	assert.Len(t, deltas, 3)
}

func TestCollect_ToolCalls(t *testing.T) {
	m := NewScriptedModel(ScriptedTurn{Calls: []core.FunctionCall{
		{ID: "a", Name: "list_files", Arguments: `{}`},
		{ID: "b", Name: "read_file", Arguments: `{"path":"x"}`},
	}})

	resp, err := Collect(context.Background(), m, Request{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "tool_use", resp.FinishReason)
	calls := resp.Content.FunctionCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].ID)
	assert.Equal(t, 1, m.Calls())
}

func TestCollect_ProviderError(t *testing.T) {
	boom := errors.New("rate limited")
	m := NewScriptedModel(ScriptedTurn{Err: boom})

	_, err := Collect(context.Background(), m, Request{}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestCollect_ExhaustedScript(t *testing.T) {
	m := NewScriptedModel()
	_, err := Collect(context.Background(), m, Request{}, nil)
	assert.Error(t, err)
}

func TestCollect_DeltaErrorAborts(t *testing.T) {
	m := NewScriptedModel(ScriptedTurn{Text: "a b c"})
	stop := errors.New("client gone")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := Collect(ctx, m, Request{Stream: true}, func(string) error { return stop })
	assert.ErrorIs(t, err, stop)
}

// endlessModel streams partial chunks until its context is cancelled.
type endlessModel struct {
	stopped chan struct{}
}

func (m *endlessModel) Generate(ctx context.Context, _ Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response)
	errCh := make(chan error, 1)
	go func() {
		defer close(m.stopped)
		defer close(respCh)
		defer close(errCh)
		for {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case respCh <- Response{Partial: true, Content: core.NewTextContent(core.RoleAssistant, "x")}:
			}
		}
	}()
	return respCh, errCh
}

func (m *endlessModel) Info() Info { return Info{Name: "endless"} }

func TestCollect_DeltaErrorCancelsProvider(t *testing.T) {
	m := &endlessModel{stopped: make(chan struct{})}
	stop := errors.New("client gone")

	_, err := Collect(context.Background(), m, Request{Stream: true}, func(string) error { return stop })
	assert.ErrorIs(t, err, stop)

	select {
	case <-m.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("provider still streaming after Collect returned")
	}
}

func TestScriptedModel_RecordsRequests(t *testing.T) {
	m := NewScriptedModel(ScriptedTurn{Text: "ok"})
	contents := []core.Content{core.NewTextContent(core.RoleUser, "first")}

	_, err := Collect(context.Background(), m, Request{Instructions: "sys", Contents: contents}, nil)
	require.NoError(t, err)

	contents[0] = core.NewTextContent(core.RoleUser, "mutated")
	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "sys", reqs[0].Instructions)
	assert.Equal(t, "first", reqs[0].Contents[0].Text())
}
