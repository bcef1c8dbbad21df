package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/devassist/agent"
	"github.com/hupe1980/devassist/client"
	"github.com/hupe1980/devassist/config"
	"github.com/hupe1980/devassist/core"
	"github.com/hupe1980/devassist/devtools"
	"github.com/hupe1980/devassist/logging"
	"github.com/hupe1980/devassist/model"
	"github.com/hupe1980/devassist/proposal"
	"github.com/hupe1980/devassist/repo/memrepo"
	"github.com/hupe1980/devassist/server"
)

func testServer(t *testing.T, m *model.ScriptedModel) string {
	t.Helper()
	r := memrepo.New(map[string]string{"README.md": "# demo"})
	reg, err := devtools.NewRegistry(r)
	require.NoError(t, err)
	a := agent.New(m, reg)
	gen := proposal.NewGenerator(model.NewScriptedModel(), proposal.NewMemoryStore(time.Hour))
	ts := httptest.NewServer(server.New(a, r, gen).Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestChatSession_StreamKeepsHistory(t *testing.T) {
	m := model.NewScriptedModel(
		model.ScriptedTurn{Calls: []core.FunctionCall{{ID: "r", Name: devtools.ReadFile, Arguments: `{"path":"README.md"}`}}},
		model.ScriptedTurn{Text: "It is a demo."},
		model.ScriptedTurn{Text: "Still a demo."},
	)
	url := testServer(t, m)

	var out bytes.Buffer
	s := &chatSession{client: client.New(url), out: &out, stream: true}
	require.NoError(t, s.interactive(context.Background(), strings.NewReader("what is this?\n\nclear\nand now?\nexit\n")))

	assert.Contains(t, out.String(), "It is a demo.")
	assert.Contains(t, out.String(), devtools.ReadFile)
	assert.Contains(t, out.String(), "Context cleared")
	assert.Contains(t, out.String(), "Still a demo.")

	reqs := m.Requests()
	require.Len(t, reqs, 3)
	assert.Len(t, reqs[2].Contents, 1, "clear drops the history")
	assert.Len(t, s.history, 2)
}

func TestChatSession_NonStreaming(t *testing.T) {
	m := model.NewScriptedModel(model.ScriptedTurn{Text: "first"}, model.ScriptedTurn{Text: "second"})
	url := testServer(t, m)

	var out bytes.Buffer
	s := &chatSession{client: client.New(url), out: &out}
	ctx := context.Background()
	require.NoError(t, s.send(ctx, "one"))
	require.NoError(t, s.send(ctx, "two"))

	assert.Equal(t, "first\nsecond\n", out.String())
	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Contents, 3, "second turn replays user, assistant, user")
}

func TestChatSession_ErrorIsReturned(t *testing.T) {
	url := testServer(t, model.NewScriptedModel())

	var out bytes.Buffer
	s := &chatSession{client: client.New(url), out: &out, stream: true}
	assert.Error(t, s.send(context.Background(), "hello"))
	assert.Empty(t, s.history)
}

func TestNewLogger(t *testing.T) {
	c := &config.Config{Log: config.LogConfig{Backend: "slog", Level: "debug", Format: "text"}}
	l, flush, err := newLogger(c)
	require.NoError(t, err)
	flush()
	assert.IsType(t, &logging.AssistLogger{}, l)

	c.Log.Backend = "zap"
	l, flush, err = newLogger(c)
	require.NoError(t, err)
	flush()
	assert.IsType(t, &logging.ZapAdapter{}, l)

	c.Log.Backend = "logrus"
	_, _, err = newLogger(c)
	assert.Error(t, err)
}

func TestWiring(t *testing.T) {
	c := &config.Config{
		Model: config.ModelConfig{Provider: config.ProviderAnthropic, Name: "claude-sonnet-4-20250514", MaxTokens: 1024, AnthropicAPIKey: "k"},
		GitHub: config.GitHubConfig{
			Token: "t", Owner: "octo", Repo: "demo", Branch: "main", BaseURL: "https://api.github.com",
		},
		Agent:    config.AgentConfig{MaxIterations: 7, ToolTimeout: time.Second},
		Proposal: config.ProposalConfig{TTL: time.Hour},
	}

	m, err := buildModel(c)
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-20250514", m.Info().Name)

	c.Model.Provider = config.ProviderOpenAI
	c.Model.Name = "gpt-4o"
	om, err := buildModel(c)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", om.Info().Name)

	c.Model.Provider = "bard"
	_, err = buildModel(c)
	assert.Error(t, err)

	gh, err := buildRepository(c, logging.NoOpLogger{})
	require.NoError(t, err)
	assert.Equal(t, "octo/demo", gh.FullName())

	a, err := buildAssistant(c, m, gh, logging.NoOpLogger{})
	require.NoError(t, err)
	assert.Equal(t, 7, a.MaxIterations())

	store, closeStore, sweep, err := proposalStore(context.Background(), c)
	require.NoError(t, err)
	defer closeStore()
	assert.IsType(t, &proposal.MemoryStore{}, store)
	n, err := sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
