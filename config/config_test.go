package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range envAliases {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ProviderAnthropic, cfg.Model.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Model.Name)
	assert.Equal(t, int64(4096), cfg.Model.MaxTokens)
	assert.Equal(t, "paulthebutcher", cfg.GitHub.Owner)
	assert.Equal(t, "ethos", cfg.GitHub.Repo)
	assert.Equal(t, "main", cfg.GitHub.Branch)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 20, cfg.Agent.MaxIterations)
	assert.Equal(t, 30*time.Second, cfg.Agent.ToolTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Proposal.TTL)
	assert.Equal(t, int64(2000), cfg.Proposal.MaxTokens)
	assert.Equal(t, "slog", cfg.Log.Backend)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("GITHUB_TOKEN", "ghp")
	t.Setenv("GITHUB_OWNER", "acme")
	t.Setenv("DEV_AUTH_TOKEN", "secret")
	t.Setenv("DEVASSIST_AGENT_MAX_ITERATIONS", "5")
	t.Setenv("DEVASSIST_AGENT_TOOL_TIMEOUT", "2s")
	t.Setenv("DEVASSIST_LOG_BACKEND", "zap")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-ant", cfg.Model.AnthropicAPIKey)
	assert.Equal(t, "ghp", cfg.GitHub.Token)
	assert.Equal(t, "acme", cfg.GitHub.Owner)
	assert.Equal(t, "secret", cfg.Server.AuthToken)
	assert.Equal(t, 5, cfg.Agent.MaxIterations)
	assert.Equal(t, 2*time.Second, cfg.Agent.ToolTimeout)
	assert.Equal(t, "zap", cfg.Log.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_PrefixedBeatsAlias(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITHUB_REPO", "from-alias")
	t.Setenv("DEVASSIST_GITHUB_REPO", "from-prefix")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-prefix", cfg.GitHub.Repo)
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "devassist.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  provider: openai
  name: gpt-4o
github:
  repo: site
  branch: develop
proposal:
  ttl: 1h
  max_tokens: 1500
`), 0o600))
	t.Setenv("GITHUB_BRANCH", "release")

	cfg, err := Load(func(o *Options) { o.ConfigFile = path })
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.Model.Provider)
	assert.Equal(t, "gpt-4o", cfg.Model.Name)
	assert.Equal(t, "site", cfg.GitHub.Repo)
	assert.Equal(t, "release", cfg.GitHub.Branch, "environment overrides the file")
	assert.Equal(t, time.Hour, cfg.Proposal.TTL)
	assert.Equal(t, int64(1500), cfg.Proposal.MaxTokens)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(func(o *Options) { o.ConfigFile = filepath.Join(t.TempDir(), "nope.yaml") })
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Model:  ModelConfig{Provider: ProviderAnthropic, AnthropicAPIKey: "k"},
			GitHub: GitHubConfig{Token: "t", Owner: "o", Repo: "r"},
			Agent:  AgentConfig{MaxIterations: 20},
		}
	}

	t.Run("ok", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing anthropic key", func(t *testing.T) {
		cfg := valid()
		cfg.Model.AnthropicAPIKey = ""
		err := cfg.Validate()
		require.ErrorIs(t, err, ErrMissingModelKey)
		assert.Equal(t, "ANTHROPIC_API_KEY not configured", err.Error())
	})

	t.Run("missing openai key", func(t *testing.T) {
		cfg := valid()
		cfg.Model.Provider = ProviderOpenAI
		err := cfg.Validate()
		require.ErrorIs(t, err, ErrMissingModelKey)
		assert.Equal(t, "OPENAI_API_KEY not configured", err.Error())
	})

	t.Run("missing repo token", func(t *testing.T) {
		cfg := valid()
		cfg.GitHub.Token = ""
		err := cfg.Validate()
		require.ErrorIs(t, err, ErrMissingRepoToken)
		assert.Equal(t, "GITHUB_TOKEN not configured", err.Error())
	})

	t.Run("app credentials replace token", func(t *testing.T) {
		cfg := valid()
		cfg.GitHub.Token = ""
		cfg.GitHub.AppID = 42
		cfg.GitHub.PrivateKeyPath = "/tmp/key.pem"
		assert.True(t, cfg.GitHub.UsesApp())
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := valid()
		cfg.Model.Provider = "bard"
		assert.Error(t, cfg.Validate())
	})

	t.Run("non-positive iterations", func(t *testing.T) {
		cfg := valid()
		cfg.Agent.MaxIterations = 0
		assert.Error(t, cfg.Validate())
	})
}
