// Package config loads the process configuration from the environment and
// an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrMissingModelKey reports that the selected model provider has no API key.
	ErrMissingModelKey = errors.New("model API key not configured")
	// ErrMissingRepoToken reports that no repository credential is configured.
	ErrMissingRepoToken = errors.New("repository credentials not configured")
)

// MissingError names the unset setting behind a configuration sentinel.
type MissingError struct {
	Setting string
	Err     error
}

func (e *MissingError) Error() string { return e.Setting + " not configured" }

func (e *MissingError) Unwrap() error { return e.Err }

// Model providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// ModelConfig selects and configures the model client.
type ModelConfig struct {
	Provider        string `mapstructure:"provider"`
	Name            string `mapstructure:"name"`
	MaxTokens       int64  `mapstructure:"max_tokens"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	BaseURL         string `mapstructure:"base_url"`
}

// GitHubConfig addresses the repository and its credentials. Token wins over
// GitHub App credentials when both are set.
type GitHubConfig struct {
	Token          string `mapstructure:"token"`
	AppID          int64  `mapstructure:"app_id"`
	InstallationID int64  `mapstructure:"installation_id"`
	PrivateKeyPath string `mapstructure:"private_key_path"`
	Owner          string `mapstructure:"owner"`
	Repo           string `mapstructure:"repo"`
	Branch         string `mapstructure:"branch"`
	BaseURL        string `mapstructure:"base_url"`
}

// UsesApp reports whether GitHub App authentication is configured.
func (g GitHubConfig) UsesApp() bool {
	return g.Token == "" && g.AppID != 0 && g.PrivateKeyPath != ""
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	AuthToken       string        `mapstructure:"auth_token"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AgentConfig bounds the orchestration loop.
type AgentConfig struct {
	MaxIterations    int           `mapstructure:"max_iterations"`
	ToolTimeout      time.Duration `mapstructure:"tool_timeout"`
	MaxParallelTools int           `mapstructure:"max_parallel_tools"`
}

// ProposalConfig configures the proposal store. An empty DatabaseURL keeps
// proposals in memory.
type ProposalConfig struct {
	TTL         time.Duration `mapstructure:"ttl"`
	DatabaseURL string        `mapstructure:"database_url"`
	MaxTokens   int64         `mapstructure:"max_tokens"`
}

// LogConfig selects the logging backend.
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	Backend string `mapstructure:"backend"`
}

// Config is the complete process configuration.
type Config struct {
	Model    ModelConfig    `mapstructure:"model"`
	GitHub   GitHubConfig   `mapstructure:"github"`
	Server   ServerConfig   `mapstructure:"server"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Proposal ProposalConfig `mapstructure:"proposal"`
	Log      LogConfig      `mapstructure:"log"`
}

// Options configures Load.
type Options struct {
	// ConfigFile is an optional YAML file read before the environment.
	ConfigFile string
	// EnvPrefix prefixes the generic environment keys.
	EnvPrefix string
}

// well-known variable names shared with the hosted deployment
var envAliases = map[string]string{
	"model.anthropic_api_key": "ANTHROPIC_API_KEY",
	"model.openai_api_key":    "OPENAI_API_KEY",
	"github.token":            "GITHUB_TOKEN",
	"github.app_id":           "GITHUB_APP_ID",
	"github.installation_id":  "GITHUB_INSTALLATION_ID",
	"github.private_key_path": "GITHUB_PRIVATE_KEY_PATH",
	"github.owner":            "GITHUB_OWNER",
	"github.repo":             "GITHUB_REPO",
	"github.branch":           "GITHUB_BRANCH",
	"server.auth_token":       "DEV_AUTH_TOKEN",
	"proposal.database_url":   "DATABASE_URL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model.provider", ProviderAnthropic)
	v.SetDefault("model.name", "claude-sonnet-4-20250514")
	v.SetDefault("model.max_tokens", 4096)
	v.SetDefault("model.anthropic_api_key", "")
	v.SetDefault("model.openai_api_key", "")
	v.SetDefault("model.base_url", "")

	v.SetDefault("github.token", "")
	v.SetDefault("github.app_id", 0)
	v.SetDefault("github.installation_id", 0)
	v.SetDefault("github.private_key_path", "")
	v.SetDefault("github.owner", "paulthebutcher")
	v.SetDefault("github.repo", "ethos")
	v.SetDefault("github.branch", "main")
	v.SetDefault("github.base_url", "https://api.github.com")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.auth_token", "")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("agent.max_iterations", 20)
	v.SetDefault("agent.tool_timeout", 30*time.Second)
	v.SetDefault("agent.max_parallel_tools", 0)

	v.SetDefault("proposal.ttl", 24*time.Hour)
	v.SetDefault("proposal.database_url", "")
	v.SetDefault("proposal.max_tokens", 2000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.backend", "slog")
}

// Load reads defaults, the optional config file and the environment, in
// increasing order of precedence. Every key is also reachable as
// <PREFIX>_<SECTION>_<KEY>, e.g. DEVASSIST_AGENT_MAX_ITERATIONS.
func Load(optFns ...func(o *Options)) (*Config, error) {
	opts := Options{EnvPrefix: "DEVASSIST"}
	for _, fn := range optFns {
		fn(&opts)
	}

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(opts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range envAliases {
		// the prefixed name keeps precedence over the well-known alias
		prefixed := strings.ToUpper(opts.EnvPrefix + "_" + strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate reports missing credentials as *MissingError values wrapping
// ErrMissingModelKey or ErrMissingRepoToken, and rejects invalid settings.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case ProviderAnthropic:
		if c.Model.AnthropicAPIKey == "" {
			return &MissingError{Setting: "ANTHROPIC_API_KEY", Err: ErrMissingModelKey}
		}
	case ProviderOpenAI:
		if c.Model.OpenAIAPIKey == "" {
			return &MissingError{Setting: "OPENAI_API_KEY", Err: ErrMissingModelKey}
		}
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}

	if c.GitHub.Token == "" && !c.GitHub.UsesApp() {
		return &MissingError{Setting: "GITHUB_TOKEN", Err: ErrMissingRepoToken}
	}
	if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
		return errors.New("GITHUB_OWNER and GITHUB_REPO must not be empty")
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations)
	}
	return nil
}
