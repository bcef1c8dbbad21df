package main

import (
	"context"
	"fmt"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/devassist/agent"
	"github.com/hupe1980/devassist/config"
	"github.com/hupe1980/devassist/devtools"
	"github.com/hupe1980/devassist/logging"
	"github.com/hupe1980/devassist/model"
	"github.com/hupe1980/devassist/model/anthropic"
	"github.com/hupe1980/devassist/model/openai"
	"github.com/hupe1980/devassist/proposal"
	"github.com/hupe1980/devassist/repo/github"
)

// failed model calls are fatal for a run, so SDK retries are disabled
var noRetries = 0

func buildModel(c *config.Config) (model.Model, error) {
	switch c.Model.Provider {
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(c.Model.Name)
			o.MaxTokens = c.Model.MaxTokens
			o.APIKey = c.Model.AnthropicAPIKey
			o.BaseURL = c.Model.BaseURL
			o.MaxRetries = &noRetries
		}), nil
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			o.Model = c.Model.Name
			o.MaxCompletionTokens = c.Model.MaxTokens
			o.APIKey = c.Model.OpenAIAPIKey
			o.BaseURL = c.Model.BaseURL
			o.MaxRetries = &noRetries
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
}

func buildRepository(c *config.Config, logger logging.Logger) (*github.Client, error) {
	withRepo := func(o *github.Options) {
		o.Owner = c.GitHub.Owner
		o.Repo = c.GitHub.Repo
		o.Branch = c.GitHub.Branch
		o.BaseURL = c.GitHub.BaseURL
		o.Logger = logger
	}

	var tokens github.TokenSource = github.StaticToken(c.GitHub.Token)
	if c.GitHub.UsesApp() {
		app, err := github.NewAppTokenSource(c.GitHub.AppID, c.GitHub.InstallationID, c.GitHub.PrivateKeyPath, withRepo)
		if err != nil {
			return nil, fmt.Errorf("github app auth: %w", err)
		}
		tokens = app
	}
	return github.NewClient(tokens, withRepo)
}

func buildAssistant(c *config.Config, m model.Model, r *github.Client, logger logging.Logger) (*agent.Assistant, error) {
	reg, err := devtools.NewRegistry(r)
	if err != nil {
		return nil, err
	}
	return agent.New(m, reg, func(o *agent.Options) {
		o.Instruction = agent.NewSystemPrompt(c.GitHub.Owner, c.GitHub.Repo, r.Branch())
		o.MaxIterations = c.Agent.MaxIterations
		o.ToolTimeout = c.Agent.ToolTimeout
		o.MaxParallelTools = c.Agent.MaxParallelTools
		o.Mutation = devtools.Mutation
		o.Logger = logger
	}), nil
}

// proposalStore returns the configured store, a cleanup func and a sweep
// func removing expired entries.
func proposalStore(ctx context.Context, c *config.Config) (proposal.Store, func(), func(context.Context) (int64, error), error) {
	if c.Proposal.DatabaseURL == "" {
		mem := proposal.NewMemoryStore(c.Proposal.TTL)
		sweep := func(context.Context) (int64, error) { return int64(mem.Sweep()), nil }
		return mem, func() {}, sweep, nil
	}

	openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	pg, err := proposal.OpenPostgres(openCtx, c.Proposal.DatabaseURL, c.Proposal.TTL)
	if err != nil {
		return nil, nil, nil, err
	}
	return pg, func() { _ = pg.Close() }, pg.DeleteExpired, nil
}
