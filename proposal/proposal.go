// Package proposal turns a one-line app idea into a structured project
// proposal with a single model call and keeps the result in a keyed store.
package proposal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/devassist/core"
	"github.com/hupe1980/devassist/logging"
	"github.com/hupe1980/devassist/model"
)

// MinIdeaLength is the minimum length of a trimmed idea.
const MinIdeaLength = 10

// DefaultMaxTokens caps the proposal completion independently of chat turns.
const DefaultMaxTokens = 2000

var (
	// ErrIdeaTooShort rejects ideas below MinIdeaLength.
	ErrIdeaTooShort = errors.New("proposal: idea is too short")
	// ErrNoJSON is returned when the model answer holds no JSON object.
	ErrNoJSON = errors.New("proposal: no JSON object in model response")
	// ErrNoText is returned when the model answer carries no text at all.
	ErrNoText = errors.New("proposal: model returned no text")
	// ErrNotFound is returned by stores for unknown or expired ids.
	ErrNotFound = errors.New("proposal: not found")
)

// Status is the lifecycle state of a stored proposal.
type Status string

// Proposal states.
const (
	StatusDraft    Status = "draft"
	StatusBuilding Status = "building"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Feature is one landing page feature.
type Feature struct {
	Icon        string `json:"icon"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Landing is the generated landing page copy.
type Landing struct {
	Headline string    `json:"headline"`
	Problem  string    `json:"problem"`
	Solution string    `json:"solution"`
	Features []Feature `json:"features"`
	CTA      string    `json:"cta"`
}

// Infrastructure lists the recommended building blocks.
type Infrastructure struct {
	Auth       bool `json:"auth"`
	Feedback   bool `json:"feedback"`
	Onboarding bool `json:"onboarding"`
	Payments   bool `json:"payments"`
	Analytics  bool `json:"analytics"`
}

// Meta is the SEO metadata.
type Meta struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Proposal is the generated project proposal.
type Proposal struct {
	Slug           string         `json:"slug"`
	Name           string         `json:"name"`
	Tagline        string         `json:"tagline"`
	Color          string         `json:"color"`
	Icon           string         `json:"icon"`
	Landing        Landing        `json:"landing"`
	Infrastructure Infrastructure `json:"infrastructure"`
	Meta           Meta           `json:"meta"`
}

// Stored is a proposal together with the idea it was generated from.
type Stored struct {
	ID        string    `json:"id"`
	Idea      string    `json:"idea"`
	Proposal  Proposal  `json:"proposal"`
	CreatedAt time.Time `json:"createdAt"`
	Status    Status    `json:"status"`
}

// Store is a keyed proposal store. Entries expire after the store's TTL.
type Store interface {
	Get(ctx context.Context, id string) (*Stored, error)
	Put(ctx context.Context, id string, v *Stored) error
}

const systemPrompt = `You are Launchpad, an AI that helps users turn app ideas into complete project proposals.

Given a user's app idea, generate a comprehensive proposal with:

1. **App Details**
   - A catchy, memorable name (slug-friendly, lowercase with hyphens)
   - A short tagline (under 60 characters)
   - Primary brand color (hex code)
   - Emoji icon that represents the app

2. **Landing Page Content**
   - Headline (attention-grabbing, under 10 words)
   - Problem statement (1-2 sentences about the pain point)
   - Solution statement (1-2 sentences about how the app helps)
   - 3-4 key features with icons and descriptions
   - Call-to-action text

3. **Infrastructure Recommendations**
   - auth: boolean (does the app need user accounts?)
   - feedback: boolean (should we collect user feedback?)
   - onboarding: boolean (does it need guided onboarding?)
   - payments: boolean (will users pay for this?)
   - analytics: boolean (track user behavior?)

4. **Meta Information**
   - SEO title (under 60 characters)
   - SEO description (under 160 characters)

Respond with valid JSON only. No markdown, no explanation.`

const jsonSchema = `{
  "slug": "string (lowercase, hyphens, no spaces)",
  "name": "string (display name)",
  "tagline": "string (under 60 chars)",
  "color": "string (hex like #7c3aed)",
  "icon": "string (single emoji)",
  "landing": {
    "headline": "string",
    "problem": "string",
    "solution": "string",
    "features": [
      {
        "icon": "string (emoji)",
        "title": "string",
        "description": "string"
      }
    ],
    "cta": "string"
  },
  "infrastructure": {
    "auth": boolean,
    "feedback": boolean,
    "onboarding": boolean,
    "payments": boolean,
    "analytics": boolean
  },
  "meta": {
    "title": "string",
    "description": "string"
  }
}`

// GeneratorOptions configures a Generator.
type GeneratorOptions struct {
	Logger    logging.Logger
	Now       func() time.Time
	NewID     func() string
	MaxTokens int64
}

// timer is implemented by loggers that can time an operation.
type timer interface {
	StartTimer(op string) func()
}

// Generator produces and stores proposals.
type Generator struct {
	model model.Model
	store Store
	opts  GeneratorOptions
}

// NewGenerator creates a generator writing to store.
func NewGenerator(m model.Model, store Store, optFns ...func(o *GeneratorOptions)) *Generator {
	opts := GeneratorOptions{
		Logger:    logging.NoOpLogger{},
		Now:       time.Now,
		NewID:     core.NewID,
		MaxTokens: DefaultMaxTokens,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	return &Generator{model: m, store: store, opts: opts}
}

// Generate validates the idea, asks the model for a proposal and stores it
// as a draft.
func (g *Generator) Generate(ctx context.Context, idea string) (*Stored, error) {
	idea = strings.TrimSpace(idea)
	if len([]rune(idea)) < MinIdeaLength {
		return nil, ErrIdeaTooShort
	}

	if t, ok := g.opts.Logger.(timer); ok {
		defer t.StartTimer("proposal.generate")()
	}

	prompt := fmt.Sprintf("Generate a Launchpad proposal for this app idea:\n\n\"%s\"\n\nRespond with JSON matching this schema:\n%s", idea, jsonSchema)
	resp, err := model.Collect(ctx, g.model, model.Request{
		Instructions: systemPrompt,
		Contents:     []core.Content{core.NewTextContent(core.RoleUser, prompt)},
		MaxTokens:    g.opts.MaxTokens,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("generate proposal: %w", err)
	}

	text := resp.Content.Text()
	if text == "" {
		return nil, ErrNoText
	}

	p, err := Parse(text)
	if err != nil {
		g.opts.Logger.Error("proposal.parse.error", "error", err.Error(), "response_length", len(text))
		return nil, err
	}

	stored := &Stored{
		ID:        g.opts.NewID(),
		Idea:      idea,
		Proposal:  *p,
		CreatedAt: g.opts.Now().UTC(),
		Status:    StatusDraft,
	}
	if err := g.store.Put(ctx, stored.ID, stored); err != nil {
		return nil, fmt.Errorf("store proposal: %w", err)
	}

	g.opts.Logger.Info("proposal.generated", "id", stored.ID, "slug", p.Slug)
	return stored, nil
}

// Get returns a stored proposal.
func (g *Generator) Get(ctx context.Context, id string) (*Stored, error) {
	return g.store.Get(ctx, id)
}

// Parse extracts the JSON object spanning the first "{" to the last "}" of
// text, tolerating prose around it.
func Parse(text string) (*Proposal, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, ErrNoJSON
	}
	raw := text[start : end+1]
	if !gjson.Valid(raw) {
		return nil, ErrNoJSON
	}

	var p Proposal
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	return &p, nil
}
