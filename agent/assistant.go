package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/devassist/core"
	"github.com/hupe1980/devassist/logging"
	"github.com/hupe1980/devassist/model"
	"github.com/hupe1980/devassist/tool"
)

// DefaultMaxIterations caps the number of model calls per run.
const DefaultMaxIterations = 20

// NoResponse is the answer reported when the final turn carries no text.
const NoResponse = "No response"

// MutationFunc classifies a tool result as an applied side effect and
// returns its one-line summary.
type MutationFunc func(resp core.FunctionResponse) (string, bool)

// Options configures an Assistant.
type Options struct {
	Instruction Instruction
	// MaxIterations bounds model calls per run; <= 0 selects the default.
	MaxIterations int
	// ToolTimeout bounds each tool call; <= 0 selects tool.DefaultTimeout.
	ToolTimeout time.Duration
	// MaxParallelTools limits concurrent tool calls of one turn; <= 0 is unbounded.
	MaxParallelTools int
	// Mutation reports side effects for partial-failure reporting.
	Mutation MutationFunc
	Logger   logging.Logger
}

// Result is the outcome of a successful run.
type Result struct {
	Text       string
	ToolsUsed  []string
	Mutations  []string
	Iterations int
}

// Assistant drives the model / tool loop. It is stateless between runs and
// safe for concurrent use.
type Assistant struct {
	model    model.Model
	registry *tool.Registry
	opts     Options
}

// runLogger is implemented by loggers with domain helpers for run metrics.
type runLogger interface {
	LogModelCall(model string, tokens int, dur time.Duration, success bool, err error)
	LogRun(iterations int, toolsUsed []string, dur time.Duration, err error)
}

// New creates an Assistant over m and the tools in registry.
func New(m model.Model, registry *tool.Registry, optFns ...func(o *Options)) *Assistant {
	opts := Options{
		MaxIterations: DefaultMaxIterations,
		ToolTimeout:   tool.DefaultTimeout,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = tool.DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if registry == nil {
		registry, _ = tool.NewRegistry()
	}

	return &Assistant{model: m, registry: registry, opts: opts}
}

// MaxIterations returns the configured model call ceiling.
func (a *Assistant) MaxIterations() int { return a.opts.MaxIterations }

// usage tracks the tools invoked during one run.
type usage struct {
	seen      map[string]struct{}
	toolsUsed []string
	mutations []string
}

func (u *usage) use(name string) {
	if _, ok := u.seen[name]; ok {
		return
	}
	u.seen[name] = struct{}{}
	u.toolsUsed = append(u.toolsUsed, name)
}

// Run executes the loop for one conversation. When sink is non-nil the model
// is asked to stream and text deltas, tool starts and the terminal event are
// sent to it; a nil sink selects the non-streaming mode.
//
// Every failure is returned as a *RunError wrapping ErrMaxIterations, a
// *ModelError or the context error.
func (a *Assistant) Run(ctx context.Context, conv core.Conversation, sink core.Sink) (*Result, error) {
	start := time.Now()
	streaming := sink != nil
	if sink == nil {
		sink = core.DiscardSink
	}

	u := &usage{seen: make(map[string]struct{}), toolsUsed: []string{}}
	limiter := core.NewIterationLimiter(a.opts.MaxIterations)

	res, err := a.run(ctx, conv, sink, streaming, u, limiter)

	iterations := limiter.Count()
	if l, ok := a.opts.Logger.(runLogger); ok {
		l.LogRun(iterations, u.toolsUsed, time.Since(start), err)
	} else {
		a.opts.Logger.Info("assistant.run.complete", "iterations", iterations, "tools_used", u.toolsUsed,
			"duration_ms", time.Since(start).Milliseconds(), "error", err != nil)
	}

	if err != nil {
		runErr := &RunError{Err: err, ToolsUsed: u.toolsUsed, Mutations: u.mutations}
		if ctx.Err() == nil {
			if sendErr := sink.Send(ctx, core.NewErrorEvent(runErr.Error(), u.toolsUsed, u.mutations)); sendErr != nil {
				a.opts.Logger.Warn("assistant.sink.error", "error", sendErr.Error())
			}
		}
		return nil, runErr
	}
	return res, nil
}

func (a *Assistant) run(
	ctx context.Context,
	conv core.Conversation,
	sink core.Sink,
	streaming bool,
	u *usage,
	limiter *core.IterationLimiter,
) (*Result, error) {
	instructions, err := a.opts.Instruction.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve instruction: %w", err)
	}

	executor := tool.NewExecutor(a.registry, func(o *tool.ExecutorOptions) {
		o.Timeout = a.opts.ToolTimeout
		o.MaxParallel = a.opts.MaxParallelTools
		o.Logger = a.opts.Logger
		o.OnStart = func(ctx context.Context, call core.FunctionCall) {
			if err := sink.Send(ctx, core.NewToolEvent(call.Name, call.ID)); err != nil {
				a.opts.Logger.Warn("assistant.sink.error", "tool", call.Name, "error", err.Error())
			}
		}
	})

	transcript := conv.Clone()
	defs := a.registry.Definitions()
	modelName := a.model.Info().Name

	onDelta := func(delta string) error {
		return sink.Send(ctx, core.NewTextEvent(delta))
	}

	for {
		// a disconnected client stops the loop before the next remote call
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := limiter.Increment(); err != nil {
			a.opts.Logger.Warn("assistant.max_iterations", "max", a.opts.MaxIterations)
			return nil, fmt.Errorf("%w (%d model calls)", ErrMaxIterations, a.opts.MaxIterations)
		}
		iteration := limiter.Count()

		req := model.Request{
			Instructions: instructions,
			Contents:     transcript,
			Tools:        defs,
			Stream:       streaming,
		}

		callStart := time.Now()
		resp, err := model.Collect(ctx, a.model, req, onDelta)
		a.logModelCall(modelName, resp, time.Since(callStart), err)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &ModelError{Model: modelName, Iteration: iteration, Err: err}
		}

		calls := resp.Content.FunctionCalls()
		if len(calls) == 0 {
			text := firstText(resp.Content)
			if text == "" {
				text = NoResponse
			}
			if err := sink.Send(ctx, core.NewDoneEvent(text, u.toolsUsed)); err != nil {
				return nil, fmt.Errorf("send done event: %w", err)
			}
			return &Result{
				Text:       text,
				ToolsUsed:  u.toolsUsed,
				Mutations:  u.mutations,
				Iterations: iteration,
			}, nil
		}

		for _, c := range calls {
			u.use(c.Name)
		}
		a.opts.Logger.Debug("assistant.tools.requested", "iteration", iteration, "count", len(calls))

		results := executor.Execute(ctx, calls)
		if a.opts.Mutation != nil {
			for _, r := range results {
				if summary, ok := a.opts.Mutation(r); ok {
					u.mutations = append(u.mutations, summary)
				}
			}
		}

		transcript = append(transcript,
			core.Content{Role: core.RoleAssistant, Parts: resp.Content.Parts},
			core.NewToolResultContent(results),
		)
	}
}

func (a *Assistant) logModelCall(name string, resp model.Response, dur time.Duration, err error) {
	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	if l, ok := a.opts.Logger.(runLogger); ok {
		l.LogModelCall(name, tokens, dur, err == nil, err)
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		a.opts.Logger.Error("assistant.model.call", "model", name, "duration_ms", dur.Milliseconds(), "error", err.Error())
		return
	}
	a.opts.Logger.Debug("assistant.model.call", "model", name, "tokens", tokens, "duration_ms", dur.Milliseconds())
}

// firstText returns the first text block of a turn, the answer shown to
// the user.
func firstText(c core.Content) string {
	for _, p := range c.Parts {
		if tp, ok := p.(core.TextPart); ok {
			return tp.Text
		}
	}
	return ""
}
