package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/devassist/core"
	"github.com/hupe1980/devassist/logging"
)

// DefaultTimeout bounds a single tool call.
const DefaultTimeout = 30 * time.Second

// ExecutorOptions configures the parallel executor.
type ExecutorOptions struct {
	// Timeout bounds each call; <= 0 disables the per-call deadline.
	Timeout time.Duration
	// MaxParallel limits concurrently running calls; <= 0 means len(calls).
	MaxParallel int
	// Logger receives per-call diagnostics.
	Logger logging.Logger
	// OnStart is invoked from the call's goroutine right before the tool runs.
	OnStart func(ctx context.Context, call core.FunctionCall)
}

// Executor runs one batch of tool calls concurrently and returns exactly one
// result per call, in request order, correlated by the original call id.
// Execute never returns an error: every failure becomes result text.
type Executor struct {
	registry *Registry
	opts     ExecutorOptions
}

// toolCallLogger is implemented by loggers with a domain helper for tool metrics.
type toolCallLogger interface {
	LogToolCall(tool string, dur time.Duration, success bool, err error)
}

// NewExecutor constructs an executor over the given registry.
func NewExecutor(registry *Registry, optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{
		Timeout: DefaultTimeout,
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Executor{registry: registry, opts: opts}
}

// Execute fans the calls out and waits for all of them.
func (e *Executor) Execute(ctx context.Context, calls []core.FunctionCall) []core.FunctionResponse {
	n := len(calls)
	if n == 0 {
		return nil
	}

	results := make([]core.FunctionResponse, n)

	// Fast path: single call, execute inline.
	if n == 1 {
		results[0] = e.executeOne(ctx, calls[0])
		return results
	}

	maxPar := e.opts.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxPar)

	batchStart := time.Now()
	for i := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, fc core.FunctionCall) {
			defer wg.Done()
			defer func() { <-sem }()

			// each goroutine owns exactly one slot
			results[idx] = e.executeOne(ctx, fc)
		}(i, calls[i])
	}

	wg.Wait()

	e.opts.Logger.Debug(
		"tool.batch.complete",
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results
}

type callOutcome struct {
	text string
	err  error
}

func (e *Executor) executeOne(ctx context.Context, fc core.FunctionCall) core.FunctionResponse {
	resp := core.FunctionResponse{ID: fc.ID, Name: fc.Name}

	impl, ok := e.registry.Lookup(fc.Name)
	if !ok {
		e.opts.Logger.Warn("tool.call.unknown", "tool", fc.Name, "function_call_id", fc.ID)
		resp.Response = fmt.Sprintf("Unknown tool: %s", fc.Name)
		resp.IsError = true
		return resp
	}

	if err := ctx.Err(); err != nil {
		resp.Response = fmt.Sprintf("Error: %s was not run: %v", fc.Name, err)
		resp.IsError = true
		return resp
	}

	if e.opts.OnStart != nil {
		e.opts.OnStart(ctx, fc)
	}

	callCtx := ctx
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan callOutcome, 1)
	go func() {
		var out callOutcome
		defer func() {
			if r := recover(); r != nil {
				e.opts.Logger.Error("tool.call.panic", "tool", fc.Name, "recover", r, "stack", string(debug.Stack()))
				out = callOutcome{err: NewToolError(fc.Name, fmt.Sprintf("panic: %v", r), CodePanic)}
			}
			done <- out
		}()
		out.text, out.err = invoke(impl, core.NewToolContext(callCtx, fc, e.opts.Logger), fc)
	}()

	var out callOutcome
	select {
	case out = <-done:
	case <-callCtx.Done():
		// a tool ignoring its context is abandoned; its outcome is discarded
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			out.err = NewToolError(fc.Name, fmt.Sprintf("%s timed out after %s", fc.Name, e.opts.Timeout), CodeTimeout)
		} else {
			out.err = callCtx.Err()
		}
	}
	dur := time.Since(start)

	if l, ok := e.opts.Logger.(toolCallLogger); ok {
		l.LogToolCall(fc.Name, dur, out.err == nil, out.err)
	} else {
		e.opts.Logger.Info("tool.call.executed", "tool", fc.Name, "function_call_id", fc.ID, "duration_ms", dur.Milliseconds(), "error", out.err != nil)
	}

	if out.err != nil {
		resp.Response = "Error: " + errorText(out.err)
		resp.IsError = true
		return resp
	}
	resp.Response = out.text
	return resp
}

// invoke decodes the JSON arguments and calls the tool.
func invoke(impl Tool, toolCtx *core.ToolContext, fc core.FunctionCall) (string, error) {
	argMap := map[string]any{}
	if fc.Arguments != "" {
		if err := json.Unmarshal([]byte(fc.Arguments), &argMap); err != nil {
			return "", NewToolError(fc.Name, fmt.Sprintf("invalid arguments: %v", err), CodeValidation)
		}
		if argMap == nil {
			argMap = map[string]any{}
		}
	}
	return impl.Call(toolCtx, argMap)
}

// errorText renders the message the model sees for a failed call.
func errorText(err error) string {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Message
	}
	return err.Error()
}
