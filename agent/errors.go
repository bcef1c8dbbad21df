package agent

import (
	"errors"
	"fmt"
)

// ErrMaxIterations is returned when the model keeps requesting tools past
// the configured number of model calls.
var ErrMaxIterations = errors.New("max iterations reached without a final answer")

// ModelError wraps a failed model call. It is fatal for the run and never
// retried.
type ModelError struct {
	Model     string
	Iteration int
	Err       error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model %s failed on iteration %d: %v", e.Model, e.Iteration, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// RunError is returned for every failed run. Tools that already executed
// are listed in ToolsUsed; Mutations summarizes side effects that were
// applied to the repository before the failure.
type RunError struct {
	Err       error
	ToolsUsed []string
	Mutations []string
}

func (e *RunError) Error() string {
	if len(e.Mutations) > 0 {
		return fmt.Sprintf("%v (applied but incomplete: %d change(s) were made)", e.Err, len(e.Mutations))
	}
	return e.Err.Error()
}

func (e *RunError) Unwrap() error { return e.Err }

// Partial reports whether side effects were applied before the failure.
func (e *RunError) Partial() bool { return len(e.Mutations) > 0 }
