package core

import (
	"errors"
	"fmt"
	"sync"
)

// ErrIterationLimit is returned once the model round-trip ceiling is exceeded.
var ErrIterationLimit = errors.New("iteration limit exceeded")

// IterationLimiter enforces a maximum number of model calls per run.
type IterationLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewIterationLimiter creates a new limiter with a max number of calls.
// If max == 0, unlimited calls are allowed.
func NewIterationLimiter(max int) *IterationLimiter {
	return &IterationLimiter{max: max}
}

// Increment increases the call counter and returns an error wrapping
// ErrIterationLimit if the limit is exceeded.
func (l *IterationLimiter) Increment() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
	if l.max > 0 && l.count > l.max {
		return fmt.Errorf("%w: max %d model calls", ErrIterationLimit, l.max)
	}

	return nil
}

// Count returns the current number of calls made.
func (l *IterationLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// Remaining returns how many calls are left before hitting the limit.
func (l *IterationLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max == 0 {
		return -1 // unlimited
	}

	return l.max - l.count
}
