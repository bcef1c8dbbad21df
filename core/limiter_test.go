package core

import (
	"errors"
	"testing"
)

func TestIterationLimiter(t *testing.T) {
	l := NewIterationLimiter(2)
	if err := l.Increment(); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if err := l.Increment(); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if got := l.Remaining(); got != 0 {
		t.Fatalf("Remaining() = %d", got)
	}
	err := l.Increment()
	if !errors.Is(err, ErrIterationLimit) {
		t.Fatalf("expected ErrIterationLimit, got %v", err)
	}
	if l.Count() != 3 {
		t.Fatalf("Count() = %d", l.Count())
	}
}

func TestIterationLimiter_Unlimited(t *testing.T) {
	l := NewIterationLimiter(0)
	for i := 0; i < 100; i++ {
		if err := l.Increment(); err != nil {
			t.Fatalf("unexpected limit: %v", err)
		}
	}
	if l.Remaining() != -1 {
		t.Fatalf("expected -1 for unlimited")
	}
}
