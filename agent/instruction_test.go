package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	text string
	err  error
}

func (m mockProvider) Instruction(context.Context) (string, error) { return m.text, m.err }

func TestInstruction_Static(t *testing.T) {
	inst := NewInstructionFromText("static instruction")
	if !inst.IsStatic() {
		t.Fatalf("expected static instruction")
	}
	got, err := inst.Resolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "static instruction" {
		t.Fatalf("expected 'static instruction', got %q", got)
	}
}

func TestInstruction_NewInstructionFromFunc(t *testing.T) {
	inst := NewInstructionFromFunc(func(context.Context) (string, error) { return "dynamic via func", nil })
	if inst.IsStatic() {
		t.Fatalf("expected dynamic instruction")
	}
	got, err := inst.Resolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "dynamic via func" {
		t.Fatalf("expected 'dynamic via func', got %q", got)
	}
}

func TestInstruction_NewInstructionFromProvider(t *testing.T) {
	inst := NewInstructionFromProvider(mockProvider{text: "provider text"})
	got, err := inst.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "provider text", got)
}

func TestInstruction_ErrorPropagation(t *testing.T) {
	expectedErr := errors.New("boom")
	inst := NewInstructionFromProvider(mockProvider{err: expectedErr})
	_, err := inst.Resolve(context.Background())
	if !errors.Is(err, expectedErr) {
		t.Fatalf("expected error %v, got %v", expectedErr, err)
	}
}

func TestInstruction_Template(t *testing.T) {
	inst := NewInstructionFromTemplate("repo {{.Owner}}/{{.Repo}}", map[string]any{"Owner": "o", "Repo": "r"})
	got, err := inst.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "repo o/r", got)

	bad := NewInstructionFromTemplate("{{.Owner", nil)
	_, err = bad.Resolve(context.Background())
	assert.Error(t, err)
}

func TestNewSystemPrompt(t *testing.T) {
	got, err := NewSystemPrompt("paulthebutcher", "ethos", "main").Resolve(context.Background())
	require.NoError(t, err)
	assert.Contains(t, got, "(paulthebutcher/ethos, branch main)")
	assert.Contains(t, got, "Every write_file call creates a real commit")
	assert.False(t, strings.Contains(got, "{{"))
}
