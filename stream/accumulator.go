package stream

import (
	"errors"
	"strings"

	"github.com/hupe1980/devassist/core"
)

// RemoteError is the failure reported by an error record.
type RemoteError struct {
	Message   string
	ToolsUsed []string
	Mutations []string
}

func (e *RemoteError) Error() string { return e.Message }

// ErrIncomplete is returned by Accumulator.Result when the stream ended
// without a terminal record.
var ErrIncomplete = errors.New("stream: ended without a done record")

// Accumulator folds decoded events into the logical result: the growing
// answer text and the de-duplicated tools used. A done record is
// authoritative for both.
type Accumulator struct {
	text      strings.Builder
	toolsUsed []string
	seen      map[string]struct{}
	final     *core.Event
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{seen: make(map[string]struct{})}
}

// Add folds one event. Events after a terminal record are ignored.
func (a *Accumulator) Add(ev core.Event) {
	if a.final != nil {
		return
	}
	switch ev.Kind {
	case core.EventText:
		a.text.WriteString(ev.Text)
	case core.EventTool:
		a.addTool(ev.Tool)
	case core.EventDone, core.EventError:
		for _, name := range ev.ToolsUsed {
			a.addTool(name)
		}
		final := ev
		a.final = &final
	}
}

func (a *Accumulator) addTool(name string) {
	if name == "" {
		return
	}
	if _, ok := a.seen[name]; ok {
		return
	}
	a.seen[name] = struct{}{}
	a.toolsUsed = append(a.toolsUsed, name)
}

// Text returns the answer so far; after a done record it is the final answer.
func (a *Accumulator) Text() string {
	if a.final != nil && a.final.Kind == core.EventDone {
		return a.final.Text
	}
	return a.text.String()
}

// Streamed returns the concatenation of all text deltas.
func (a *Accumulator) Streamed() string { return a.text.String() }

// ToolsUsed returns the tool names in first-seen order.
func (a *Accumulator) ToolsUsed() []string {
	if a.final != nil && a.final.Kind == core.EventDone && a.final.ToolsUsed != nil {
		return a.final.ToolsUsed
	}
	out := make([]string, len(a.toolsUsed))
	copy(out, a.toolsUsed)
	return out
}

// Done reports whether a terminal record was seen.
func (a *Accumulator) Done() bool { return a.final != nil }

// Result returns the final answer and tools used, a *RemoteError for an
// error record, or ErrIncomplete when no terminal record arrived.
func (a *Accumulator) Result() (string, []string, error) {
	switch {
	case a.final == nil:
		return a.Text(), a.ToolsUsed(), ErrIncomplete
	case a.final.Kind == core.EventError:
		return a.Text(), a.ToolsUsed(), &RemoteError{
			Message:   a.final.Error,
			ToolsUsed: a.final.ToolsUsed,
			Mutations: a.final.Mutations,
		}
	default:
		return a.Text(), a.ToolsUsed(), nil
	}
}
