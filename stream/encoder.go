package stream

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/tidwall/sjson"

	"github.com/hupe1980/devassist/core"
)

// ContentType is the media type of an encoded stream.
const ContentType = "text/event-stream"

// Encoder writes events as stream records. It is safe for concurrent use;
// records are never interleaved.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

var _ core.Sink = (*Encoder)(nil)

// NewEncoder returns an encoder writing to w. When w can be flushed (an
// http.ResponseWriter or a bufio.Writer) every record is flushed after it
// is written.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Send implements core.Sink.
func (e *Encoder) Send(_ context.Context, ev core.Event) error {
	return e.Encode(ev)
}

// Encode writes one record.
func (e *Encoder) Encode(ev core.Event) error {
	payload, err := Payload(ev)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", ev.Kind, payload); err != nil {
		return fmt.Errorf("write %s record: %w", ev.Kind, err)
	}
	return e.flush()
}

func (e *Encoder) flush() error {
	switch f := e.w.(type) {
	case interface{ Flush() error }:
		return f.Flush()
	case interface{ Flush() }:
		f.Flush()
	}
	return nil
}

// Payload builds the JSON payload of a record.
func Payload(ev core.Event) (string, error) {
	var (
		out = "{}"
		err error
	)
	set := func(path string, v any) {
		if err == nil {
			out, err = sjson.Set(out, path, v)
		}
	}

	switch ev.Kind {
	case core.EventText:
		set("text", ev.Text)
	case core.EventTool:
		set("tool", ev.Tool)
		if ev.ToolCallID != "" {
			set("id", ev.ToolCallID)
		}
	case core.EventDone:
		set("text", ev.Text)
		set("toolsUsed", nonNil(ev.ToolsUsed))
	case core.EventError:
		set("error", ev.Error)
		set("toolsUsed", nonNil(ev.ToolsUsed))
		set("mutations", nonNil(ev.Mutations))
	default:
		return "", fmt.Errorf("stream: unknown event kind %q", ev.Kind)
	}
	if err != nil {
		return "", fmt.Errorf("stream: build %s payload: %w", ev.Kind, err)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
