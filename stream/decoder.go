package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/devassist/core"
)

// ErrMalformedRecord reports a data line whose payload is not valid JSON.
var ErrMalformedRecord = errors.New("stream: malformed record")

// Decoder reconstructs events from stream bytes split at arbitrary
// boundaries. It runs a small state machine: bytes accumulate until a line
// delimiter, the complete line is parsed, and the buffer resets. An
// "event:" line sets the kind of the next data line; a data line without a
// preceding event line is classified by its fields.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	buf     []byte
	pending core.EventKind
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder { return &Decoder{} }

// Write consumes p and returns the events completed by it. Malformed data
// lines are skipped; the first such failure is returned alongside the
// events that did decode.
func (d *Decoder) Write(p []byte) ([]core.Event, error) {
	d.buf = append(d.buf, p...)

	var (
		events   []core.Event
		firstErr error
	)
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := string(d.buf[:i])
		d.buf = d.buf[i+1:]

		ev, ok, err := d.parseLine(line)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if ok {
			events = append(events, ev)
		}
	}

	// release the consumed prefix
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return events, firstErr
}

// Close parses a trailing unterminated line, if any, and resets the decoder.
func (d *Decoder) Close() ([]core.Event, error) {
	if len(d.buf) == 0 {
		d.pending = ""
		return nil, nil
	}
	line := string(d.buf)
	d.buf = nil

	ev, ok, err := d.parseLine(line)
	d.pending = ""
	if !ok {
		return nil, err
	}
	return []core.Event{ev}, err
}

// Buffered returns the number of bytes of an incomplete line.
func (d *Decoder) Buffered() int { return len(d.buf) }

func (d *Decoder) parseLine(line string) (core.Event, bool, error) {
	line = strings.TrimSuffix(line, "\r")

	switch {
	case line == "":
		d.pending = ""
		return core.Event{}, false, nil
	case strings.HasPrefix(line, ":"):
		return core.Event{}, false, nil
	case strings.HasPrefix(line, "event:"):
		d.pending = core.EventKind(strings.TrimSpace(strings.TrimPrefix(line, "event:")))
		return core.Event{}, false, nil
	case strings.HasPrefix(line, "data:"):
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		kind := d.pending
		d.pending = ""
		return decodePayload(kind, data)
	default:
		return core.Event{}, false, nil
	}
}

func decodePayload(kind core.EventKind, data string) (core.Event, bool, error) {
	if !gjson.Valid(data) {
		return core.Event{}, false, fmt.Errorf("%w: %q", ErrMalformedRecord, data)
	}
	res := gjson.Parse(data)

	if kind == "" {
		kind = classify(res)
	}

	switch kind {
	case core.EventText:
		return core.NewTextEvent(res.Get("text").String()), true, nil
	case core.EventTool:
		return core.NewToolEvent(res.Get("tool").String(), res.Get("id").String()), true, nil
	case core.EventDone:
		return core.NewDoneEvent(res.Get("text").String(), stringSlice(res.Get("toolsUsed"))), true, nil
	case core.EventError:
		return core.NewErrorEvent(res.Get("error").String(), stringSlice(res.Get("toolsUsed")), stringSlice(res.Get("mutations"))), true, nil
	default:
		// unknown kinds are ignored for forward compatibility
		return core.Event{}, false, nil
	}
}

func classify(res gjson.Result) core.EventKind {
	switch {
	case res.Get("error").Exists():
		return core.EventError
	case res.Get("toolsUsed").Exists():
		return core.EventDone
	case res.Get("tool").Exists():
		return core.EventTool
	case res.Get("text").Exists():
		return core.EventText
	default:
		return ""
	}
}

func stringSlice(res gjson.Result) []string {
	out := []string{}
	res.ForEach(func(_, v gjson.Result) bool {
		out = append(out, v.String())
		return true
	})
	return out
}

// DecodeStream reads r to the end, calling fn for every decoded event in
// order. A malformed record or an error from fn stops decoding.
func DecodeStream(r io.Reader, fn func(core.Event) error) error {
	d := NewDecoder()
	buf := make([]byte, 4096)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			events, err := d.Write(buf[:n])
			for _, ev := range events {
				if err := fn(ev); err != nil {
					return err
				}
			}
			if err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}

	events, err := d.Close()
	for _, ev := range events {
		if err := fn(ev); err != nil {
			return err
		}
	}
	return err
}
