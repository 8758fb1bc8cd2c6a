package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/tmaxmax/go-sse"
)

// doneSentinel is sent by some servers as the data of the last event.
const doneSentinel = "[DONE]"

// eventStreamFrames reads body as a text/event-stream. go-sse buffers partial lines across reads,
// so events split over arbitrary chunk boundaries arrive whole. Events whose data does not decode
// are logged and skipped; a stream that ends simply stops yielding.
func (d Decoder) eventStreamFrames(body io.Reader, yield func(Frame, error) bool) {
	var config *sse.ReadConfig
	if d.MaxEventSize > 0 {
		config = &sse.ReadConfig{
			MaxEventSize: d.MaxEventSize,
		}
	}

	for ev, err := range sse.Read(body, config) {
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				yield(Frame{}, &TransportError{Err: err})
				return
			}
			yield(Frame{}, &TransportError{Err: fmt.Errorf("failed to read event stream: %w", err)})
			return
		}

		for _, f := range d.decodeEvent(ev.Type, ev.Data) {
			if err := f.Validate(); err != nil {
				yield(Frame{}, err)
				return
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

// decodeEvent decodes the data of one event. The data is first tried as a single frame; if that
// fails each data line is tried on its own, which tolerates servers that put several frames or a
// garbled prelude into one event.
func (d Decoder) decodeEvent(typ, data string) []Frame {
	data = strings.TrimSpace(data)
	if data == "" || data == doneSentinel {
		return nil
	}

	var f Frame
	err := json.Unmarshal([]byte(data), &f)
	if err == nil {
		return []Frame{f}
	}
	if !strings.Contains(data, "\n") {
		d.skip(typ, data, err)
		return nil
	}

	var frames []Frame
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == doneSentinel {
			continue
		}
		var f Frame
		if err := json.Unmarshal([]byte(line), &f); err != nil {
			d.skip(typ, line, err)
			continue
		}
		frames = append(frames, f)
	}
	return frames
}

func (d Decoder) skip(typ, data string, err error) {
	d.logger().Warn("failed to unmarshal event data",
		slog.String("type", typ),
		slog.String("data", truncateBody([]byte(data))),
		slog.String("err", err.Error()))
	d.metrics().SkippedEvent("malformed")
}
