package mcp

import (
	"encoding/json"
	"io"
	"iter"
	"log/slog"
	"mime"
	"net/http"
)

// TransportKind identifies how the server chose to encode its reply.
type TransportKind int

const (
	// TransportJSON is a reply whose body is one JSON-RPC frame.
	TransportJSON TransportKind = iota
	// TransportEventStream is a reply whose body is a text/event-stream carrying frames as event data.
	TransportEventStream
)

const (
	mediaTypeJSON        = "application/json"
	mediaTypeEventStream = "text/event-stream"

	// acceptBoth is sent on every request; the server picks the encoding.
	acceptBoth = mediaTypeJSON + ", " + mediaTypeEventStream

	errorBodyReadLimit = 4096
)

// Decoder turns an HTTP reply into JSON-RPC frames, hiding whether the server answered with a
// single JSON document or with an event stream. The zero value is ready to use.
type Decoder struct {
	// MaxEventSize bounds a single event in an event-stream reply. Zero uses the go-sse default.
	MaxEventSize int
	Logger       *slog.Logger
	Metrics      Metrics
}

// DetectTransport decides the reply encoding once from the Content-Type header. Anything that is
// not an event stream, including a missing header, is treated as JSON.
func DetectTransport(h http.Header) TransportKind {
	mt, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return TransportJSON
	}
	if mt == mediaTypeEventStream {
		return TransportEventStream
	}
	return TransportJSON
}

func (k TransportKind) String() string {
	switch k {
	case TransportJSON:
		return "json"
	case TransportEventStream:
		return "event-stream"
	default:
		return "unknown"
	}
}

// Frames returns an iterator over the frames carried by resp, in arrival order. Iteration ends
// after the first error; a non-2xx status yields a single *TransportError. Frames does not close
// the response body.
func (d Decoder) Frames(resp *http.Response) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
			yield(Frame{}, &TransportError{StatusCode: resp.StatusCode, Body: truncateBody(body)})
			return
		}

		switch DetectTransport(resp.Header) {
		case TransportEventStream:
			d.eventStreamFrames(resp.Body, yield)
		default:
			d.jsonFrame(resp.Body, yield)
		}
	}
}

// Decode returns the first response frame in resp. A JSON document may also be an error frame
// with a null id. An event stream that ends without a response yields ErrStreamExhausted.
func (d Decoder) Decode(resp *http.Response) (Frame, error) {
	kind := DetectTransport(resp.Header)
	for f, err := range d.Frames(resp) {
		if err != nil {
			return Frame{}, err
		}
		if f.IsResponse() || (kind == TransportJSON && f.unaddressed()) {
			return f, nil
		}
	}
	return Frame{}, ErrStreamExhausted
}

func (d Decoder) jsonFrame(body io.Reader, yield func(Frame, error) bool) {
	bs, err := io.ReadAll(body)
	if err != nil {
		yield(Frame{}, &TransportError{Err: err})
		return
	}
	if len(bs) == 0 {
		yield(Frame{}, &ProtocolError{Reason: "empty response body"})
		return
	}

	var f Frame
	if err := json.Unmarshal(bs, &f); err != nil {
		yield(Frame{}, &ProtocolError{Reason: "malformed JSON document", Err: err})
		return
	}
	if err := f.Validate(); err != nil {
		yield(Frame{}, err)
		return
	}
	if !f.IsResponse() && !f.unaddressed() {
		yield(Frame{}, &ProtocolError{ID: f.ID, Reason: "document is not a response"})
		return
	}

	yield(f, nil)
}

func (d Decoder) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d Decoder) metrics() Metrics {
	if d.Metrics == nil {
		return nopMetrics{}
	}
	return d.Metrics
}
