package mcp

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrStreamExhausted is returned when an event-stream reply closes before a frame answering the
// request was observed.
var ErrStreamExhausted = errors.New("event stream closed without a terminal frame")

// maxErrorBody bounds how much of a failed response body is kept for diagnostics.
const maxErrorBody = 200

// TransportError reports a failure to obtain a usable HTTP reply: a non-2xx status, a connection
// failure, a read failure, or an expired deadline.
type TransportError struct {
	// StatusCode is zero when no response was received.
	StatusCode int
	// Body holds at most 200 characters of the response body.
	Body string
	Err  error
}

// ProtocolError reports a reply that arrived but does not form a valid JSON-RPC response.
type ProtocolError struct {
	ID     RequestID
	Reason string
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("http status %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("transport failure: %v", e.Err)
	default:
		return "transport failure"
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *ProtocolError) Error() string {
	msg := "protocol error: " + e.Reason
	if e.ID != 0 {
		msg = fmt.Sprintf("protocol error on id %d: %s", e.ID, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// truncateBody keeps the first maxErrorBody characters without splitting a rune.
func truncateBody(b []byte) string {
	if utf8.RuneCount(b) <= maxErrorBody {
		return string(b)
	}
	runes := []rune(string(b))
	return string(runes[:maxErrorBody])
}

// Outcome classifies err for metrics and for callers that map failures to their own vocabulary.
// It returns "ok" for a nil error, then one of "rpc_error", "stream_exhausted",
// "protocol_error", "transport_error" or "error".
func Outcome(err error) string {
	var (
		rpcErr       *RPCError
		protocolErr  *ProtocolError
		transportErr *TransportError
	)

	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &rpcErr):
		return "rpc_error"
	case errors.Is(err, ErrStreamExhausted):
		return "stream_exhausted"
	case errors.As(err, &protocolErr):
		return "protocol_error"
	case errors.As(err, &transportErr):
		return "transport_error"
	default:
		return "error"
	}
}
