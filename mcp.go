package mcp

import (
	"net/http"
	"time"
)

// HTTPDoer sends an HTTP request and returns its response. *http.Client satisfies it; tests and
// callers may wrap it to add instrumentation or fault injection.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Metrics receives measurements from the client and its decoder. The implementation must be
// safe for concurrent use, since independent calls report from their own goroutines.
type Metrics interface {
	// ObserveCall records one finished RPC call. Outcome is one of "ok", "rpc_error",
	// "transport_error", "protocol_error", "stream_exhausted" or "error".
	ObserveCall(method, outcome string, elapsed time.Duration)

	// SkippedEvent records an event-stream event that was ignored instead of aborting the stream.
	SkippedEvent(reason string)

	// ObserveHandshake records one finished initialize exchange. Synthetic reports whether the
	// session handle was generated locally.
	ObserveHandshake(synthetic bool, elapsed time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) ObserveCall(string, string, time.Duration) {}
func (nopMetrics) SkippedEvent(string)                       {}
func (nopMetrics) ObserveHandshake(bool, time.Duration)      {}
