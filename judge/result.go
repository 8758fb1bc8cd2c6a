package judge

import (
	"encoding/json"
	"time"
)

// Verdict is the upstream's categorical outcome label. The set is open: values the bridge does
// not know are passed through verbatim.
type Verdict string

// Well-known verdicts.
const (
	VerdictSeal    Verdict = "SEAL"
	VerdictVoid    Verdict = "VOID"
	VerdictPartial Verdict = "PARTIAL"
	VerdictSabar   Verdict = "SABAR"
	VerdictHold    Verdict = "888_HOLD"
)

// Stages produced by the bridge itself rather than by the upstream.
const (
	StageUnknown         = "UNKNOWN"
	StageError           = "ERROR"
	StageTransportError  = "TRANSPORT_ERROR"
	StageProtocolError   = "PROTOCOL_ERROR"
	StageStreamExhausted = "STREAM_EXHAUSTED"
	StageRPCError        = "RPC_ERROR"
)

// Result is the normalized outcome of an evaluation. Callers always receive a well-formed
// Result, failures included.
type Result struct {
	Verdict Verdict `json:"verdict"`
	Stage   string  `json:"stage"`
	Reason  string  `json:"reason,omitempty"`
	// Confidence is passed through as reported, without range validation.
	Confidence *float64 `json:"confidence,omitempty"`
	Timing     Timing   `json:"timing"`
}

// Timing holds the elapsed time of the session step, the tool call step and their sum.
type Timing struct {
	Session time.Duration
	Call    time.Duration
	Total   time.Duration
}

// Known reports whether v is one of the well-known verdicts.
func (v Verdict) Known() bool {
	switch v {
	case VerdictSeal, VerdictVoid, VerdictPartial, VerdictSabar, VerdictHold:
		return true
	default:
		return false
	}
}

// MarshalJSON encodes durations as fractional milliseconds.
func (t Timing) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		SessionMS float64 `json:"session_ms"`
		CallMS    float64 `json:"call_ms"`
		TotalMS   float64 `json:"total_ms"`
	}{
		SessionMS: ms(t.Session),
		CallMS:    ms(t.Call),
		TotalMS:   ms(t.Total),
	})
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
