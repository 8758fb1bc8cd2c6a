package judge

import (
	"bytes"
	"encoding/json"
	"strconv"

	mcp "github.com/ariffazil/openclaw-arifos-bridge"
)

// verdictFields is the document the upstream returns for an evaluation, in whichever wrapper
// it arrives.
type verdictFields struct {
	Verdict    string          `json:"verdict"`
	Stage      string          `json:"stage"`
	Reason     string          `json:"reason"`
	Error      json.RawMessage `json:"error"`
	Confidence json.RawMessage `json:"confidence"`
}

type contentShape struct {
	Content []mcp.Content `json:"content"`
	IsError bool          `json:"isError"`
}

type dataShape struct {
	Data *verdictFields `json:"data"`
}

// Normalize converts a raw tools/call result into a Result. Shapes are tried as typed parses in
// a fixed order:
//  1. a content array whose text item holds a JSON-encoded verdict document
//  2. verdict fields at the top level
//  3. verdict fields under "data"
//
// Text content that is not valid JSON yields VOID with stage ERROR and the text as reason. A
// payload matching no shape yields VOID with stage UNKNOWN and the raw payload as reason.
func Normalize(raw json.RawMessage) Result {
	if text, ok := contentText(raw); ok {
		if !json.Valid([]byte(text)) {
			return Result{Verdict: VerdictVoid, Stage: StageError, Reason: text}
		}
		return normalizeDocument(json.RawMessage(text))
	}
	return normalizeDocument(raw)
}

func normalizeDocument(raw json.RawMessage) Result {
	var direct verdictFields
	directErr := json.Unmarshal(raw, &direct)
	if directErr == nil && direct.Verdict != "" {
		return direct.result()
	}

	var wrapped dataShape
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Data != nil && wrapped.Data.Verdict != "" {
		return wrapped.Data.result()
	}

	// An object without a verdict still keeps whatever stage and reason it reported.
	res := Result{Verdict: VerdictVoid, Stage: StageUnknown, Reason: rawText(raw)}
	if directErr == nil {
		if direct.Stage != "" {
			res.Stage = direct.Stage
		}
		if reason := direct.reason(); reason != "" {
			res.Reason = reason
		}
	}
	return res
}

// contentText returns the first non-empty text item of a content-array result.
func contentText(raw json.RawMessage) (string, bool) {
	var shape contentShape
	if err := json.Unmarshal(raw, &shape); err != nil {
		return "", false
	}
	for _, c := range shape.Content {
		if c.Type == mcp.ContentTypeText && c.Text != "" {
			return c.Text, true
		}
	}
	return "", false
}

func (f verdictFields) result() Result {
	res := Result{
		Verdict:    Verdict(f.Verdict),
		Stage:      f.Stage,
		Reason:     f.reason(),
		Confidence: number(f.Confidence),
	}
	if res.Stage == "" {
		res.Stage = StageUnknown
	}
	return res
}

// reason prefers the reason field and falls back to error, which may be a string or any JSON value.
func (f verdictFields) reason() string {
	if f.Reason != "" {
		return f.Reason
	}
	if len(f.Error) == 0 || bytes.Equal(f.Error, []byte("null")) {
		return ""
	}
	return rawText(f.Error)
}

// number returns a JSON number, or a string holding one, as a float.
func number(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err == nil {
		return &v
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return &v
		}
	}
	return nil
}

// rawText renders raw for humans: JSON strings are unquoted, anything else is kept as is.
func rawText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
