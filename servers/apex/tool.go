package apex

import (
	"encoding/json"
	"strings"

	mcp "github.com/ariffazil/openclaw-arifos-bridge"
	"github.com/ariffazil/openclaw-arifos-bridge/router"
)

// judgement is the document the default apex_judge produces.
type judgement struct {
	Verdict    string  `json:"verdict"`
	Stage      string  `json:"stage"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
}

// TextResult wraps doc the way MCP tools return structured output: JSON-encoded inside the text of
// a single content item.
func TextResult(doc any) map[string]any {
	bs, err := json.Marshal(doc)
	if err != nil {
		return PlainTextResult(err.Error(), true)
	}
	return PlainTextResult(string(bs), false)
}

// PlainTextResult returns text as a single content item.
func PlainTextResult(text string, isError bool) map[string]any {
	return map[string]any{
		"content": []mcp.Content{{Type: mcp.ContentTypeText, Text: text}},
		"isError": isError,
	}
}

// Static returns a ToolFunc that always answers with result.
func Static(result any) ToolFunc {
	return func(map[string]any) (any, *mcp.RPCError) {
		return result, nil
	}
}

func defaultTools() map[string]ToolFunc {
	return map[string]ToolFunc{
		router.ToolApexJudge:     judge,
		router.ToolAnchorSession: anchorSession,
		router.ToolReasonMind:    reasonMind,
	}
}

func toolList() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        router.ToolApexJudge,
			Description: "Render a governance verdict on a query",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"},` +
				`"actor_id":{"type":"string"},"session_id":{"type":"string"},"lane":{"type":"string"},` +
				`"context":{"type":"object"}},"required":["query"]}`),
		},
		{
			Name:        router.ToolAnchorSession,
			Description: "Bind an actor to a session",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"actor_id":{"type":"string"},` +
				`"session_id":{"type":"string"}},"required":["actor_id"]}`),
		},
		{
			Name:        router.ToolReasonMind,
			Description: "Reason about a question",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"},` +
				`"session_id":{"type":"string"}},"required":["query"]}`),
		},
	}
}

func judge(args map[string]any) (any, *mcp.RPCError) {
	query, _ := args["query"].(string)
	lane, _ := args["lane"].(string)

	switch {
	case strings.TrimSpace(query) == "":
		return TextResult(judgement{Verdict: "VOID", Stage: "111_SENSE", Reason: "empty query", Confidence: 1}), nil
	case lane == router.LaneCrisis || router.IsCrisis(query):
		return TextResult(judgement{
			Verdict:    "888_HOLD",
			Stage:      "888_JUDGE",
			Reason:     "crisis signal requires human review",
			Confidence: 0.99,
		}), nil
	default:
		return TextResult(judgement{Verdict: "SEAL", Stage: "999_SEAL", Reason: "no constraint violated", Confidence: 0.93}), nil
	}
}

func anchorSession(args map[string]any) (any, *mcp.RPCError) {
	actorID, _ := args["actor_id"].(string)
	if actorID == "" {
		return nil, &mcp.RPCError{Code: mcp.CodeInvalidParams, Message: "actor_id is required"}
	}
	return TextResult(map[string]any{
		"status":     "anchored",
		"actor_id":   actorID,
		"session_id": args["session_id"],
	}), nil
}

func reasonMind(args map[string]any) (any, *mcp.RPCError) {
	query, _ := args["query"].(string)
	return TextResult(map[string]any{
		"query":  query,
		"answer": "considered",
	}), nil
}
