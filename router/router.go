// Package router maps free-text messages to the upstream tool that should handle them.
//
// Routing is a pure keyword match with fixed precedence: crisis keywords win over
// interrogative keywords, which win over the default session-anchoring path.
package router

import (
	"regexp"
	"strings"
)

// Tool names the router can select.
const (
	ToolApexJudge     = "apex_judge"
	ToolReasonMind    = "reason_mind"
	ToolAnchorSession = "anchor_session"
)

// LaneCrisis marks an urgent evaluation.
const LaneCrisis = "CRISIS"

var (
	crisisWords        = regexp.MustCompile(`\b(kill|suicide|hurt|abuse)\b`)
	interrogativeWords = regexp.MustCompile(`\b(what|who|when|where|why|how)\b`)
)

// Route is the routing decision for one message.
type Route struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
}

// RouteMessage selects the tool for text. sessionID is carried into every route; userID only
// into the anchoring route, where it becomes the actor.
func RouteMessage(text, sessionID, userID string) Route {
	lower := strings.ToLower(text)

	switch {
	case crisisWords.MatchString(lower):
		return Route{
			Tool: ToolApexJudge,
			Params: map[string]any{
				"query":      text,
				"lane":       LaneCrisis,
				"session_id": sessionID,
			},
		}
	case interrogativeWords.MatchString(lower):
		return Route{
			Tool: ToolReasonMind,
			Params: map[string]any{
				"query":      text,
				"session_id": sessionID,
			},
		}
	default:
		return Route{
			Tool: ToolAnchorSession,
			Params: map[string]any{
				"actor_id":   userID,
				"session_id": sessionID,
			},
		}
	}
}

// IsCrisis reports whether text contains a crisis keyword.
func IsCrisis(text string) bool {
	return crisisWords.MatchString(strings.ToLower(text))
}
