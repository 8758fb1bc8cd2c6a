package judge_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariffazil/openclaw-arifos-bridge/judge"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name           string
		raw            string
		wantVerdict    judge.Verdict
		wantStage      string
		wantReason     string
		wantConfidence *float64
	}{
		{
			name:           "content array",
			raw:            `{"content":[{"type":"text","text":"{\"verdict\":\"SEAL\",\"stage\":\"999_SEAL\",\"reason\":\"ok\",\"confidence\":0.93}"}]}`,
			wantVerdict:    judge.VerdictSeal,
			wantStage:      "999_SEAL",
			wantReason:     "ok",
			wantConfidence: ptr(0.93),
		},
		{
			name:        "content array skips non-text items",
			raw:         `{"content":[{"type":"image","data":"AAAA"},{"type":"text","text":"{\"verdict\":\"PARTIAL\",\"stage\":\"555\"}"}]}`,
			wantVerdict: judge.VerdictPartial,
			wantStage:   "555",
		},
		{
			name:        "content text not json",
			raw:         `{"content":[{"type":"text","text":"upstream exploded"}],"isError":true}`,
			wantVerdict: judge.VerdictVoid,
			wantStage:   judge.StageError,
			wantReason:  "upstream exploded",
		},
		{
			name:        "empty content text falls through to direct fields",
			raw:         `{"content":[{"type":"text","text":""}],"verdict":"SEAL","stage":"999_SEAL"}`,
			wantVerdict: judge.VerdictSeal,
			wantStage:   "999_SEAL",
		},
		{
			name:        "direct fields",
			raw:         `{"verdict":"SABAR","stage":"777_FORGE","reason":"slow down"}`,
			wantVerdict: judge.VerdictSabar,
			wantStage:   "777_FORGE",
			wantReason:  "slow down",
		},
		{
			name:        "direct fields without stage",
			raw:         `{"verdict":"SEAL"}`,
			wantVerdict: judge.VerdictSeal,
			wantStage:   judge.StageUnknown,
		},
		{
			name:           "data wrapper",
			raw:            `{"data":{"verdict":"888_HOLD","stage":"888_JUDGE","error":"needs review","confidence":"0.5"}}`,
			wantVerdict:    judge.VerdictHold,
			wantStage:      "888_JUDGE",
			wantReason:     "needs review",
			wantConfidence: ptr(0.5),
		},
		{
			name:        "unknown verdict passes through",
			raw:         `{"verdict":"ASCEND","stage":"000"}`,
			wantVerdict: judge.Verdict("ASCEND"),
			wantStage:   "000",
		},
		{
			name:        "no verdict keeps stage and reason",
			raw:         `{"stage":"111_SENSE","error":{"code":7}}`,
			wantVerdict: judge.VerdictVoid,
			wantStage:   "111_SENSE",
			wantReason:  `{"code":7}`,
		},
		{
			name:        "unrecognized object",
			raw:         `{"status":"fine"}`,
			wantVerdict: judge.VerdictVoid,
			wantStage:   judge.StageUnknown,
			wantReason:  `{"status":"fine"}`,
		},
		{
			name:        "bare string",
			raw:         `"plain words"`,
			wantVerdict: judge.VerdictVoid,
			wantStage:   judge.StageUnknown,
			wantReason:  "plain words",
		},
		{
			name:        "confidence that is not a number",
			raw:         `{"verdict":"SEAL","stage":"999_SEAL","confidence":"high"}`,
			wantVerdict: judge.VerdictSeal,
			wantStage:   "999_SEAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := judge.Normalize(json.RawMessage(tt.raw))

			assert.Equal(t, tt.wantVerdict, got.Verdict)
			assert.Equal(t, tt.wantStage, got.Stage)
			assert.Equal(t, tt.wantReason, got.Reason)
			if tt.wantConfidence == nil {
				assert.Nil(t, got.Confidence)
			} else {
				require.NotNil(t, got.Confidence)
				assert.InDelta(t, *tt.wantConfidence, *got.Confidence, 1e-9)
			}
		})
	}
}

func TestVerdict_Known(t *testing.T) {
	for _, v := range []judge.Verdict{judge.VerdictSeal, judge.VerdictVoid, judge.VerdictPartial, judge.VerdictSabar, judge.VerdictHold} {
		assert.True(t, v.Known(), v)
	}
	assert.False(t, judge.Verdict("ASCEND").Known())
}

func TestResult_MarshalJSON(t *testing.T) {
	res := judge.Result{
		Verdict: judge.VerdictSeal,
		Stage:   "999_SEAL",
		Timing: judge.Timing{
			Session: 1500 * 1000,
			Call:    2 * 1000 * 1000,
			Total:   3500 * 1000,
		},
	}

	bs, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"verdict": "SEAL",
		"stage": "999_SEAL",
		"timing": {"session_ms": 1.5, "call_ms": 2, "total_ms": 3.5}
	}`, string(bs))
}

func ptr(f float64) *float64 { return &f }
