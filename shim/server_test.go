package shim_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcp "github.com/ariffazil/openclaw-arifos-bridge"
	"github.com/ariffazil/openclaw-arifos-bridge/judge"
	"github.com/ariffazil/openclaw-arifos-bridge/router"
	"github.com/ariffazil/openclaw-arifos-bridge/servers/apex"
	"github.com/ariffazil/openclaw-arifos-bridge/shim"
	"github.com/ariffazil/openclaw-arifos-bridge/telemetry"
)

type stubEvaluator struct {
	toolsErr error
	queries  []judge.Query
}

func (s *stubEvaluator) Evaluate(_ context.Context, q judge.Query) judge.Result {
	s.queries = append(s.queries, q)
	return judge.Result{Verdict: judge.VerdictSeal, Stage: "999_SEAL"}
}

func (s *stubEvaluator) ListTools(context.Context) ([]string, error) {
	if s.toolsErr != nil {
		return nil, s.toolsErr
	}
	return []string{"apex_judge", "reason_mind", "anchor_session"}, nil
}

func (s *stubEvaluator) Handle(_ context.Context, text, _, _ string) judge.Outcome {
	return judge.Outcome{Tool: router.RouteMessage(text, "", "").Tool}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name        string
		toolsErr    error
		wantStatus  int
		wantVerdict string
	}{
		{name: "healthy", wantStatus: http.StatusOK, wantVerdict: "SEAL"},
		{name: "unhealthy", toolsErr: errors.New("connection refused"), wantStatus: http.StatusServiceUnavailable, wantVerdict: "VOID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := shim.NewServer(&stubEvaluator{toolsErr: tt.toolsErr}, shim.WithUpstream("http://upstream/mcp"))
			rec := do(t, srv.Handler(), http.MethodGet, "/health", "")

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var health shim.Health
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
			assert.Equal(t, tt.wantVerdict, health.Verdict)
			assert.Equal(t, "http://upstream/mcp", health.Upstream)
		})
	}
}

func TestJudge(t *testing.T) {
	eval := &stubEvaluator{}
	h := shim.NewServer(eval).Handler()

	t.Run("ok", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/v1/judge", `{"query":"q","session_id":"s","lane":"CRISIS","context":{"k":"v"}}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"verdict":"SEAL","stage":"999_SEAL","timing":{"session_ms":0,"call_ms":0,"total_ms":0}}`, rec.Body.String())
		require.Len(t, eval.queries, 1)
		assert.Equal(t, judge.Query{Text: "q", SessionID: "s", Lane: "CRISIS", Context: map[string]any{"k": "v"}}, eval.queries[0])
	})

	t.Run("missing query", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/v1/judge", `{"session_id":"s"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/v1/judge", `{`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid request body")
	})
}

func TestRoute(t *testing.T) {
	h := shim.NewServer(&stubEvaluator{}).Handler()

	rec := do(t, h, http.MethodPost, "/v1/route", `{"text":"kill","session_id":"s","user_id":"u"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tool":"apex_judge"}`, rec.Body.String())
}

func TestTools(t *testing.T) {
	rec := do(t, shim.NewServer(&stubEvaluator{}).Handler(), http.MethodGet, "/v1/tools", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tools":["apex_judge","reason_mind","anchor_session"]}`, rec.Body.String())

	rec = do(t, shim.NewServer(&stubEvaluator{toolsErr: errors.New("down")}).Handler(), http.MethodGet, "/v1/tools", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"down"}`, rec.Body.String())
}

func TestRateLimit(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	h := shim.NewServer(&stubEvaluator{}, shim.WithRateLimit(0.001, 2), shim.WithMetrics(metrics, reg)).Handler()

	for range 2 {
		rec := do(t, h, http.MethodGet, "/v1/tools", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/v1/tools", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.HTTPRateLimited), 0)

	// The probe and metrics endpoints are not limited.
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	h := shim.NewServer(&stubEvaluator{}, shim.WithMetrics(metrics, reg)).Handler()

	do(t, h, http.MethodGet, "/health", "")
	do(t, h, http.MethodPost, "/v1/judge", `{}`)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/health", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("/v1/judge", "400")), 0)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `arifos_bridge_http_requests_total{route="/health",status="200"} 1`)
}

func TestRequestID(t *testing.T) {
	h := shim.NewServer(&stubEvaluator{}).Handler()

	rec := do(t, h, http.MethodGet, "/health", "")
	generated := rec.Header().Get(shim.RequestIDHeader)
	assert.Len(t, generated, 26)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(shim.RequestIDHeader, "caller-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "caller-id", rec.Header().Get(shim.RequestIDHeader))
}

func TestEndToEnd(t *testing.T) {
	upstream := httptest.NewServer(apex.NewServer(apex.WithMode(apex.ModeSSE)))
	defer upstream.Close()

	j := judge.New(mcp.NewClient(upstream.URL))
	bridge := httptest.NewServer(shim.NewServer(j, shim.WithUpstream(upstream.URL)).Handler())
	defer bridge.Close()

	resp, err := http.Post(bridge.URL+"/v1/judge", "application/json", strings.NewReader(`{"query":"they want to hurt me"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	var res judge.Result
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, judge.VerdictHold, res.Verdict)

	health, err := http.Get(bridge.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
