package telemetry_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/ariffazil/openclaw-arifos-bridge/telemetry"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)

	m.ObserveCall("tools/call", "ok", 20*time.Millisecond)
	m.ObserveCall("tools/call", "rpc_error", time.Millisecond)
	m.SkippedEvent("malformed")
	m.ObserveHandshake(true, time.Millisecond)
	m.ObserveVerdict("SEAL", "999_SEAL")
	m.ObserveRoute("apex_judge")
	m.ObserveHTTP("/health", "200")
	m.RateLimited()

	assert.InDelta(t, 1, testutil.ToFloat64(m.RPCCalls.WithLabelValues("tools/call", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RPCCalls.WithLabelValues("tools/call", "rpc_error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.SkippedEvents.WithLabelValues("malformed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Handshakes.WithLabelValues("synthetic")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.Handshakes.WithLabelValues("server")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Verdicts.WithLabelValues("SEAL", "999_SEAL")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Routes.WithLabelValues("apex_judge")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.HTTPRateLimited), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_Nil(t *testing.T) {
	var m *telemetry.Metrics

	assert.NotPanics(t, func() {
		m.ObserveCall("tools/call", "ok", time.Second)
		m.SkippedEvent("malformed")
		m.ObserveHandshake(false, time.Second)
		m.ObserveVerdict("VOID", "ERROR")
		m.ObservePhase("total", time.Second)
		m.ObserveRoute("reason_mind")
		m.ObserveHTTP("/health", "200")
		m.RateLimited()
	})
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
		check   func(t *testing.T, out string)
	}{
		{
			name:   "json",
			level:  "info",
			format: "json",
			check: func(t *testing.T, out string) {
				var line map[string]any
				require.NoError(t, json.Unmarshal([]byte(out), &line))
				assert.Equal(t, "hello", line["msg"])
				assert.Equal(t, "v", line["k"])
			},
		},
		{
			name:   "text",
			level:  "debug",
			format: "text",
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, "msg=hello")
				assert.Contains(t, out, "k=v")
			},
		},
		{
			name:   "filtered by level",
			level:  "error",
			format: "",
			check: func(t *testing.T, out string) {
				assert.Empty(t, out)
			},
		},
		{name: "bad level", level: "loud", format: "text", wantErr: true},
		{name: "bad format", level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := telemetry.NewLogger(&buf, tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			logger.Info("hello", "k", "v")
			tt.check(t, buf.String())
		})
	}
}

func TestTracerProvider(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	var buf bytes.Buffer
	tp, err := telemetry.NewTracerProvider("arifos-bridge", "test", &buf)
	require.NoError(t, err)

	_, span := telemetry.StartSpan(context.Background(), "unit.span")
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "unit.span")
	assert.Contains(t, buf.String(), "arifos-bridge")
}
