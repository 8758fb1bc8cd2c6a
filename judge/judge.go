// Package judge exposes the arifOS governance tools as typed operations on top of the mcp
// client, and normalizes their heterogeneous replies into one Result type.
package judge

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	mcp "github.com/ariffazil/openclaw-arifos-bridge"
	"github.com/ariffazil/openclaw-arifos-bridge/router"
	"github.com/ariffazil/openclaw-arifos-bridge/telemetry"
)

// DefaultActorID identifies the bridge when the caller names no actor.
const DefaultActorID = "openclaw-bridge"

// Client is the part of *mcp.Client the facade needs.
type Client interface {
	EnsureSession(ctx context.Context) (mcp.Session, error)
	Invoke(ctx context.Context, sess mcp.Session, tool string, args any) (json.RawMessage, error)
	ListTools(ctx context.Context, sess mcp.Session) ([]mcp.Tool, error)
}

// Option configures a Judge.
type Option func(*Judge)

// Judge is the tool invocation facade. Every operation negotiates its own session through the
// client before invoking the tool.
type Judge struct {
	client  Client
	actorID string
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Query describes one evaluation request.
type Query struct {
	Text      string
	SessionID string
	// ActorID defaults to the Judge's actor.
	ActorID string
	// Lane is sent only when set, for example router.LaneCrisis.
	Lane    string
	Context map[string]any
}

// Outcome is the result of dispatching a routed message.
type Outcome struct {
	Tool string `json:"tool"`
	// Result is set for evaluations.
	Result *Result `json:"result,omitempty"`
	// Raw is the tool result for every other tool.
	Raw   json.RawMessage `json:"raw,omitempty"`
	Error string          `json:"error,omitempty"`
}

// WithActorID sets the default actor for evaluations.
func WithActorID(actorID string) Option {
	return func(j *Judge) {
		j.actorID = actorID
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Judge) {
		j.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(j *Judge) {
		j.metrics = metrics
	}
}

// New creates a Judge on top of client.
func New(client Client, options ...Option) *Judge {
	j := &Judge{
		client:  client,
		actorID: DefaultActorID,
		logger:  slog.Default(),
	}
	for _, opt := range options {
		opt(j)
	}

	if j.actorID == "" {
		j.actorID = DefaultActorID
	}
	if j.logger == nil {
		j.logger = slog.Default()
	}

	return j
}

// Evaluate asks apex_judge for a verdict on q. It never fails: any error from the session or
// call step becomes a VOID Result whose stage names the failure kind and whose reason carries
// the error message.
func (j *Judge) Evaluate(ctx context.Context, q Query) Result {
	ctx, span := telemetry.StartSpan(ctx, "judge.evaluate")
	defer span.End()

	start := time.Now()
	sess, err := j.client.EnsureSession(ctx)
	sessionTime := time.Since(start)
	if err != nil {
		res := failure(err)
		res.Timing = Timing{Session: sessionTime, Total: sessionTime}
		span.SetStatus(codes.Error, err.Error())
		j.record(res, q)
		return res
	}

	callStart := time.Now()
	raw, err := j.client.Invoke(ctx, sess, router.ToolApexJudge, j.arguments(q, sess))
	callTime := time.Since(callStart)

	var res Result
	if err != nil {
		res = failure(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		res = Normalize(raw)
	}
	res.Timing = Timing{Session: sessionTime, Call: callTime, Total: sessionTime + callTime}

	span.SetAttributes(
		attribute.String("judge.verdict", string(res.Verdict)),
		attribute.String("judge.stage", res.Stage),
	)
	j.record(res, q)

	return res
}

// ListTools returns the names of the tools the upstream advertises.
func (j *Judge) ListTools(ctx context.Context) ([]string, error) {
	sess, err := j.client.EnsureSession(ctx)
	if err != nil {
		return nil, err
	}

	tools, err := j.client.ListTools(ctx, sess)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return names, nil
}

// AnchorSession binds actorID to sessionID on the upstream.
func (j *Judge) AnchorSession(ctx context.Context, actorID, sessionID string) (json.RawMessage, error) {
	if actorID == "" {
		actorID = j.actorID
	}
	return j.invoke(ctx, router.ToolAnchorSession, map[string]any{
		"actor_id":   actorID,
		"session_id": sessionID,
	})
}

// ReasonMind sends query to the upstream reasoning tool.
func (j *Judge) ReasonMind(ctx context.Context, query, sessionID string) (json.RawMessage, error) {
	return j.invoke(ctx, router.ToolReasonMind, map[string]any{
		"query":      query,
		"session_id": sessionID,
	})
}

// Dispatch executes a routing decision. Evaluations go through Evaluate and always produce a
// Result; other tools report failures in Outcome.Error.
func (j *Judge) Dispatch(ctx context.Context, route router.Route) Outcome {
	j.metrics.ObserveRoute(route.Tool)

	var (
		raw json.RawMessage
		err error
	)
	switch route.Tool {
	case router.ToolApexJudge:
		q := Query{
			Text:      stringParam(route.Params, "query"),
			SessionID: stringParam(route.Params, "session_id"),
			ActorID:   stringParam(route.Params, "actor_id"),
			Lane:      stringParam(route.Params, "lane"),
		}
		res := j.Evaluate(ctx, q)
		return Outcome{Tool: route.Tool, Result: &res}
	case router.ToolAnchorSession:
		raw, err = j.AnchorSession(ctx, stringParam(route.Params, "actor_id"), stringParam(route.Params, "session_id"))
	case router.ToolReasonMind:
		raw, err = j.ReasonMind(ctx, stringParam(route.Params, "query"), stringParam(route.Params, "session_id"))
	default:
		raw, err = j.invoke(ctx, route.Tool, route.Params)
	}
	if err != nil {
		return Outcome{Tool: route.Tool, Error: err.Error()}
	}
	return Outcome{Tool: route.Tool, Raw: raw}
}

// Handle routes text and dispatches the decision.
func (j *Judge) Handle(ctx context.Context, text, sessionID, userID string) Outcome {
	return j.Dispatch(ctx, router.RouteMessage(text, sessionID, userID))
}

func (j *Judge) invoke(ctx context.Context, tool string, args any) (json.RawMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "judge."+tool)
	defer span.End()

	sess, err := j.client.EnsureSession(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	raw, err := j.client.Invoke(ctx, sess, tool, args)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return raw, nil
}

func (j *Judge) arguments(q Query, sess mcp.Session) map[string]any {
	actorID := q.ActorID
	if actorID == "" {
		actorID = j.actorID
	}
	sessionID := q.SessionID
	if sessionID == "" {
		sessionID = sess.ID
	}

	args := map[string]any{
		"query":      q.Text,
		"session_id": sessionID,
		"actor_id":   actorID,
	}
	if q.Lane != "" {
		args["lane"] = q.Lane
	}
	if len(q.Context) > 0 {
		args["context"] = q.Context
	}
	return args
}

func (j *Judge) record(res Result, q Query) {
	j.metrics.ObserveVerdict(string(res.Verdict), res.Stage)
	j.metrics.ObservePhase("session", res.Timing.Session)
	j.metrics.ObservePhase("call", res.Timing.Call)
	j.metrics.ObservePhase("total", res.Timing.Total)

	j.logger.Info("evaluated query",
		slog.String("verdict", string(res.Verdict)),
		slog.String("stage", res.Stage),
		slog.String("session_id", q.SessionID),
		slog.Duration("total", res.Timing.Total))
}

// failure maps an error from the client to a VOID Result.
func failure(err error) Result {
	stage := StageError
	switch mcp.Outcome(err) {
	case "transport_error":
		stage = StageTransportError
	case "protocol_error":
		stage = StageProtocolError
	case "stream_exhausted":
		stage = StageStreamExhausted
	case "rpc_error":
		stage = StageRPCError
	}

	return Result{
		Verdict: VerdictVoid,
		Stage:   stage,
		Reason:  err.Error(),
	}
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}
