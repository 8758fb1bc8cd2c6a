package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ClientOption is a function that configures a client.
type ClientOption func(*Client)

// Client speaks JSON-RPC 2.0 to one MCP endpoint over HTTP POST. It allocates request identifiers,
// correlates replies through a pending-call table and decodes both JSON and event-stream replies.
//
// A Client is safe for concurrent use. Independent calls never share an identifier, and a frame
// is only ever delivered to the call that registered its identifier. The only state shared by
// all calls is the identifier counter, plus the cached session when session reuse is enabled.
type Client struct {
	endpoint     string
	httpClient   HTTPDoer
	info         Info
	bearerToken  string
	timeout      time.Duration
	maxEventSize int
	reuseSession bool

	logger  *slog.Logger
	metrics Metrics

	lastID  atomic.Int64
	pending *pendingCalls

	sessionMu sync.Mutex
	session   *Session
}

// pendingCalls maps an outstanding request identifier to the channel its caller waits on.
type pendingCalls struct {
	mu    sync.Mutex
	calls map[RequestID]chan Frame
}

const (
	// DefaultEndpoint is used when no endpoint is configured.
	DefaultEndpoint = "http://127.0.0.1:8088/mcp"

	tracerName = "github.com/ariffazil/openclaw-arifos-bridge"
)

var (
	defaultCallTimeout = 30 * time.Second

	defaultClientInfo = Info{
		Name:    "openclaw-arifos-bridge",
		Version: "1.0.0",
	}
)

// WithHTTPClient sets the HTTP client used to send requests. Defaults to http.DefaultClient.
func WithHTTPClient(doer HTTPDoer) ClientOption {
	return func(c *Client) {
		c.httpClient = doer
	}
}

// WithCallTimeout bounds every single RPC call, including reading the whole reply.
func WithCallTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithBearerToken sets the credential sent as "Authorization: Bearer <token>". The token is
// passed through unchanged.
func WithBearerToken(token string) ClientOption {
	return func(c *Client) {
		c.bearerToken = token
	}
}

// WithClientInfo sets the client metadata sent in the initialize request.
func WithClientInfo(info Info) ClientOption {
	return func(c *Client) {
		c.info = info
	}
}

// WithClientLogger sets the logger for the client and its decoder.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClientMetrics sets the metrics sink for the client.
func WithClientMetrics(metrics Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// WithMaxEventSize bounds the size of a single event in an event-stream reply.
func WithMaxEventSize(size int) ClientOption {
	return func(c *Client) {
		c.maxEventSize = size
	}
}

// WithSessionReuse makes EnsureSession cache the first server-issued session and hand it out to
// later operations instead of negotiating a fresh one each time. Synthetic sessions are never
// cached.
func WithSessionReuse(reuse bool) ClientOption {
	return func(c *Client) {
		c.reuseSession = reuse
	}
}

// NewClient creates a client for the MCP endpoint at the given URL. An empty endpoint selects
// DefaultEndpoint. No request is sent until the first call.
func NewClient(endpoint string, options ...ClientOption) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: http.DefaultClient,
		info:       defaultClientInfo,
		logger:     slog.Default(),
		metrics:    nopMetrics{},
		pending:    &pendingCalls{calls: make(map[RequestID]chan Frame)},
	}
	for _, opt := range options {
		opt(c)
	}

	if c.endpoint == "" {
		c.endpoint = DefaultEndpoint
	}
	if c.timeout == 0 {
		c.timeout = defaultCallTimeout
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = nopMetrics{}
	}

	return c
}

// Endpoint returns the URL the client posts to.
func (c *Client) Endpoint() string { return c.endpoint }

// Pending returns the number of calls currently waiting for a reply.
func (c *Client) Pending() int { return c.pending.len() }

// Call sends a request outside of any session and returns the raw result payload. A reply
// carrying an error object is returned as *RPCError.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	result, _, err := c.call(ctx, method, params, "")
	return result, err
}

// CallSession sends a request bound to sess and returns the raw result payload.
func (c *Client) CallSession(ctx context.Context, sess Session, method string, params any) (json.RawMessage, error) {
	result, _, err := c.call(ctx, method, params, sess.headerValue())
	return result, err
}

// Notify sends a notification, which carries no identifier and expects no frame back.
func (c *Client) Notify(ctx context.Context, sess Session, method string, params any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, Request{JSONRPC: JSONRPCVersion, Method: method, Params: params}, sess.headerValue())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return &TransportError{StatusCode: resp.StatusCode, Body: truncateBody(body)}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, errorBodyReadLimit))

	return nil
}

func (c *Client) call(
	ctx context.Context,
	method string,
	params any,
	sessionID string,
) (json.RawMessage, http.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id := RequestID(c.lastID.Add(1))

	ctx, span := otel.Tracer(tracerName).Start(ctx, "mcp.call "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", method),
			attribute.Int64("rpc.jsonrpc.request_id", int64(id)),
		))
	defer span.End()

	start := time.Now()
	frame, header, err := c.exchange(ctx, Request{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	}, sessionID)
	if err == nil && frame.Error != nil {
		err = frame.Error
	}
	c.metrics.ObserveCall(method, Outcome(err), time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, header, err
	}

	return frame.Result, header, nil
}

// exchange posts req and waits until the pending-call table hands back the frame answering it,
// the reply ends without one, or ctx expires.
func (c *Client) exchange(ctx context.Context, req Request, sessionID string) (Frame, http.Header, error) {
	wait := c.pending.add(req.ID)
	defer c.pending.remove(req.ID)

	resp, err := c.post(ctx, req, sessionID)
	if err != nil {
		return Frame{}, nil, err
	}
	defer resp.Body.Close()

	done := make(chan error, 1)
	go func() {
		done <- c.dispatch(ctx, resp, req.ID)
	}()

	select {
	case f := <-wait:
		return f, resp.Header, nil
	case err := <-done:
		// The frame may have been delivered right before the reply ended.
		select {
		case f := <-wait:
			return f, resp.Header, nil
		default:
		}
		return Frame{}, resp.Header, err
	case <-ctx.Done():
		return Frame{}, resp.Header, &TransportError{Err: ctx.Err()}
	}
}

// dispatch feeds every response frame in resp to the pending-call table. It returns once the
// frame for id has been delivered, or with the reason the reply ended without it.
func (c *Client) dispatch(ctx context.Context, resp *http.Response, id RequestID) error {
	kind := DetectTransport(resp.Header)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("mcp.transport", kind.String()))

	dec := Decoder{
		MaxEventSize: c.maxEventSize,
		Logger:       c.logger,
		Metrics:      c.metrics,
	}

	for f, err := range dec.Frames(resp) {
		if err != nil {
			return err
		}
		if kind == TransportJSON {
			return c.settleDocument(f, id)
		}
		if !f.IsResponse() {
			c.logger.Debug("ignoring server-initiated frame", slog.String("method", f.Method))
			continue
		}

		if c.pending.deliver(f.ID, f) {
			if f.ID == id {
				return nil
			}
			c.logger.Debug("delivered frame to another pending call",
				slog.Int64("id", int64(f.ID)), slog.Int64("carrier", int64(id)))
			continue
		}

		c.logger.Warn("dropping frame for unknown request",
			slog.Int64("id", int64(f.ID)), slog.Int64("carrier", int64(id)))
	}

	return ErrStreamExhausted
}

// settleDocument resolves the call with a JSON reply, which only ever answers the request that
// carried it. An error frame with a null id is taken as the answer.
func (c *Client) settleDocument(f Frame, id RequestID) error {
	switch {
	case f.ID == id:
	case f.unaddressed():
		f.ID = id
	default:
		return &ProtocolError{ID: id, Reason: fmt.Sprintf("response carries id %d", f.ID)}
	}

	c.pending.deliver(id, f)
	return nil
}

func (c *Client) post(ctx context.Context, req Request, sessionID string) (*http.Response, error) {
	bs, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bs))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mediaTypeJSON)
	httpReq.Header.Set("Accept", acceptBoth)
	if c.bearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	if sessionID != "" {
		httpReq.Header.Set(SessionHeader, sessionID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to send request: %w", err)}
	}

	return resp, nil
}

func (p *pendingCalls) add(id RequestID) <-chan Frame {
	ch := make(chan Frame, 1)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[id] = ch

	return ch
}

// deliver hands f to the caller waiting on id and removes the entry. It reports false when no
// call is waiting on id.
func (p *pendingCalls) deliver(id RequestID, f Frame) bool {
	p.mu.Lock()
	ch, ok := p.calls[id]
	delete(p.calls, id)
	p.mu.Unlock()

	if !ok {
		return false
	}
	ch <- f
	return true
}

func (p *pendingCalls) remove(id RequestID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.calls, id)
}

func (p *pendingCalls) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
