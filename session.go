package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Session is the handle produced by the initialize step.
type Session struct {
	// ID is the session token. It is empty only for the zero Session.
	ID string
	// Synthetic is set when the server allocated no session and ID was generated locally. A
	// synthetic ID carries no server-side authority and is never sent to the server.
	Synthetic bool

	ProtocolVersion string
	Server          Info
	Instructions    string
}

const syntheticSessionPrefix = "local-"

// EnsureSession negotiates a session with the server: an initialize request followed by the
// notifications/initialized notification. The session token is taken from the Mcp-Session-Id
// response header, else from the initialize result, else a synthetic time-ordered token is
// generated.
//
// Without session reuse every call negotiates a fresh session. With reuse, the first
// server-issued session is cached and returned until ResetSession is called.
func (c *Client) EnsureSession(ctx context.Context) (Session, error) {
	if !c.reuseSession {
		return c.initialize(ctx)
	}

	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	if c.session != nil {
		return *c.session, nil
	}

	sess, err := c.initialize(ctx)
	if err != nil {
		return Session{}, err
	}
	if !sess.Synthetic {
		c.session = &sess
	}

	return sess, nil
}

// ResetSession drops the cached session, if any.
func (c *Client) ResetSession() {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	c.session = nil
}

// Invoke calls the named tool within sess and returns the raw tools/call result.
func (c *Client) Invoke(ctx context.Context, sess Session, tool string, args any) (json.RawMessage, error) {
	result, err := c.CallSession(ctx, sess, MethodToolsCall, CallToolParams{
		Name:      tool,
		Arguments: args,
	})
	if err != nil {
		var transportErr *TransportError
		if c.reuseSession && errors.As(err, &transportErr) && transportErr.StatusCode == http.StatusNotFound {
			// The server forgot the session; the next operation negotiates a new one.
			c.ResetSession()
		}
		return nil, fmt.Errorf("failed to call tool %s: %w", tool, err)
	}

	return result, nil
}

// ListTools returns every tool the server advertises, following pagination cursors.
func (c *Client) ListTools(ctx context.Context, sess Session) ([]Tool, error) {
	var (
		tools  []Tool
		cursor string
	)
	for {
		var params any
		if cursor != "" {
			params = map[string]string{"cursor": cursor}
		}

		raw, err := c.CallSession(ctx, sess, MethodToolsList, params)
		if err != nil {
			return nil, fmt.Errorf("failed to list tools: %w", err)
		}

		var res ListToolsResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, &ProtocolError{Reason: "malformed tools/list result", Err: err}
		}
		tools = append(tools, res.Tools...)

		if res.NextCursor == "" || res.NextCursor == cursor {
			return tools, nil
		}
		cursor = res.NextCursor
	}
}

func (c *Client) initialize(ctx context.Context) (Session, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "mcp.session")
	defer span.End()

	start := time.Now()
	raw, header, err := c.call(ctx, MethodInitialize, initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      c.info,
	}, "")
	if err != nil {
		return Session{}, fmt.Errorf("failed to initialize: %w", err)
	}

	var res initializeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		c.logger.Warn("failed to unmarshal initialize result", slog.String("err", err.Error()))
	}

	sess := Session{
		ID:              header.Get(SessionHeader),
		ProtocolVersion: res.ProtocolVersion,
		Server:          res.ServerInfo,
		Instructions:    res.Instructions,
	}
	if sess.ID == "" {
		sess.ID = res.SessionID
	}
	if sess.ID == "" {
		sess.ID = res.SessionIDSnake
	}
	if sess.ID == "" {
		sess.ID = syntheticSessionID()
		sess.Synthetic = true
	}

	span.SetAttributes(attribute.Bool("mcp.session.synthetic", sess.Synthetic))
	c.metrics.ObserveHandshake(sess.Synthetic, time.Since(start))

	if err := c.Notify(ctx, sess, methodNotificationsInitialized, nil); err != nil {
		c.logger.Warn("failed to send initialized notification", slog.String("err", err.Error()))
	}

	return sess, nil
}

func (s Session) headerValue() string {
	if s.Synthetic {
		return ""
	}
	return s.ID
}

// syntheticSessionID returns a time-ordered local token.
func syntheticSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return syntheticSessionPrefix + id.String()
}
