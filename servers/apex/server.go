package apex

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"

	mcp "github.com/ariffazil/openclaw-arifos-bridge"
)

// Mode selects how the server encodes its replies.
type Mode int

const (
	// ModeJSON answers every request with one application/json document.
	ModeJSON Mode = iota
	// ModeSSE answers every request with a text/event-stream.
	ModeSSE
)

// ToolFunc produces the result of a tools/call. Returning a non-nil *mcp.RPCError answers with
// an error frame instead.
type ToolFunc func(args map[string]any) (any, *mcp.RPCError)

// Server is an in-memory stand-in for the arifOS MCP endpoint. It speaks the Streamable HTTP
// transport: every POST carries one JSON-RPC message and is answered either with a JSON document
// or with an event stream, depending on Mode.
//
// Server is meant for tests and demos. Behaviour that a real deployment shows only under
// failure, such as garbled events or a stream that never answers, can be switched on with
// options.
type Server struct {
	mode           Mode
	logger         *slog.Logger
	issueSessions  bool
	sessionInBody  bool
	prelude        bool
	doneSentinel   bool
	dropTerminal   map[string]bool
	statusOverride map[string]int
	tools          map[string]ToolFunc

	mu       sync.Mutex
	sessions map[string]struct{}
	received []Received
}

// Received records one message the server accepted, for assertions in tests.
type Received struct {
	Method        string
	ID            mcp.RequestID
	SessionID     string
	Authorization string
	Params        json.RawMessage
}

// Option configures a Server.
type Option func(*Server)

type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      mcp.RequestID   `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      mcp.RequestID `json:"id"`
	Result  any           `json:"result,omitempty"`
	Error   *mcp.RPCError `json:"error,omitempty"`
}

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// WithMode sets the reply encoding. Defaults to ModeJSON.
func WithMode(mode Mode) Option {
	return func(s *Server) {
		s.mode = mode
	}
}

// WithLogger sets the logger for the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithoutSessions stops the server from issuing and checking the Mcp-Session-Id header.
func WithoutSessions() Option {
	return func(s *Server) {
		s.issueSessions = false
	}
}

// WithSessionInResult returns the session token in the initialize result as "sessionId" instead
// of in the response header. Session checking stays enabled.
func WithSessionInResult() Option {
	return func(s *Server) {
		s.sessionInBody = true
	}
}

// WithMalformedPrelude makes event-stream replies start with an event whose data is not JSON.
func WithMalformedPrelude() Option {
	return func(s *Server) {
		s.prelude = true
	}
}

// WithDoneSentinel makes event-stream replies end with a "[DONE]" event.
func WithDoneSentinel() Option {
	return func(s *Server) {
		s.doneSentinel = true
	}
}

// WithoutTerminalFrame makes replies to method carry no response frame. In ModeSSE the stream
// closes after the non-terminal events; in ModeJSON the body is empty.
func WithoutTerminalFrame(method string) Option {
	return func(s *Server) {
		s.dropTerminal[method] = true
	}
}

// WithStatus makes the server answer method with the given HTTP status and a plain-text body.
func WithStatus(method string, status int) Option {
	return func(s *Server) {
		s.statusOverride[method] = status
	}
}

// WithTool registers or replaces a tool.
func WithTool(name string, fn ToolFunc) Option {
	return func(s *Server) {
		s.tools[name] = fn
	}
}

// NewServer creates a server with the default arifOS tools registered.
func NewServer(options ...Option) *Server {
	s := &Server{
		mode:           ModeJSON,
		logger:         slog.Default(),
		issueSessions:  true,
		dropTerminal:   make(map[string]bool),
		statusOverride: make(map[string]int),
		tools:          defaultTools(),
		sessions:       make(map[string]struct{}),
	}
	for _, opt := range options {
		opt(s)
	}

	return s
}

// Received returns a copy of every message accepted so far, in arrival order.
func (s *Server) Received() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Received, len(s.received))
	copy(out, s.received)
	return out
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read body: %v", err), http.StatusBadRequest)
		return
	}

	var msg message
	if err := json.Unmarshal(body, &msg); err != nil {
		s.reply(w, r, "", response{
			JSONRPC: mcp.JSONRPCVersion,
			Error:   &mcp.RPCError{Code: mcp.CodeParseError, Message: "Invalid json"},
		})
		return
	}

	s.mu.Lock()
	s.received = append(s.received, Received{
		Method:        msg.Method,
		ID:            msg.ID,
		SessionID:     r.Header.Get(mcp.SessionHeader),
		Authorization: r.Header.Get("Authorization"),
		Params:        msg.Params,
	})
	s.mu.Unlock()

	if status, ok := s.statusOverride[msg.Method]; ok {
		http.Error(w, fmt.Sprintf("upstream refused %s", msg.Method), status)
		return
	}

	if msg.Method == mcp.MethodInitialize {
		s.initialize(w, r, msg)
		return
	}

	if s.issueSessions {
		sessID := r.Header.Get(mcp.SessionHeader)
		switch {
		case sessID == "":
			http.Error(w, "missing session", http.StatusBadRequest)
			return
		case !s.knownSession(sessID):
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
	}

	if msg.ID == 0 {
		// Notifications are acknowledged without a body.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	s.reply(w, r, msg.Method, s.handle(msg))
}

func (s *Server) initialize(w http.ResponseWriter, r *http.Request, msg message) {
	result := map[string]any{
		"protocolVersion": mcp.ProtocolVersion,
		"capabilities":    map[string]any{"tools": map[string]any{}},
		"serverInfo":      mcp.Info{Name: "arifos-apex", Version: "0.1.0"},
	}

	if s.issueSessions {
		sessID := uuid.New().String()
		s.mu.Lock()
		s.sessions[sessID] = struct{}{}
		s.mu.Unlock()

		if s.sessionInBody {
			result["sessionId"] = sessID
		} else {
			w.Header().Set(mcp.SessionHeader, sessID)
		}
	}

	s.reply(w, r, msg.Method, response{JSONRPC: mcp.JSONRPCVersion, ID: msg.ID, Result: result})
}

func (s *Server) handle(msg message) response {
	resp := response{JSONRPC: mcp.JSONRPCVersion, ID: msg.ID}

	switch msg.Method {
	case mcp.MethodToolsList:
		resp.Result = mcp.ListToolsResult{Tools: toolList()}
	case mcp.MethodToolsCall:
		var params struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			resp.Error = &mcp.RPCError{Code: mcp.CodeInvalidParams, Message: "Invalid params"}
			return resp
		}
		fn, ok := s.tools[params.Name]
		if !ok {
			resp.Error = &mcp.RPCError{Code: mcp.CodeInvalidParams, Message: fmt.Sprintf("unknown tool: %s", params.Name)}
			return resp
		}
		result, rpcErr := fn(params.Arguments)
		if rpcErr != nil {
			resp.Error = rpcErr
			return resp
		}
		resp.Result = result
	default:
		resp.Error = &mcp.RPCError{Code: mcp.CodeMethodNotFound, Message: fmt.Sprintf("method not found: %s", msg.Method)}
	}

	return resp
}

func (s *Server) reply(w http.ResponseWriter, r *http.Request, method string, resp response) {
	drop := s.dropTerminal[method]

	if s.mode == ModeSSE {
		s.replySSE(w, r, resp, drop)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if drop {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to write response", "err", err)
	}
}

func (s *Server) replySSE(w http.ResponseWriter, r *http.Request, resp response, drop bool) {
	sess, err := sse.Upgrade(w, r)
	if err != nil {
		nErr := fmt.Errorf("failed to upgrade session: %w", err)
		s.logger.Error("failed to upgrade session", "err", nErr)
		http.Error(w, nErr.Error(), http.StatusInternalServerError)
		return
	}

	var events []string
	if s.prelude {
		events = append(events, `{"jsonrpc":"2.0","id":`)
	}
	progress, _ := json.Marshal(notification{
		JSONRPC: mcp.JSONRPCVersion,
		Method:  "notifications/message",
		Params:  map[string]any{"level": "info", "data": "evaluating"},
	})
	events = append(events, string(progress))
	if !drop {
		bs, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error("failed to marshal response", "err", err)
			return
		}
		events = append(events, string(bs))
	}
	if s.doneSentinel {
		events = append(events, "[DONE]")
	}

	for _, data := range events {
		msg := sse.Message{
			Type: sse.Type("message"),
		}
		msg.AppendData(data)
		if err := sess.Send(&msg); err != nil {
			s.logger.Error("failed to write event", "err", err)
			return
		}
		if err := sess.Flush(); err != nil {
			s.logger.Error("failed to flush event", "err", err)
			return
		}
	}
}

func (s *Server) knownSession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	return ok
}
