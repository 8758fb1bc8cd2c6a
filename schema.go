package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID is the numeric identifier correlating a request with its response. On the wire it may
// arrive either as a JSON number or as a string holding a number; both decode to the same value.
// The zero value means the frame carried no identifier.
type RequestID int64

// Request represents a JSON-RPC 2.0 request envelope sent by the client. A Request without an ID is
// a notification and expects no response.
type Request struct {
	// JSONRPC must always be "2.0" per the JSON-RPC specification
	JSONRPC string `json:"jsonrpc"`
	// ID is allocated by the Client and is never reused while a response is outstanding
	ID RequestID `json:"id,omitempty"`
	// Method contains the RPC method name
	Method string `json:"method"`
	// Params contains the parameters for the method call
	Params any `json:"params,omitempty"`
}

// Frame represents a single JSON-RPC 2.0 message received from the server, either as the whole
// body of a JSON reply or as the data of one event in an event-stream reply.
//   - Response: JSONRPC, ID, and exactly one of Result or Error are set
//   - Notification or server request: Method is set
type Frame struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      RequestID `json:"id,omitempty"`
	// Method is only present on frames the server initiates
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	// Result contains the successful response data as a raw JSON message
	Result json.RawMessage `json:"result,omitempty"`
	// Error contains error details if the request failed
	Error *RPCError `json:"error,omitempty"`
}

// RPCError represents an error object carried by a well-formed JSON-RPC 2.0 response frame.
type RPCError struct {
	// Code indicates the error type that occurred.
	Code int `json:"code"`

	// Message provides a short description of the error.
	Message string `json:"message"`

	// Data contains additional information about the error.
	// The value is unstructured and may be omitted.
	Data json.RawMessage `json:"data,omitempty"`
}

// Info contains metadata about a server or client instance including its name and version.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Tool defines a callable tool as advertised by tools/list.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ListToolsResult represents the tools/list response payload.
type ListToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// CallToolParams contains parameters for a tools/call request.
type CallToolParams struct {
	// Name is the name of the tool to invoke
	Name string `json:"name"`
	// Arguments contains the tool arguments as a JSON-serializable value
	Arguments any `json:"arguments,omitempty"`
}

// Content represents a single item of tool output.
type Content struct {
	Type ContentType `json:"type"`
	Text string      `json:"text,omitempty"`
}

// ContentType represents the type of content in tool output.
type ContentType string

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      Info           `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities,omitempty"`
	ServerInfo      Info            `json:"serverInfo"`
	Instructions    string          `json:"instructions,omitempty"`

	// Some servers hand out the session token in the result instead of a header.
	SessionID      string `json:"sessionId,omitempty"`
	SessionIDSnake string `json:"session_id,omitempty"`
}

const (
	// ContentTypeText marks a text content item.
	ContentTypeText ContentType = "text"
)

const (
	// JSONRPCVersion specifies the JSON-RPC protocol version used for communication.
	JSONRPCVersion = "2.0"

	// ProtocolVersion is the MCP protocol revision sent in the initialize request.
	ProtocolVersion = "2025-11-25"

	// MethodInitialize is the method name for the capability negotiation request.
	MethodInitialize = "initialize"
	// MethodToolsList is the method name for retrieving a list of available tools.
	MethodToolsList = "tools/list"
	// MethodToolsCall is the method name for invoking a specific tool.
	MethodToolsCall = "tools/call"

	// SessionHeader carries the session handle on every request after initialize.
	SessionHeader = "Mcp-Session-Id"

	methodNotificationsInitialized = "notifications/initialized"

	// JSON-RPC 2.0 reserved error codes.
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// UnmarshalJSON implements json.Unmarshaler, accepting a number, a numeric string or null.
func (r *RequestID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*r = 0
		return nil
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	switch v := v.(type) {
	case float64:
		if v != float64(int64(v)) {
			return fmt.Errorf("non-integer id: %v", v)
		}
		*r = RequestID(int64(v))
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("non-numeric id %q: %w", v, err)
		}
		*r = RequestID(n)
	default:
		return fmt.Errorf("invalid id type: %T", v)
	}

	return nil
}

// IsResponse reports whether the frame answers a request rather than being initiated by the server.
func (f Frame) IsResponse() bool {
	return f.Method == "" && f.ID != 0 && (f.Result != nil || f.Error != nil)
}

// unaddressed reports an error frame with a null id. Servers send it when they could not read
// the request well enough to know which id failed.
func (f Frame) unaddressed() bool {
	return f.Method == "" && f.ID == 0 && f.Error != nil && f.Result == nil
}

// Validate rejects frames that carry both a result and an error.
func (f Frame) Validate() error {
	if f.Result != nil && f.Error != nil {
		return &ProtocolError{ID: f.ID, Reason: "frame carries both result and error"}
	}
	return nil
}

func (e *RPCError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("rpc error, code: %d, message: %s, data: %s", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error, code: %d, message: %s", e.Code, e.Message)
}
