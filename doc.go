// Package mcp implements the client side of the Model Context Protocol (MCP) Streamable HTTP
// transport, as used by the OpenClaw bridge to reach the arifOS governance server.
//
// Every call is a JSON-RPC 2.0 request sent as an HTTP POST. The server answers either with a
// single JSON document or with a text/event-stream whose events carry one or more JSON-RPC frames;
// the Client handles both without prior knowledge. A call is correlated with its answer by a
// numeric identifier that the Client allocates from a per-instance counter.
//
// Before a tool may be invoked, a session is negotiated with an initialize request. By default
// every logical operation negotiates its own session, so no follow-up call depends on server-side
// session state surviving between operations.
package mcp
