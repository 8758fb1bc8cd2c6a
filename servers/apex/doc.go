// Package apex provides a fake arifOS MCP endpoint for tests and local demos. It implements
// initialize, tools/list and tools/call for apex_judge, anchor_session and reason_mind, and can
// reply in either transport encoding.
package apex
