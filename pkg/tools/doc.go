// Package tools builds a tool catalog from MCP (Model Context Protocol)
// servers. Discovered tools are exposed as canonical tool definitions for
// completion requests, and tool calls returned by the model are routed
// back to the owning server for execution.
package tools
