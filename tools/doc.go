// Package tools defines the Tool interface for LLM agents, including
// parameter schema and MCP server registration.
package tools
