package tools

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/finassist/pkg/llmutils"
	mcp "github.com/metoro-io/mcp-golang"
)

//go:generate mockgen -source=tools.go -destination=../mocks/mocktools/tools_mock.gen.go -package mocktools

// McpServerRegistrator is implemented by MCP servers.
type McpServerRegistrator interface {
	RegisterTool(name string, description string, handler any) error
}

// ITool is a tool for the llm agent to interact with different applications.
type ITool interface {
	// Name returns the name of the Tool.
	Name() string
	// Description returns the description of the tool, to be used in the prompt.
	// Should not exceed LLM model limit.
	Description() string
	// Parameters returns the parameters definition of the function, to be used in the prompt.
	Parameters() any

	// Call executes the tool with the given input and returns the result.
	// If the tool fails to parse the input, it should return ErrFailedUnmarshalInput error.
	Call(context.Context, string) (string, error)
}

// Callback is notified on tool calls made by an assistant.
type Callback interface {
	OnToolStart(ctx context.Context, tool ITool, assistantName, input string)
	OnToolEnd(ctx context.Context, tool ITool, assistantName, input string, output string)
	OnToolError(ctx context.Context, tool ITool, assistantName, input string, err error)
}

// Tool is a typed ITool.
type Tool[I any, O any] interface {
	ITool
	Run(context.Context, *I) (*O, error)
}

// IMCPTool is an interface that extends ITool to include functionality for
// registering the tool with an MCP server.
type IMCPTool interface {
	ITool
	RegisterMCP(registrator McpServerRegistrator) error
}

// MCPTool is a typed IMCPTool, RunMCP is the handler registered with the server.
type MCPTool[I any] interface {
	IMCPTool
	RunMCP(context.Context, I) (*mcp.ToolResponse, error)
}

// RegisterMCP registers the tools with the MCP server.
func RegisterMCP(registrator McpServerRegistrator, list ...IMCPTool) error {
	for _, tool := range list {
		if err := tool.RegisterMCP(registrator); err != nil {
			return errors.WithMessagef(err, "failed to register tool %s", tool.Name())
		}
	}
	return nil
}

// Find returns the tool by name, or nil.
func Find(list []ITool, name string) ITool {
	for _, tool := range list {
		if tool.Name() == name {
			return tool
		}
	}
	return nil
}

// Names returns the names of the tools.
func Names(list []ITool) []string {
	names := make([]string, 0, len(list))
	for _, tool := range list {
		names = append(names, tool.Name())
	}
	return names
}

type toolDescription struct {
	Name        string `json:"Name" yaml:"Name"`
	Description string `json:"Description" yaml:"Description"`
}

type toolsDescription struct {
	Tools []toolDescription `json:"Tools" yaml:"Tools"`
}

// GetDescriptions returns names and descriptions of the tools,
// as a JSON block for the prompt.
func GetDescriptions(list ...ITool) string {
	var d toolsDescription
	for _, tool := range list {
		d.Tools = append(d.Tools, toolDescription{
			Name:        tool.Name(),
			Description: tool.Description(),
		})
	}
	return llmutils.BackticksJSON(llmutils.ToJSONIndent(d))
}
