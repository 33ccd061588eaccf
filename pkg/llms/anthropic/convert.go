package anthropic

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/finassist/pkg/llms"
)

// ToTools converts LLM tool definitions to Anthropic SDK tool parameters.
func ToTools(tools []llms.Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	sdkTools := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		if tool.Function == nil {
			continue
		}

		inputSchema := anthropic.ToolInputSchemaParam{
			Type: "object",
		}
		if params := tool.Function.Parameters; params != nil {
			if params.Properties != nil {
				properties := make(map[string]any, params.Properties.Len())
				for pair := params.Properties.Oldest(); pair != nil; pair = pair.Next() {
					properties[pair.Key] = pair.Value
				}
				inputSchema.Properties = properties
			}
			if len(params.Required) > 0 {
				inputSchema.Required = params.Required
			}
		}

		sdkTools = append(sdkTools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Function.Name,
				Description: anthropic.String(tool.Function.Description),
				InputSchema: inputSchema,
			},
		})
	}
	return sdkTools
}

// ProcessMessages converts messages to Anthropic SDK message parameters,
// system messages are returned as the system prompt.
func ProcessMessages(messages []llms.Message) ([]anthropic.MessageParam, string, error) {
	chatMessages := make([]anthropic.MessageParam, 0, len(messages))
	systemPrompt := ""
	for _, msg := range messages {
		if len(msg.Parts) == 0 {
			continue
		}
		switch msg.Role {
		case llms.RoleSystem:
			content, err := handleSystemMessage(msg)
			if err != nil {
				return nil, "", err
			}
			if systemPrompt != "" {
				systemPrompt += "\n" + content
			} else {
				systemPrompt = content
			}
		case llms.RoleHuman:
			chatMessage, err := handleHumanMessage(msg)
			if err != nil {
				return nil, "", err
			}
			chatMessages = append(chatMessages, chatMessage)
		case llms.RoleAI:
			chatMessage, err := handleAIMessage(msg)
			if err != nil {
				return nil, "", err
			}
			chatMessages = append(chatMessages, chatMessage)
		case llms.RoleTool:
			chatMessage, err := handleToolMessage(msg)
			if err != nil {
				return nil, "", err
			}
			chatMessages = append(chatMessages, chatMessage)
		default:
			return nil, "", errors.WithMessagef(ErrUnsupportedMessageType, "%v", msg.Role)
		}
	}
	return chatMessages, systemPrompt, nil
}

func handleSystemMessage(msg llms.Message) (string, error) {
	if textContent, ok := msg.Parts[0].(llms.TextContent); ok {
		return textContent.Text, nil
	}
	return "", errors.WithMessagef(ErrInvalidContentType, "for system message")
}

func handleHumanMessage(msg llms.Message) (anthropic.MessageParam, error) {
	var contents []anthropic.ContentBlockParamUnion
	for _, part := range msg.Parts {
		p, ok := part.(llms.TextContent)
		if !ok {
			return anthropic.MessageParam{}, errors.WithMessagef(ErrInvalidContentType, "for human message part type: %T", part)
		}
		contents = append(contents, anthropic.NewTextBlock(p.Text))
	}
	return anthropic.NewUserMessage(contents...), nil
}

func handleAIMessage(msg llms.Message) (anthropic.MessageParam, error) {
	var contents []anthropic.ContentBlockParamUnion
	for _, part := range msg.Parts {
		switch p := part.(type) {
		case llms.ToolCall:
			if p.FunctionCall == nil {
				return anthropic.MessageParam{}, errors.Newf("tool call %s: missing function", p.ID)
			}
			args := p.FunctionCall.Arguments
			if args == "" {
				args = "{}"
			}
			var inputJSON json.RawMessage
			if err := json.Unmarshal([]byte(args), &inputJSON); err != nil {
				return anthropic.MessageParam{}, errors.Wrap(err, "anthropic: failed to unmarshal tool call arguments")
			}
			contents = append(contents, anthropic.NewToolUseBlock(p.ID, inputJSON, p.FunctionCall.Name))
		case llms.TextContent:
			if p.Text == "" {
				continue
			}
			contents = append(contents, anthropic.NewTextBlock(p.Text))
		default:
			return anthropic.MessageParam{}, errors.WithMessagef(ErrInvalidContentType, "for AI message part type: %T", part)
		}
	}
	return anthropic.NewAssistantMessage(contents...), nil
}

// tool results are sent back as user messages
func handleToolMessage(msg llms.Message) (anthropic.MessageParam, error) {
	var contents []anthropic.ContentBlockParamUnion
	for _, part := range msg.Parts {
		p, ok := part.(llms.ToolCallResponse)
		if !ok {
			return anthropic.MessageParam{}, errors.WithMessagef(ErrInvalidContentType, "for tool message part type: %T", part)
		}
		contents = append(contents, anthropic.NewToolResultBlock(p.ToolCallID, p.Content, false))
	}
	return anthropic.NewUserMessage(contents...), nil
}
