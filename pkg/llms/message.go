package llms

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrUnexpectedRole is returned when a message role is of an unexpected type.
var ErrUnexpectedRole = errors.New("unexpected role")

// Role is the type of chat message.
type Role string

const (
	// RoleAI is a message sent by an AI.
	RoleAI Role = "ai"
	// RoleHuman is a message sent by a human.
	RoleHuman Role = "human"
	// RoleSystem is a message sent by the system.
	RoleSystem Role = "system"
	// RoleTool is a message sent by a tool.
	RoleTool Role = "tool"
)

// Message is the message sent to a LLM. It has a role and a
// sequence of parts.
type Message struct {
	Role  Role          `json:"role"`
	Parts []ContentPart `json:"parts"`
}

// ContentPart is an interface all parts of content have to implement.
type ContentPart interface {
	isPart()
}

// TextContent is content with some text.
type TextContent struct {
	Text string `json:"text"`
}

func (tc TextContent) String() string {
	return tc.Text
}

func (TextContent) isPart() {}

// TextPart creates TextContent from a given string.
func TextPart(s string) TextContent {
	return TextContent{Text: s}
}

// FunctionCall is the name and arguments of a function call.
type FunctionCall struct {
	// The name of the function to call.
	Name string `json:"name"`
	// The arguments to pass to the function, as a JSON string.
	Arguments string `json:"arguments"`
}

// ToolCall is a call to a tool (as requested by the model) that should be executed.
type ToolCall struct {
	// ID is the unique identifier of the tool call.
	ID string `json:"id"`
	// Type is the type of the tool call. Typically, this would be "function".
	Type string `json:"type"`
	// FunctionCall is the function call to be executed.
	FunctionCall *FunctionCall `json:"function,omitempty"`
}

func (tc ToolCall) String() string {
	if tc.FunctionCall == nil {
		return fmt.Sprintf("ToolCall: %s", tc.ID)
	}
	return fmt.Sprintf("ToolCall: %s (%s), input: %s", tc.ID, tc.FunctionCall.Name, tc.FunctionCall.Arguments)
}

func (ToolCall) isPart() {}

// ToolCallResponse is the response returned by a tool call.
type ToolCallResponse struct {
	// ToolCallID is the ID of the tool call this response is for.
	ToolCallID string `json:"tool_call_id"`
	// Name is the name of the tool that was called.
	Name string `json:"name"`
	// Content is the textual content of the response.
	Content string `json:"content"`
}

func (tc ToolCallResponse) String() string {
	return fmt.Sprintf("ToolCallResponse: %s (%s), response size: %d", tc.ToolCallID, tc.Name, len(tc.Content))
}

func (ToolCallResponse) isPart() {}

// ContentResponse is the response returned by a GenerateContent call.
// It can potentially return multiple content choices.
type ContentResponse struct {
	Choices []*ContentChoice
}

// ContentChoice is one of the response choices returned by GenerateContent
// calls.
type ContentChoice struct {
	// Content is the textual content of a response
	Content string `json:"content"`

	// StopReason is the reason the model stopped generating output.
	StopReason string `json:"stop_reason"`

	// GenerationInfo is arbitrary information the model adds to the response,
	// token usage is reported as InputTokens, OutputTokens and TotalTokens.
	GenerationInfo map[string]any `json:"generation_info"`

	// ToolCalls is a list of tool calls the model asks to invoke.
	ToolCalls []ToolCall `json:"tool_calls"`
}

// MessageFromParts is a helper function to create a Message with a role and a
// list of parts.
func MessageFromParts(role Role, parts ...ContentPart) Message {
	return Message{
		Role:  role,
		Parts: parts,
	}
}

// MessageFromTextParts is a helper function to create a Message with a role and a
// list of text parts.
func MessageFromTextParts(role Role, parts ...string) Message {
	result := Message{
		Role:  role,
		Parts: make([]ContentPart, 0, len(parts)),
	}
	for _, part := range parts {
		result.Parts = append(result.Parts, TextPart(part))
	}
	return result
}

// MessageFromToolCalls is a helper function to create a Message with a role and a
// list of tool calls.
func MessageFromToolCalls(role Role, toolCalls ...ToolCall) Message {
	result := Message{
		Role:  role,
		Parts: make([]ContentPart, 0, len(toolCalls)),
	}
	for _, tc := range toolCalls {
		call := ToolCall{
			ID:   tc.ID,
			Type: tc.Type,
		}
		if tc.FunctionCall != nil {
			call.FunctionCall = &FunctionCall{
				Name:      tc.FunctionCall.Name,
				Arguments: tc.FunctionCall.Arguments,
			}
		}
		result.Parts = append(result.Parts, call)
	}
	return result
}

// MessageFromToolResponse is a helper function to create a Message with a role and a
// tool response.
func MessageFromToolResponse(role Role, toolResponse ToolCallResponse) Message {
	return MessageFromParts(role, toolResponse)
}

// GetContent returns the text of the message for the chat history.
func (m Message) GetContent() string {
	var buf strings.Builder
	lastNewLine := true
	for _, p := range m.Parts {
		if !lastNewLine {
			buf.WriteString("\n")
		}
		switch typ := p.(type) {
		case TextContent:
			buf.WriteString(typ.Text)
			lastNewLine = strings.HasSuffix(typ.Text, "\n")
		case ToolCall:
			buf.WriteString("Tool Call: ")
			js, _ := json.Marshal(typ)
			buf.Write(js)
			buf.WriteString("\n")
			lastNewLine = true
		case ToolCallResponse:
			buf.WriteString("Response: ")
			js, _ := json.Marshal(typ)
			buf.Write(js)
			buf.WriteString("\n")
			lastNewLine = true
		}
	}
	if !lastNewLine {
		buf.WriteString("\n")
	}
	return buf.String()
}

type partJSON struct {
	Type         string            `json:"type"`
	Text         string            `json:"text,omitempty"`
	ToolCall     *ToolCall         `json:"tool_call,omitempty"`
	ToolResponse *ToolCallResponse `json:"tool_response,omitempty"`
}

type messageJSON struct {
	Role  Role       `json:"role"`
	Parts []partJSON `json:"parts"`
}

// MarshalJSON implements json.Marshaler
func (m Message) MarshalJSON() ([]byte, error) {
	mj := messageJSON{
		Role:  m.Role,
		Parts: make([]partJSON, 0, len(m.Parts)),
	}
	for _, p := range m.Parts {
		switch pp := p.(type) {
		case TextContent:
			mj.Parts = append(mj.Parts, partJSON{Type: "text", Text: pp.Text})
		case ToolCall:
			mj.Parts = append(mj.Parts, partJSON{Type: "tool_call", ToolCall: &pp})
		case ToolCallResponse:
			mj.Parts = append(mj.Parts, partJSON{Type: "tool_response", ToolResponse: &pp})
		default:
			return nil, errors.Newf("unsupported content part: %T", p)
		}
	}
	return json.Marshal(mj)
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Message) UnmarshalJSON(data []byte) error {
	var mj messageJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return errors.WithStack(err)
	}

	m.Role = mj.Role
	m.Parts = make([]ContentPart, 0, len(mj.Parts))
	for _, p := range mj.Parts {
		switch p.Type {
		case "text":
			m.Parts = append(m.Parts, TextContent{Text: p.Text})
		case "tool_call":
			if p.ToolCall == nil {
				return errors.New("missing tool_call")
			}
			m.Parts = append(m.Parts, *p.ToolCall)
		case "tool_response":
			if p.ToolResponse == nil {
				return errors.New("missing tool_response")
			}
			m.Parts = append(m.Parts, *p.ToolResponse)
		default:
			return errors.Newf("unsupported content part: %q", p.Type)
		}
	}
	return nil
}
