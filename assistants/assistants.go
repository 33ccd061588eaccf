package assistants

import (
	"context"
	"fmt"
	"strings"

	"github.com/effective-security/finassist/pkg/llms"
	"github.com/effective-security/finassist/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/finassist", "assistants")

// SystemPrompter renders the system prompt of an Assistant.
type SystemPrompter interface {
	Format(values map[string]any) (string, error)
	GetInputVariables() []string
}

type IAssistant interface {
	// Name returns the name of the Assistant.
	Name() string
	// Description returns the description of the Assistant, to be used in the prompt of other Assistants or LLMs.
	// Should not exceed LLM model limit.
	Description() string

	Call(ctx context.Context, input *CallInput) (*llms.ContentResponse, error)
}

// CallInput is the input of one run of an Assistant.
type CallInput struct {
	// Input is the user question, may be empty when Messages are provided.
	Input string
	// PromptInputs are merged over the configured prompt inputs.
	PromptInputs map[string]any
	// Messages are appended after the user question.
	Messages []llms.Message
	// Options override the Assistant config for this call.
	Options []Option
}

type Callback interface {
	tools.Callback
	OnAssistantStart(ctx context.Context, agent IAssistant, input string)
	OnAssistantEnd(ctx context.Context, agent IAssistant, input string, resp *llms.ContentResponse, messages []llms.Message)
	OnAssistantError(ctx context.Context, agent IAssistant, input string, err error, messages []llms.Message)
	OnAssistantLLMCallStart(ctx context.Context, agent IAssistant, llm llms.Model, payload []llms.Message)
	OnAssistantLLMCallEnd(ctx context.Context, agent IAssistant, llm llms.Model, resp *llms.ContentResponse)
	OnToolNotFound(ctx context.Context, agent IAssistant, tool string)
}

func GetDescriptions(list ...IAssistant) string {
	var ts strings.Builder
	for _, item := range list {
		ts.WriteString(fmt.Sprintf("- `%s`: %s\n", item.Name(), item.Description()))
	}
	return ts.String()
}

// Content returns the text of the response, choices are joined by a blank line.
func Content(resp *llms.ContentResponse) string {
	if resp == nil {
		return ""
	}
	var buf strings.Builder
	for i, choice := range resp.Choices {
		if i > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(choice.Content)
	}
	return buf.String()
}
