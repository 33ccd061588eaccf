// Package anthropic implements the llms.Model for Anthropic Claude
// using the official SDK.
package anthropic

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/finassist/pkg/llms"
	"github.com/effective-security/x/values"
)

var (
	ErrMissingToken           = errors.New("anthropic: missing API key, set it in the ANTHROPIC_API_KEY environment variable")
	ErrInvalidContentType     = errors.New("anthropic: invalid content type")
	ErrUnsupportedMessageType = errors.New("anthropic: unsupported message type")
	ErrUnsupportedContentType = errors.New("anthropic: unsupported content type")
)

const (
	DefaultMaxTokens = 4096
)

// LLM is the Anthropic model.
type LLM struct {
	Client  *anthropic.Client
	Options *Options
}

var _ llms.Model = (*LLM)(nil)

// New creates a new Anthropic LLM client.
//
// Required configuration:
//   - API token (via WithToken option or ANTHROPIC_API_KEY env var)
//   - Model (via WithModel option)
func New(opts ...Option) (*LLM, error) {
	options := &Options{
		Token:      os.Getenv(TokenEnvVarName),
		BaseURL:    DefaultBaseURL,
		MaxRetries: 2,
	}
	for _, opt := range opts {
		opt(options)
	}

	if len(options.Token) == 0 {
		return nil, ErrMissingToken
	}
	if options.Model == "" {
		return nil, errors.New("anthropic: model is required")
	}

	sdkOpts := []option.RequestOption{
		option.WithAPIKey(options.Token),
		option.WithMaxRetries(options.MaxRetries),
		option.WithRequestTimeout(DefaultTimeout),
	}
	if options.BaseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(options.BaseURL))
	}

	client := anthropic.NewClient(sdkOpts...)
	return &LLM{
		Client:  &client,
		Options: options,
	}, nil
}

// GetName returns the model name.
func (o *LLM) GetName() string {
	return o.Options.Model
}

// GetProviderType implements the Model interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderAnthropic
}

// GenerateContent implements the Model interface.
// The response has a single choice with the text blocks joined
// and every tool_use block as a tool call.
func (o *LLM) GenerateContent(ctx context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{
		Model: o.Options.Model,
	}
	for _, opt := range options {
		opt(&opts)
	}

	sdkMessages, systemPrompt, err := ProcessMessages(messages)
	if err != nil {
		return nil, errors.WithMessage(err, "anthropic: failed to process messages")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		Messages:  sdkMessages,
		MaxTokens: values.NumbersCoalesce(int64(opts.MaxTokens), DefaultMaxTokens),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: systemPrompt,
			},
		}
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	if opts.TopP > 0 {
		params.TopP = anthropic.Float(opts.TopP)
	}
	if len(opts.StopWords) > 0 {
		params.StopSequences = opts.StopWords
	}
	if opts.ToolChoice != llms.FunctionCallBehaviorNone {
		params.Tools = ToTools(opts.Tools)
	}

	result, err := o.Client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "anthropic: failed to create message")
	}

	choice := &llms.ContentChoice{
		StopReason: string(result.StopReason),
		GenerationInfo: map[string]any{
			"InputTokens":  result.Usage.InputTokens,
			"OutputTokens": result.Usage.OutputTokens,
			"TotalTokens":  result.Usage.InputTokens + result.Usage.OutputTokens,
			"ID":           result.ID,
		},
	}

	var text strings.Builder
	for _, contentBlock := range result.Content {
		switch content := contentBlock.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(content.Text)
		case anthropic.ToolUseBlock:
			argumentsJSON, err := json.Marshal(content.Input)
			if err != nil {
				return nil, errors.Wrap(err, "anthropic: failed to marshal tool use arguments")
			}
			choice.ToolCalls = append(choice.ToolCalls, llms.ToolCall{
				ID:   content.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      content.Name,
					Arguments: string(argumentsJSON),
				},
			})
		case anthropic.ThinkingBlock, anthropic.RedactedThinkingBlock:
		default:
			return nil, errors.WithMessagef(ErrUnsupportedContentType, "anthropic: %T", content)
		}
	}
	choice.Content = text.String()

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{choice},
	}, nil
}
