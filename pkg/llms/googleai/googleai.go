// Package googleai implements the llms.Model for Google Gemini API.
// See https://ai.google.dev/ for more details.
package googleai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/finassist/pkg/llms"
	"github.com/effective-security/finassist/pkg/llms/googleai/internal/genaiutils"
	"github.com/google/uuid"
	"google.golang.org/genai"
)

var (
	ErrNoContentInResponse   = errors.New("no content in generation response")
	ErrUnknownPartInResponse = errors.New("unknown part type in generation response")
)

const (
	CITATIONS = "citations"
	SAFETY    = "safety"
	RoleModel = "model"
	RoleUser  = "user"
)

// GoogleAI is a type that represents a Google AI API client.
type GoogleAI struct {
	client *genai.Client
	opts   Options
}

var _ llms.Model = (*GoogleAI)(nil)

// New creates a new GoogleAI client.
func New(ctx context.Context, opts ...Option) (*GoogleAI, error) {
	return NewWithBaseURL(ctx, "", opts...)
}

// NewWithBaseURL creates a new GoogleAI client for the API at baseURL,
// empty baseURL uses the public endpoint.
func NewWithBaseURL(ctx context.Context, baseURL string, opts ...Option) (*GoogleAI, error) {
	clientOptions := DefaultOptions()
	for _, opt := range opts {
		opt(&clientOptions)
	}
	clientOptions.EnsureAuthPresent()

	cfg := &genai.ClientConfig{
		APIKey:      clientOptions.APIKey,
		Credentials: clientOptions.Credentials,
		Backend:     genai.BackendGeminiAPI,
	}
	if clientOptions.Project != "" {
		cfg.Backend = genai.BackendVertexAI
		cfg.Project = clientOptions.Project
		cfg.Location = clientOptions.Location
		cfg.APIKey = ""
	}
	if baseURL != "" {
		cfg.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create genai client")
	}

	return &GoogleAI{
		client: client,
		opts:   clientOptions,
	}, nil
}

// GetName returns the default model name.
func (g *GoogleAI) GetName() string {
	return g.opts.DefaultModel
}

// GetProviderType implements the Model interface.
func (g *GoogleAI) GetProviderType() llms.ProviderType {
	return llms.ProviderGoogleAI
}

// GenerateContent implements the [llms.Model] interface.
func (g *GoogleAI) GenerateContent(
	ctx context.Context,
	messages []llms.Message,
	options ...llms.CallOption,
) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{
		Model:       g.opts.DefaultModel,
		MaxTokens:   g.opts.DefaultMaxTokens,
		Temperature: g.opts.DefaultTemperature,
		TopP:        g.opts.DefaultTopP,
		TopK:        g.opts.DefaultTopK,
	}
	for _, opt := range options {
		opt(&opts)
	}

	callCfg, err := g.buildConfig(&opts)
	if err != nil {
		return nil, err
	}

	history, err := convertMessages(messages, callCfg)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Models.GenerateContent(ctx, opts.Model, history, callCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate content")
	}

	if len(resp.Candidates) == 0 {
		return nil, ErrNoContentInResponse
	}
	return convertCandidates(resp.Candidates, resp.UsageMetadata)
}

func (g *GoogleAI) buildConfig(opts *llms.CallOptions) (*genai.GenerateContentConfig, error) {
	callCfg := &genai.GenerateContentConfig{
		StopSequences:   opts.StopWords,
		MaxOutputTokens: int32(opts.MaxTokens),
		Temperature:     genaiutils.Float32Ptr(float32(opts.Temperature)),
		TopP:            genaiutils.Float32Ptr(float32(opts.TopP)),
		TopK:            genaiutils.Float32Ptr(float32(opts.TopK)),
		Seed:            genaiutils.Int32Ptr(int32(opts.Seed)),
	}

	for _, category := range []genai.HarmCategory{
		genai.HarmCategoryDangerousContent,
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
	} {
		callCfg.SafetySettings = append(callCfg.SafetySettings, &genai.SafetySetting{
			Category:  category,
			Threshold: g.opts.HarmThreshold,
		})
	}

	var err error
	if callCfg.Tools, err = genaiutils.ConvertTools(opts.Tools); err != nil {
		return nil, err
	}

	if len(callCfg.Tools) > 0 && opts.ToolChoice != "" {
		mode := genai.FunctionCallingConfigModeAuto
		switch opts.ToolChoice {
		case llms.FunctionCallBehaviorNone:
			mode = genai.FunctionCallingConfigModeNone
		case llms.FunctionCallBehaviorAny:
			mode = genai.FunctionCallingConfigModeAny
		}
		callCfg.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode},
		}
	}

	return callCfg, nil
}

// convertMessages converts the history, system messages are moved to config.
func convertMessages(messages []llms.Message, config *genai.GenerateContentConfig) ([]*genai.Content, error) {
	history := make([]*genai.Content, 0, len(messages))
	var system []*genai.Part
	for _, mc := range messages {
		content, err := convertContent(mc)
		if err != nil {
			return nil, err
		}
		if mc.Role == llms.RoleSystem {
			system = append(system, content.Parts...)
			continue
		}
		history = append(history, content)
	}
	if len(system) > 0 {
		config.SystemInstruction = &genai.Content{Parts: system}
	}
	return history, nil
}

// convertCandidates converts a sequence of genai.Candidate to a response.
func convertCandidates(candidates []*genai.Candidate, usage *genai.GenerateContentResponseUsageMetadata) (*llms.ContentResponse, error) {
	var contentResponse llms.ContentResponse

	for _, candidate := range candidates {
		buf := strings.Builder{}
		var toolCalls []llms.ToolCall

		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				switch {
				case part.FunctionCall != nil:
					b, err := json.Marshal(part.FunctionCall.Args)
					if err != nil {
						return nil, errors.WithStack(err)
					}
					id := part.FunctionCall.ID
					if id == "" {
						id = uuid.NewString()
					}
					toolCalls = append(toolCalls, llms.ToolCall{
						ID:   id,
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      part.FunctionCall.Name,
							Arguments: string(b),
						},
					})
				case part.Thought:
					// skip reasoning
				case part.Text != "":
					buf.WriteString(part.Text)
				default:
					return nil, errors.Wrapf(ErrUnknownPartInResponse, "not text or tool")
				}
			}
		}

		metadata := make(map[string]any)
		metadata[CITATIONS] = candidate.CitationMetadata
		metadata[SAFETY] = candidate.SafetyRatings

		if usage != nil {
			metadata["InputTokens"] = usage.PromptTokenCount
			metadata["OutputTokens"] = usage.CandidatesTokenCount + usage.ToolUsePromptTokenCount + usage.ThoughtsTokenCount
			metadata["TotalTokens"] = usage.TotalTokenCount
		}

		contentResponse.Choices = append(contentResponse.Choices,
			&llms.ContentChoice{
				Content:        buf.String(),
				StopReason:     string(candidate.FinishReason),
				GenerationInfo: metadata,
				ToolCalls:      toolCalls,
			})
	}
	return &contentResponse, nil
}

// convertParts converts between a sequence of llms parts and genai parts.
func convertParts(parts []llms.ContentPart) ([]*genai.Part, error) {
	convertedParts := make([]*genai.Part, 0, len(parts))
	for _, part := range parts {
		out := new(genai.Part)

		switch p := part.(type) {
		case llms.TextContent:
			out.Text = p.Text
		case llms.ToolCall:
			fc := p.FunctionCall
			if fc == nil {
				return nil, errors.Newf("tool call %s: missing function", p.ID)
			}
			var argsMap map[string]any
			if fc.Arguments != "" {
				if err := json.Unmarshal([]byte(fc.Arguments), &argsMap); err != nil {
					return nil, errors.Wrapf(err, "tool call %s: invalid arguments", p.ID)
				}
			}
			out.FunctionCall = &genai.FunctionCall{
				ID:   p.ID,
				Name: fc.Name,
				Args: argsMap,
			}
		case llms.ToolCallResponse:
			out.FunctionResponse = &genai.FunctionResponse{
				ID:   p.ToolCallID,
				Name: p.Name,
				Response: map[string]any{
					"response": p.Content,
				},
			}
		default:
			return nil, errors.Newf("unsupported content part: %T", part)
		}

		convertedParts = append(convertedParts, out)
	}
	return convertedParts, nil
}

// convertContent converts between a llms.Message and genai content.
func convertContent(content llms.Message) (*genai.Content, error) {
	parts, err := convertParts(content.Parts)
	if err != nil {
		return nil, err
	}

	c := &genai.Content{
		Parts: parts,
	}

	switch content.Role {
	case llms.RoleSystem:
	case llms.RoleAI:
		c.Role = RoleModel
	case llms.RoleHuman, llms.RoleTool:
		// function responses are sent on behalf of the user
		c.Role = RoleUser
	default:
		return nil, errors.WithMessagef(llms.ErrUnexpectedRole, "%q", content.Role)
	}

	return c, nil
}
