package assistants

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/finassist/chatmodel"
	"github.com/effective-security/finassist/pkg/llms"
	"github.com/effective-security/finassist/pkg/llmutils"
	"github.com/effective-security/finassist/pkg/metricskey"
	"github.com/effective-security/finassist/pkg/schema"
	"github.com/effective-security/finassist/tools"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/invopop/jsonschema"
)

// maxNotFoundTools is the number of unknown tool calls tolerated in one response.
const maxNotFoundTools = 3

// Assistant is a chat assistant: it renders the system prompt, loads the chat history,
// calls the LLM and executes the tool calls it asks for until the LLM answers with text.
type Assistant struct {
	LLM llms.Model

	toolsByName map[string]tools.ITool
	toolsNames  []string
	tools       []tools.ITool
	llmToolDefs []llms.Tool

	cfg         *Config
	name        string
	description string
	sysprompt   SystemPrompter

	lock        sync.Mutex
	runMessages []llms.Message
}

var _ IAssistant = (*Assistant)(nil)

// NewAssistant returns an Assistant with the system prompt.
func NewAssistant(llmModel llms.Model, sysprompt SystemPrompter, options ...Option) *Assistant {
	return &Assistant{
		cfg:         NewConfig(options...),
		LLM:         llmModel,
		sysprompt:   sysprompt,
		name:        "Generic Assistant",
		description: "An AI assistant that can perform various tasks.",
	}
}

// WithName sets the name of the Assistant.
func (a *Assistant) WithName(name string) *Assistant {
	a.name = name
	return a
}

// WithDescription sets the description of the Assistant, to be used in the prompt of other Assistants or LLMs.
func (a *Assistant) WithDescription(description string) *Assistant {
	a.description = description
	return a
}

// Name returns the name of the Assistant.
func (a *Assistant) Name() string {
	return a.name
}

// Description returns the description of the Assistant.
func (a *Assistant) Description() string {
	return a.description
}

// Config returns the Assistant config.
func (a *Assistant) Config() *Config {
	return a.cfg
}

func (a *Assistant) GetTools() []tools.ITool {
	return a.tools
}

// WithTools adds new tools to the Assistant,
// existing tools are not replaced.
func (a *Assistant) WithTools(list ...tools.ITool) *Assistant {
	if a.toolsByName == nil {
		a.toolsByName = make(map[string]tools.ITool)
	}
	for _, tool := range list {
		name := tool.Name()
		// use lowercase for the key
		nameLowerCase := strings.ToLower(name)
		if a.toolsByName[nameLowerCase] != nil {
			continue
		}

		params, err := toolParameters(tool)
		if err != nil {
			logger.KV(xlog.ERROR,
				"assistant", a.name,
				"status", "invalid_tool_parameters",
				"tool", name,
				"err", err.Error())
			continue
		}

		a.toolsByName[nameLowerCase] = tool
		a.toolsNames = append(a.toolsNames, name)
		a.tools = append(a.tools, tool)
		a.llmToolDefs = append(a.llmToolDefs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        name,
				Description: tool.Description(),
				Parameters:  params,
			},
		})
	}
	return a
}

func toolParameters(tool tools.ITool) (*jsonschema.Schema, error) {
	switch p := tool.Parameters().(type) {
	case *jsonschema.Schema:
		return p, nil
	case nil:
		return &jsonschema.Schema{Type: "object"}, nil
	default:
		return schema.FromAny(p)
	}
}

// LastRunMessages returns the messages added to the history by the last run.
func (a *Assistant) LastRunMessages() []llms.Message {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.runMessages
}

// GetSystemPrompt renders the system prompt for the call.
func (a *Assistant) GetSystemPrompt(_ context.Context, _ string, promptInputs map[string]any) (string, error) {
	prompt, err := a.sysprompt.Format(llmutils.MergeInputs(a.cfg.PromptInput, promptInputs))
	if err != nil {
		return "", err
	}
	return strings.TrimRight(prompt, "\n"), nil
}

// Call runs the Assistant and notifies the callback.
func (a *Assistant) Call(ctx context.Context, input *CallInput) (*llms.ContentResponse, error) {
	started := time.Now()
	defer metricskey.PerfAssistantCall.MeasureSince(started, a.Name())

	// create a per call config
	cfg := a.cfg.Apply(input.Options...)

	callback := cfg.CallbackHandler
	if callback != nil {
		callback.OnAssistantStart(ctx, a, input.Input)
	}

	resp, messages, err := a.run(ctx, cfg, input)
	if err != nil {
		metricskey.StatsAssistantCallsFailed.IncrCounter(1, a.Name())
		if callback != nil {
			callback.OnAssistantError(ctx, a, input.Input, err, messages)
		}
		return nil, err
	}
	metricskey.StatsAssistantCallsSucceeded.IncrCounter(1, a.Name())
	if callback != nil {
		callback.OnAssistantEnd(ctx, a, input.Input, resp, messages)
	}
	return resp, nil
}

func (a *Assistant) addRunMessages(msgs ...llms.Message) {
	a.lock.Lock()
	a.runMessages = append(a.runMessages, msgs...)
	a.lock.Unlock()
}

// run executes the main logic of the Assistant, generating a response based on the input and prompt inputs.
func (a *Assistant) run(ctx context.Context, cfg *Config, input *CallInput) (*llms.ContentResponse, []llms.Message, error) {
	_, chatID, err := chatmodel.GetUserAndChatID(ctx)
	if err != nil {
		return nil, nil, err
	}

	a.lock.Lock()
	a.runMessages = nil
	a.lock.Unlock()

	systemPrompt, err := a.GetSystemPrompt(ctx, input.Input, input.PromptInputs)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "failed to format system prompt")
	}

	messageHistory := []llms.Message{
		llms.MessageFromTextParts(llms.RoleSystem, systemPrompt),
	}
	for _, example := range cfg.Examples {
		messageHistory = append(messageHistory, llms.MessageFromTextParts(llms.RoleHuman, example.Prompt))
		messageHistory = append(messageHistory, llms.MessageFromTextParts(llms.RoleAI, example.Completion))
	}
	if cfg.Store != nil {
		prevMessages := cfg.Store.Messages(ctx)
		logger.ContextKV(ctx, xlog.DEBUG,
			"assistant", a.name,
			"chat_id", chatID,
			"message_history", len(prevMessages))
		messageHistory = append(messageHistory, prevMessages...)
	}

	if input.Input != "" {
		userMessage := llms.MessageFromTextParts(llms.RoleHuman, input.Input)
		a.addRunMessages(userMessage)
		messageHistory = append(messageHistory, userMessage)
	}
	if len(input.Messages) > 0 {
		messageHistory = append(messageHistory, input.Messages...)
	}

	var extra []llms.CallOption
	if len(a.llmToolDefs) > 0 {
		if !a.LLM.GetProviderType().Supports(llms.CapabilityFunctionCalling) {
			return nil, messageHistory, errors.Newf("assistant %s: the LLM does not support function calling", a.name)
		}
		extra = append(extra, llms.WithTools(a.llmToolDefs))
	}
	callOpts := cfg.GetCallOptions(extra...)

	assistantName := a.Name()
	modelName := a.LLM.GetName()

	var totalToolExecuted int
	var resp *llms.ContentResponse
	retryCount := 0

	bytesLimit := uint64(values.NumbersCoalesce(cfg.MaxLength, DefaultMaxContentSize))
	toolsLimit := values.NumbersCoalesce(cfg.MaxToolCalls, DefaultMaxToolCalls)
	messagesLimit := values.NumbersCoalesce(cfg.MaxMessages, DefaultMaxMessages)
	for {
		if len(messageHistory) >= messagesLimit {
			return nil, messageHistory, errors.Newf("assistant %s: the messages count exceeded limit", assistantName)
		}
		bytesSent := llmutils.CountMessagesContentSize(messageHistory)
		if bytesSent > bytesLimit {
			return nil, messageHistory, errors.Newf("assistant %s: the content size exceeded limit", assistantName)
		}

		if cfg.CallbackHandler != nil {
			cfg.CallbackHandler.OnAssistantLLMCallStart(ctx, a, a.LLM, messageHistory)
		}

		metricskey.StatsLLMMessagesSent.IncrCounter(float64(len(messageHistory)), assistantName, modelName)
		metricskey.StatsLLMBytesSent.IncrCounter(float64(bytesSent), assistantName, modelName)

		resp, err = a.LLM.GenerateContent(ctx, messageHistory, callOpts...)
		if err != nil {
			return nil, messageHistory, errors.Wrapf(err, "failed to generate content from LLM")
		}

		if cfg.CallbackHandler != nil {
			cfg.CallbackHandler.OnAssistantLLMCallEnd(ctx, a, a.LLM, resp)
		}

		metricskey.StatsLLMBytesReceived.IncrCounter(float64(llmutils.CountResponseContentSize(resp)), assistantName, modelName)
		tokensIn, tokensOut, _ := llmutils.CountTokens(resp)
		metricskey.StatsLLMInputTokens.IncrCounter(float64(tokensIn), assistantName, modelName)
		metricskey.StatsLLMOutputTokens.IncrCounter(float64(tokensOut), assistantName, modelName)

		if len(resp.Choices) == 0 {
			retryCount++
			if retryCount >= DefaultMaxRetries {
				logger.ContextKV(ctx, xlog.ERROR,
					"assistant", assistantName,
					"status", "max_retries_exceeded",
					"retry_count", retryCount,
				)
				return nil, messageHistory, errors.Newf("assistant %s: LLM returned empty response after %d retries", assistantName, retryCount)
			}
			logger.ContextKV(ctx, xlog.WARNING,
				"assistant", assistantName,
				"status", "retrying_empty_response",
				"retry_count", retryCount,
			)
			continue
		}

		var toolExecuted, notFoundCount int
		toolExecuted, notFoundCount, messageHistory, err = a.executeToolCalls(ctx, cfg, messageHistory, resp)
		if err != nil {
			return nil, messageHistory, err
		}
		if toolExecuted == 0 {
			break
		}
		if notFoundCount > maxNotFoundTools {
			return nil, messageHistory, errors.Newf("assistant %s: the number of not found tools is exceeded", assistantName)
		}
		totalToolExecuted += toolExecuted
		if totalToolExecuted >= toolsLimit {
			return nil, messageHistory, errors.Newf("assistant %s: the tool calls limit is exceeded", assistantName)
		}
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"assistant", assistantName,
		"status", "response",
		"choices_count", len(resp.Choices),
		"tool_calls", totalToolExecuted,
	)

	result := Content(resp)
	aiMessage := llms.MessageFromTextParts(llms.RoleAI, result)
	messageHistory = append(messageHistory, aiMessage)
	a.addRunMessages(aiMessage)

	if cfg.Store != nil && !cfg.SkipMessageHistory {
		runMessages := a.LastRunMessages()
		if err = cfg.Store.Add(ctx, runMessages...); err != nil {
			logger.ContextKV(ctx, xlog.ERROR,
				"assistant", assistantName,
				"chat_id", chatID,
				"status", "failed_to_add_message_history",
				"err", err.Error())
		} else {
			logger.ContextKV(ctx, xlog.DEBUG,
				"assistant", assistantName,
				"chat_id", chatID,
				"status", "added_message_history",
				"message_history", len(runMessages),
			)
		}
	}

	return resp, messageHistory, nil
}

type toolCallResult struct {
	toolCall llms.ToolCall
	response string
	err      error
}

// executeToolCalls executes the tool calls in the response concurrently and returns the
// updated message history, the responses keep the order of the calls.
func (a *Assistant) executeToolCalls(ctx context.Context, cfg *Config, messageHistory []llms.Message, resp *llms.ContentResponse) (int, int, []llms.Message, error) {
	var toolCalls []llms.ToolCall

	for _, choice := range resp.Choices {
		var choiceToolCalls []llms.ToolCall
		for i, toolCall := range choice.ToolCalls {
			if toolCall.FunctionCall == nil {
				continue
			}
			if toolCall.ID == "" {
				toolCall.ID = fmt.Sprintf("%s_%d", toolCall.FunctionCall.Name, i)
			}
			toolCall.Type = values.StringsCoalesce(toolCall.Type, "function")
			choiceToolCalls = append(choiceToolCalls, toolCall)

			logger.ContextKV(ctx, xlog.DEBUG,
				"assistant", a.name,
				"status", "tool_call_found",
				"tool_call_id", toolCall.ID,
				"tool_call_name", toolCall.FunctionCall.Name,
			)
		}
		if len(choiceToolCalls) == 0 {
			continue
		}

		toolCalls = append(toolCalls, choiceToolCalls...)
		assistantResponse := llms.MessageFromToolCalls(llms.RoleAI, choiceToolCalls...)
		messageHistory = append(messageHistory, assistantResponse)
		if !cfg.SkipToolHistory {
			a.addRunMessages(assistantResponse)
		}
	}

	if len(toolCalls) == 0 {
		return 0, 0, messageHistory, nil
	}

	var notFoundCount atomic.Int32
	results := make([]toolCallResult, len(toolCalls))

	var wg sync.WaitGroup
	for i, toolCall := range toolCalls {
		wg.Add(1)
		go func(index int, tc llms.ToolCall) {
			defer wg.Done()
			res, found, err := a.callTool(ctx, cfg, tc)
			if !found {
				notFoundCount.Add(1)
			}
			results[index] = toolCallResult{toolCall: tc, response: res, err: err}
		}(i, toolCall)
	}
	wg.Wait()

	for _, result := range results {
		content := result.response
		if result.err != nil {
			content = fmt.Sprintf("Tool call failed: %s", result.err.Error())
			logger.ContextKV(ctx, xlog.WARNING,
				"assistant", a.name,
				"status", "tool_call_failed",
				"tool", result.toolCall.FunctionCall.Name,
				"err", result.err.Error(),
			)
		}

		toolCallResponse := llms.MessageFromToolResponse(llms.RoleTool, llms.ToolCallResponse{
			ToolCallID: result.toolCall.ID,
			Name:       result.toolCall.FunctionCall.Name,
			Content:    content,
		})
		messageHistory = append(messageHistory, toolCallResponse)
		if !cfg.SkipToolHistory {
			a.addRunMessages(toolCallResponse)
		}
	}

	return len(toolCalls), int(notFoundCount.Load()), messageHistory, nil
}

// callTool executes one tool call, found is false when the tool is not registered.
func (a *Assistant) callTool(ctx context.Context, cfg *Config, tc llms.ToolCall) (res string, found bool, err error) {
	toolName := tc.FunctionCall.Name
	toolArgs := tc.FunctionCall.Arguments

	// use lowercase for the key
	tool := a.toolsByName[strings.ToLower(toolName)]
	if tool == nil {
		metricskey.StatsToolCallsNotFound.IncrCounter(1, toolName)
		if cfg.CallbackHandler != nil {
			cfg.CallbackHandler.OnToolNotFound(ctx, a, toolName)
		}

		availableTools := strings.Join(a.toolsNames, ", ")
		logger.ContextKV(ctx, xlog.WARNING,
			"assistant", a.name,
			"status", "tool_not_found",
			"tool_name", toolName,
			"available_tools", availableTools,
		)
		return fmt.Sprintf("Tool `%s` not found. Please check the tool name and try again with exact match. Available tools: %s", toolName, availableTools), false, nil
	}

	if cfg.CallbackHandler != nil {
		cfg.CallbackHandler.OnToolStart(ctx, tool, a.name, toolArgs)
	}

	started := time.Now()
	res, err = tool.Call(ctx, toolArgs)
	metricskey.PerfToolCall.MeasureSince(started, toolName)

	if err != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, toolName)
		if cfg.CallbackHandler != nil {
			cfg.CallbackHandler.OnToolError(ctx, tool, a.name, toolArgs, err)
		}
		if errors.Is(err, chatmodel.ErrFailedUnmarshalInput) {
			return "Failed to unmarshal input, check the JSON schema and try again.", true, nil
		}
		return "", true, errors.WithMessagef(err, "failed to call tool %s", toolName)
	}
	metricskey.StatsToolCallsSucceeded.IncrCounter(1, toolName)

	if cfg.CallbackHandler != nil {
		cfg.CallbackHandler.OnToolEnd(ctx, tool, a.name, toolArgs, res)
	}
	return res, true, nil
}
