package assistants

import (
	"github.com/effective-security/finassist/chatmodel"
	"github.com/effective-security/finassist/pkg/llms"
	"github.com/effective-security/finassist/store"
)

const (
	// DefaultMaxMessages is the limit of messages sent to the LLM in one call.
	DefaultMaxMessages = 100
	// DefaultMaxToolCalls is the limit of tool calls in one run.
	DefaultMaxToolCalls = 10
	// DefaultMaxContentSize is the limit of bytes sent to the LLM in one call.
	DefaultMaxContentSize = 1024 * 1024
	// DefaultMaxRetries is the number of retries on empty LLM responses.
	DefaultMaxRetries = 3
)

// Option is a function that can be used to modify the behavior of the Assistant Config.
type Option func(*Config)

type Config struct {
	// Model is the model to use in an LLM call.
	Model    string
	modelSet bool

	// MaxTokens is the maximum number of tokens to generate to use in an LLM call.
	MaxTokens    int
	maxTokensSet bool

	// Temperature is the temperature for sampling to use in an LLM call, between 0 and 1.
	Temperature    float64
	temperatureSet bool

	// StopWords is a list of words to stop on to use in an LLM call.
	StopWords    []string
	stopWordsSet bool

	// TopK is the number of tokens to consider for top-k sampling in an LLM call.
	TopK    int
	topkSet bool

	// TopP is the cumulative probability for top-p sampling in an LLM call.
	TopP    float64
	toppSet bool

	// Seed is a seed for deterministic sampling in an LLM call.
	Seed    int
	seedSet bool

	// ToolChoice is the choice of tool to use.
	ToolChoice    llms.FunctionCallBehavior
	toolChoiceSet bool

	// CallbackHandler is notified on assistant, LLM and tool events.
	CallbackHandler Callback

	//
	// Below are the options for the Assistant, not related to LLM call
	//

	// Store keeps the chat history, nil disables the history.
	Store              store.MessageStore
	PromptInput        map[string]any
	Examples           chatmodel.FewShotExamples
	SkipMessageHistory bool
	SkipToolHistory    bool
	MaxMessages        int
	MaxToolCalls       int
	// MaxLength is the limit of bytes sent to the LLM in one call.
	MaxLength int
}

func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		MaxMessages:  DefaultMaxMessages,
		MaxToolCalls: DefaultMaxToolCalls,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Apply returns a copy of the config with opts applied.
func (c *Config) Apply(opts ...Option) *Config {
	cfg := *c
	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithStore sets the chat history store.
func WithStore(s store.MessageStore) Option {
	return func(o *Config) {
		o.Store = s
	}
}

// WithExamples is an option that allows to specify the few-shot examples for the system prompt.
func WithExamples(examples chatmodel.FewShotExamples) Option {
	return func(o *Config) {
		o.Examples = examples
	}
}

// WithSkipMessageHistory is an option that allows to skip adding Assistant messages to History.
func WithSkipMessageHistory(skip bool) Option {
	return func(o *Config) {
		o.SkipMessageHistory = skip
	}
}

// WithSkipToolHistory keeps tool calls and responses out of the History.
func WithSkipToolHistory(skip bool) Option {
	return func(o *Config) {
		o.SkipToolHistory = skip
	}
}

// WithPromptInput is an option that allows the user to specify the system prompt input.
func WithPromptInput(input map[string]any) Option {
	return func(o *Config) {
		o.PromptInput = input
	}
}

// WithMaxMessages sets the limit of messages sent to the LLM.
func WithMaxMessages(n int) Option {
	return func(o *Config) {
		o.MaxMessages = n
	}
}

// WithMaxToolCalls sets the limit of tool calls in one run.
func WithMaxToolCalls(n int) Option {
	return func(o *Config) {
		o.MaxToolCalls = n
	}
}

// WithMaxLength sets the limit of bytes sent to the LLM.
func WithMaxLength(n int) Option {
	return func(o *Config) {
		o.MaxLength = n
	}
}

// WithModel is an option for LLM.Call.
func WithModel(model string) Option {
	return func(o *Config) {
		o.Model = model
		o.modelSet = true
	}
}

// WithMaxTokens is an option for LLM.Call.
func WithMaxTokens(maxTokens int) Option {
	return func(o *Config) {
		o.MaxTokens = maxTokens
		o.maxTokensSet = true
	}
}

// WithTemperature is an option for LLM.Call.
func WithTemperature(temperature float64) Option {
	return func(o *Config) {
		o.Temperature = temperature
		o.temperatureSet = true
	}
}

// WithTopK will add an option to use top-k sampling for LLM.Call.
func WithTopK(topK int) Option {
	return func(o *Config) {
		o.TopK = topK
		o.topkSet = true
	}
}

// WithTopP	will add an option to use top-p sampling for LLM.Call.
func WithTopP(topP float64) Option {
	return func(o *Config) {
		o.TopP = topP
		o.toppSet = true
	}
}

// WithSeed will add an option to use deterministic sampling for LLM.Call.
func WithSeed(seed int) Option {
	return func(o *Config) {
		o.Seed = seed
		o.seedSet = true
	}
}

// WithStopWords is an option for setting the stop words for LLM.Call.
func WithStopWords(stopWords []string) Option {
	return func(o *Config) {
		o.StopWords = stopWords
		o.stopWordsSet = true
	}
}

// WithCallback allows setting a custom Callback Handler.
func WithCallback(callbackHandler Callback) Option {
	return func(o *Config) {
		o.CallbackHandler = callbackHandler
	}
}

// WithToolChoice is an option for LLM.Call.
func WithToolChoice(choice llms.FunctionCallBehavior) Option {
	return func(o *Config) {
		o.ToolChoice = choice
		o.toolChoiceSet = true
	}
}

// GetCallOptions returns the LLM call options that were set,
// followed by extra.
func (c *Config) GetCallOptions(extra ...llms.CallOption) []llms.CallOption {
	var callOptions []llms.CallOption
	if c.modelSet {
		callOptions = append(callOptions, llms.WithModel(c.Model))
	}
	if c.maxTokensSet {
		callOptions = append(callOptions, llms.WithMaxTokens(c.MaxTokens))
	}
	if c.temperatureSet {
		callOptions = append(callOptions, llms.WithTemperature(c.Temperature))
	}
	if c.stopWordsSet {
		callOptions = append(callOptions, llms.WithStopWords(c.StopWords))
	}
	if c.topkSet {
		callOptions = append(callOptions, llms.WithTopK(c.TopK))
	}
	if c.toppSet {
		callOptions = append(callOptions, llms.WithTopP(c.TopP))
	}
	if c.seedSet {
		callOptions = append(callOptions, llms.WithSeed(c.Seed))
	}
	if c.toolChoiceSet {
		callOptions = append(callOptions, llms.WithToolChoice(c.ToolChoice))
	}
	return append(callOptions, extra...)
}
