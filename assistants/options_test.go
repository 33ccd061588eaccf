package assistants_test

import (
	"testing"

	"github.com/effective-security/finassist/assistants"
	"github.com/effective-security/finassist/pkg/llms"
	"github.com/effective-security/finassist/store"
	"github.com/stretchr/testify/assert"
)

func Test_CallOptions(t *testing.T) {
	t.Parallel()

	cfg := assistants.NewConfig()
	assert.Equal(t, "", cfg.Model)
	assert.Equal(t, assistants.DefaultMaxMessages, cfg.MaxMessages)
	assert.Equal(t, assistants.DefaultMaxToolCalls, cfg.MaxToolCalls)
	assert.Nil(t, cfg.CallbackHandler)
	assert.Nil(t, cfg.Store)
	assert.Empty(t, cfg.GetCallOptions())

	cfg = assistants.NewConfig(
		assistants.WithModel("gemini-2.5-flash"),
		assistants.WithMaxTokens(100),
		assistants.WithTemperature(0.7),
		assistants.WithStopWords([]string{"foo", "bar"}),
		assistants.WithTopK(10),
		assistants.WithTopP(0.9),
		assistants.WithSeed(42),
		assistants.WithToolChoice(llms.FunctionCallBehaviorAuto),
		assistants.WithMaxToolCalls(5),
		assistants.WithMaxMessages(20),
		assistants.WithMaxLength(2048),
		assistants.WithSkipMessageHistory(true),
		assistants.WithSkipToolHistory(true),
		assistants.WithPromptInput(map[string]any{"user_id": "u1"}),
		assistants.WithStore(store.NewMemoryStore()),
	)
	assert.Equal(t, 5, cfg.MaxToolCalls)
	assert.Equal(t, 20, cfg.MaxMessages)
	assert.Equal(t, 2048, cfg.MaxLength)
	assert.True(t, cfg.SkipMessageHistory)
	assert.True(t, cfg.SkipToolHistory)
	assert.Equal(t, "u1", cfg.PromptInput["user_id"])
	assert.NotNil(t, cfg.Store)

	tools := []llms.Tool{{Type: "function", Function: &llms.FunctionDefinition{Name: "create_expense"}}}
	callOpts := cfg.GetCallOptions(llms.WithTools(tools))
	assert.Len(t, callOpts, 9)

	var opts llms.CallOptions
	for _, o := range callOpts {
		o(&opts)
	}
	assert.Equal(t, llms.CallOptions{
		Model:       "gemini-2.5-flash",
		MaxTokens:   100,
		Temperature: 0.7,
		StopWords:   []string{"foo", "bar"},
		TopK:        10,
		TopP:        0.9,
		Seed:        42,
		ToolChoice:  llms.FunctionCallBehaviorAuto,
		Tools:       tools,
	}, opts)
}

func Test_Config_Apply(t *testing.T) {
	t.Parallel()

	cfg := assistants.NewConfig(assistants.WithModel("m1"))
	copied := cfg.Apply(assistants.WithModel("m2"), assistants.WithSkipMessageHistory(true))

	assert.Equal(t, "m1", cfg.Model)
	assert.False(t, cfg.SkipMessageHistory)
	assert.Equal(t, "m2", copied.Model)
	assert.True(t, copied.SkipMessageHistory)
}
