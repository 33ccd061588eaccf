package assistants_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/finassist/assistants"
	"github.com/effective-security/finassist/chatmodel"
	"github.com/effective-security/finassist/mocks/mockllms"
	"github.com/effective-security/finassist/mocks/mocktools"
	"github.com/effective-security/finassist/pkg/llms"
	"github.com/effective-security/finassist/pkg/prompts"
	"github.com/effective-security/finassist/pkg/schema"
	"github.com/effective-security/finassist/store"
	"github.com/effective-security/finassist/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newContext() context.Context {
	return chatmodel.WithChatContext(context.Background(), chatmodel.NewChatContext("u1", "", nil))
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{
				Content: text,
				GenerationInfo: map[string]any{
					"InputTokens":  10,
					"OutputTokens": 5,
					"TotalTokens":  15,
				},
			},
		},
	}
}

func toolCallResponse(calls ...llms.ToolCall) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{ToolCalls: calls},
		},
	}
}

func toolCall(id, name, args string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

func lastMessage(messages []llms.Message) llms.Message {
	return messages[len(messages)-1]
}

func newMockLLM(ctrl *gomock.Controller) *mockllms.MockModel {
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("gemini-2.5-flash").AnyTimes()
	m.EXPECT().GetProviderType().Return(llms.ProviderGoogleAI).AnyTimes()
	return m
}

func newMockTool(ctrl *gomock.Controller, name string, call func(ctx context.Context, input string) (string, error)) *mocktools.MockITool {
	m := mocktools.NewMockITool(ctrl)
	m.EXPECT().Name().Return(name).AnyTimes()
	m.EXPECT().Description().Return(name + " tool").AnyTimes()
	m.EXPECT().Parameters().Return(schema.MustFromAny(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user": map[string]any{"type": "string"},
		},
	})).AnyTimes()
	if call != nil {
		m.EXPECT().Call(gomock.Any(), gomock.Any()).DoAndReturn(call).AnyTimes()
	}
	return m
}

type event struct {
	name   string
	detail string
}

// recorder is a Callback that keeps the events
type recorder struct {
	lock   sync.Mutex
	events []event
}

func (r *recorder) add(name, detail string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, event{name: name, detail: detail})
}

func (r *recorder) names() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	var res []string
	for _, e := range r.events {
		res = append(res, e.name)
	}
	return res
}

func (r *recorder) OnAssistantStart(_ context.Context, a assistants.IAssistant, input string) {
	r.add("assistant_start", input)
}
func (r *recorder) OnAssistantEnd(_ context.Context, a assistants.IAssistant, input string, resp *llms.ContentResponse, messages []llms.Message) {
	r.add("assistant_end", assistants.Content(resp))
}
func (r *recorder) OnAssistantError(_ context.Context, a assistants.IAssistant, input string, err error, messages []llms.Message) {
	r.add("assistant_error", err.Error())
}
func (r *recorder) OnAssistantLLMCallStart(_ context.Context, a assistants.IAssistant, llm llms.Model, payload []llms.Message) {
	r.add("llm_start", llm.GetName())
}
func (r *recorder) OnAssistantLLMCallEnd(_ context.Context, a assistants.IAssistant, llm llms.Model, resp *llms.ContentResponse) {
	r.add("llm_end", llm.GetName())
}
func (r *recorder) OnToolNotFound(_ context.Context, a assistants.IAssistant, tool string) {
	r.add("tool_not_found", tool)
}
func (r *recorder) OnToolStart(_ context.Context, tool tools.ITool, assistantName, input string) {
	r.add("tool_start", tool.Name())
}
func (r *recorder) OnToolEnd(_ context.Context, tool tools.ITool, assistantName, input, output string) {
	r.add("tool_end", output)
}
func (r *recorder) OnToolError(_ context.Context, tool tools.ITool, assistantName, input string, err error) {
	r.add("tool_error", err.Error())
}

func Test_Assistant_ToolLoop(t *testing.T) {
	ctrl := gomock.NewController(t)

	listTool := newMockTool(ctrl, "list_expenses_by_user", func(_ context.Context, input string) (string, error) {
		assert.JSONEq(t, `{"user":"u1"}`, input)
		return `[{"descricao":"Conta de Luz","valor":150.5}]`, nil
	})

	mockLLM := newMockLLM(ctrl)
	var calls int
	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
			calls++
			var opts llms.CallOptions
			for _, o := range options {
				o(&opts)
			}
			require.Len(t, opts.Tools, 1)
			assert.Equal(t, "list_expenses_by_user", opts.Tools[0].Function.Name)

			assert.Equal(t, llms.RoleSystem, messages[0].Role)
			assert.Equal(t, "You are a finance assistant for u1.\n", messages[0].GetContent())

			last := lastMessage(messages)
			if last.Role == llms.RoleHuman {
				return toolCallResponse(toolCall("call1", "list_expenses_by_user", `{"user":"u1"}`)), nil
			}
			require.Equal(t, llms.RoleTool, last.Role)
			resp, ok := last.Parts[0].(llms.ToolCallResponse)
			require.True(t, ok)
			assert.Equal(t, "call1", resp.ToolCallID)
			assert.Contains(t, resp.Content, "Conta de Luz")
			return textResponse("Você gastou R$ 150,50."), nil
		}).Times(2)

	cb := &recorder{}
	st := store.NewMemoryStore()
	prompt := prompts.NewPromptTemplate("You are a finance assistant for {{.user_id}}.\n", []string{"user_id"})
	a := assistants.NewAssistant(mockLLM, prompt,
		assistants.WithStore(st),
		assistants.WithCallback(cb),
		assistants.WithPromptInput(map[string]any{"user_id": "u1"}),
	).WithName("finance").WithTools(listTool)

	assert.Equal(t, "finance", a.Name())
	require.Len(t, a.GetTools(), 1)

	ctx := newContext()
	resp, err := a.Call(ctx, &assistants.CallInput{Input: "quais são meus gastos?"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "Você gastou R$ 150,50.", assistants.Content(resp))

	assert.Equal(t, []string{
		"assistant_start",
		"llm_start", "llm_end",
		"tool_start", "tool_end",
		"llm_start", "llm_end",
		"assistant_end",
	}, cb.names())

	// human, tool call, tool response, answer
	history := st.Messages(ctx)
	require.Len(t, history, 4)
	assert.Equal(t, llms.RoleHuman, history[0].Role)
	assert.Equal(t, llms.RoleAI, history[1].Role)
	assert.Equal(t, llms.RoleTool, history[2].Role)
	assert.Equal(t, llms.RoleAI, history[3].Role)
	assert.Equal(t, history, a.LastRunMessages())
}

func Test_Assistant_History(t *testing.T) {
	ctrl := gomock.NewController(t)

	mockLLM := newMockLLM(ctrl)
	var sent [][]llms.Message
	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, messages []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
			sent = append(sent, messages)
			return textResponse("ok"), nil
		}).Times(3)

	st := store.NewMemoryStore()
	a := assistants.NewAssistant(mockLLM, prompts.NewPromptTemplate("system", nil),
		assistants.WithStore(st),
		assistants.WithTemperature(0.2),
	)

	ctx := newContext()
	_, err := a.Call(ctx, &assistants.CallInput{Input: "first"})
	require.NoError(t, err)
	_, err = a.Call(ctx, &assistants.CallInput{Input: "second"})
	require.NoError(t, err)
	// skip history for this call
	_, err = a.Call(ctx, &assistants.CallInput{
		Input:   "third",
		Options: []assistants.Option{assistants.WithSkipMessageHistory(true)},
	})
	require.NoError(t, err)

	require.Len(t, sent, 3)
	assert.Len(t, sent[0], 2)
	// system, first, ok, second
	require.Len(t, sent[1], 4)
	assert.Equal(t, "first\n", sent[1][1].GetContent())
	assert.Equal(t, "second\n", sent[1][3].GetContent())
	assert.Len(t, sent[2], 6)
	assert.Len(t, st.Messages(ctx), 4)

	// other chat of the same user has its own history
	other := chatmodel.WithChatContext(context.Background(), chatmodel.NewChatContext("u1", "chat2", nil))
	assert.Empty(t, st.Messages(other))
}

func Test_Assistant_Examples(t *testing.T) {
	ctrl := gomock.NewController(t)

	mockLLM := newMockLLM(ctrl)
	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, messages []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
			require.Len(t, messages, 4)
			assert.Equal(t, llms.RoleHuman, messages[1].Role)
			assert.Equal(t, llms.RoleAI, messages[2].Role)
			assert.Equal(t, "Gastei 30 no almoço\n", messages[1].GetContent())
			return textResponse("ok"), nil
		})

	a := assistants.NewAssistant(mockLLM, prompts.NewPromptTemplate("system", nil),
		assistants.WithMaxTokens(100),
		assistants.WithExamples(chatmodel.FewShotExamples{
			{Prompt: "Gastei 30 no almoço", Completion: "Registrado."},
		}),
	)
	_, err := a.Call(newContext(), &assistants.CallInput{Input: "oi"})
	require.NoError(t, err)
}

func Test_Assistant_NoChatContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockLLM := newMockLLM(ctrl)

	cb := &recorder{}
	a := assistants.NewAssistant(mockLLM, prompts.NewPromptTemplate("system", nil), assistants.WithCallback(cb))
	_, err := a.Call(context.Background(), &assistants.CallInput{Input: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, chatmodel.ErrInvalidChatContext)
	assert.Equal(t, []string{"assistant_start", "assistant_error"}, cb.names())
}

func Test_Assistant_SystemPromptError(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockLLM := newMockLLM(ctrl)

	a := assistants.NewAssistant(mockLLM, prompts.NewPromptTemplate("user {{.user_id}}", []string{"user_id"}))
	_, err := a.Call(newContext(), &assistants.CallInput{Input: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to format system prompt")

	p, err := a.GetSystemPrompt(newContext(), "hi", map[string]any{"user_id": "u2"})
	require.NoError(t, err)
	assert.Equal(t, "user u2", p)
}

func Test_Assistant_ToolNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)

	known := newMockTool(ctrl, "create_expense", nil)
	mockLLM := newMockLLM(ctrl)
	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, messages []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
			last := lastMessage(messages)
			if last.Role == llms.RoleHuman {
				return toolCallResponse(toolCall("", "delete_expense", `{}`)), nil
			}
			resp := last.Parts[0].(llms.ToolCallResponse)
			assert.Equal(t, "delete_expense_0", resp.ToolCallID)
			assert.Contains(t, resp.Content, "Tool `delete_expense` not found")
			assert.Contains(t, resp.Content, "create_expense")
			return textResponse("Não posso excluir despesas."), nil
		}).Times(2)

	cb := &recorder{}
	a := assistants.NewAssistant(mockLLM, prompts.NewPromptTemplate("system", nil), assistants.WithCallback(cb)).
		WithTools(known)

	resp, err := a.Call(newContext(), &assistants.CallInput{Input: "apague a despesa"})
	require.NoError(t, err)
	assert.Equal(t, "Não posso excluir despesas.", assistants.Content(resp))
	assert.Contains(t, cb.names(), "tool_not_found")
}

func Test_Assistant_ToolErrors(t *testing.T) {
	ctrl := gomock.NewController(t)

	failing := newMockTool(ctrl, "create_expense", func(_ context.Context, input string) (string, error) {
		if strings.Contains(input, "bad") {
			return "", errors.WithStack(chatmodel.ErrFailedUnmarshalInput)
		}
		return "", errors.New("finance API POST: 500")
	})

	mockLLM := newMockLLM(ctrl)
	var responses []string
	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, messages []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
			last := lastMessage(messages)
			switch last.Role {
			case llms.RoleHuman:
				return toolCallResponse(
					toolCall("c1", "create_expense", `bad`),
					toolCall("c2", "create_expense", `{"expense_data":{}}`),
				), nil
			default:
				for _, m := range messages[len(messages)-2:] {
					responses = append(responses, m.Parts[0].(llms.ToolCallResponse).Content)
				}
				return textResponse("Houve um erro."), nil
			}
		}).Times(2)

	cb := &recorder{}
	a := assistants.NewAssistant(mockLLM, prompts.NewPromptTemplate("system", nil), assistants.WithCallback(cb)).
		WithTools(failing)

	_, err := a.Call(newContext(), &assistants.CallInput{Input: "registre"})
	require.NoError(t, err)
	require.Len(t, responses, 2)
	assert.Equal(t, "Failed to unmarshal input, check the JSON schema and try again.", responses[0])
	assert.Equal(t, "Tool call failed: failed to call tool create_expense: finance API POST: 500", responses[1])
	assert.Contains(t, cb.names(), "tool_error")
}

func Test_Assistant_ParallelToolCalls(t *testing.T) {
	ctrl := gomock.NewController(t)

	slow := newMockTool(ctrl, "list_expenses_by_user", func(_ context.Context, input string) (string, error) {
		time.Sleep(100 * time.Millisecond)
		return "slow result", nil
	})
	fast := newMockTool(ctrl, "create_expense", func(_ context.Context, input string) (string, error) {
		return "fast result", nil
	})

	mockLLM := newMockLLM(ctrl)
	mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, messages []llms.Message, _ ...llms.CallOption) (*llms.ContentResponse, error) {
			if lastMessage(messages).Role == llms.RoleHuman {
				return toolCallResponse(
					toolCall("a", "list_expenses_by_user", `{"user":"u1"}`),
					toolCall("b", "create_expense", `{}`),
				), nil
			}
			// system, human, tool calls, 2 responses in the order of the calls
			require.Len(t, messages, 5)
			assert.Len(t, messages[2].Parts, 2)
			r1 := messages[3].Parts[0].(llms.ToolCallResponse)
			r2 := messages[4].Parts[0].(llms.ToolCallResponse)
			assert.Equal(t, "a", r1.ToolCallID)
			assert.Equal(t, "slow result", r1.Content)
			assert.Equal(t, "b", r2.ToolCallID)
			assert.Equal(t, "fast result", r2.Content)
			return textResponse("done"), nil
		}).Times(2)

	a := assistants.NewAssistant(mockLLM, prompts.NewPromptTemplate("system", nil)).WithTools(slow, fast)

	started := time.Now()
	_, err := a.Call(newContext(), &assistants.CallInput{Input: "go"})
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 190*time.Millisecond)
}

func Test_Assistant_Limits(t *testing.T) {
	ctrl := gomock.NewController(t)

	tool := newMockTool(ctrl, "list_expenses_by_user", func(_ context.Context, input string) (string, error) {
		return "[]", nil
	})

	t.Run("tool calls", func(t *testing.T) {
		mockLLM := newMockLLM(ctrl)
		mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(toolCallResponse(toolCall("x", "list_expenses_by_user", `{}`)), nil).
			Times(2)

		a := assistants.NewAssistant(mockLLM, prompts.NewPromptTemplate("system", nil),
			assistants.WithMaxToolCalls(2),
		).WithTools(tool)
		_, err := a.Call(newContext(), &assistants.CallInput{Input: "loop"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "the tool calls limit is exceeded")
	})

	t.Run("messages", func(t *testing.T) {
		mockLLM := newMockLLM(ctrl)
		a := assistants.NewAssistant(mockLLM, prompts.NewPromptTemplate("system", nil),
			assistants.WithMaxMessages(2),
		)
		_, err := a.Call(newContext(), &assistants.CallInput{Input: "hi"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "the messages count exceeded limit")
	})

	t.Run("size", func(t *testing.T) {
		mockLLM := newMockLLM(ctrl)
		a := assistants.NewAssistant(mockLLM, prompts.NewPromptTemplate("system", nil),
			assistants.WithMaxLength(10),
		)
		_, err := a.Call(newContext(), &assistants.CallInput{Input: "this input is too long"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "the content size exceeded limit")
	})

	t.Run("empty response", func(t *testing.T) {
		mockLLM := newMockLLM(ctrl)
		mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&llms.ContentResponse{}, nil).
			Times(assistants.DefaultMaxRetries)

		a := assistants.NewAssistant(mockLLM, prompts.NewPromptTemplate("system", nil))
		_, err := a.Call(newContext(), &assistants.CallInput{Input: "hi"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "LLM returned empty response after 3 retries")
	})

	t.Run("LLM error", func(t *testing.T) {
		mockLLM := newMockLLM(ctrl)
		mockLLM.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.New("quota exceeded"))

		a := assistants.NewAssistant(mockLLM, prompts.NewPromptTemplate("system", nil))
		_, err := a.Call(newContext(), &assistants.CallInput{Input: "hi"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "quota exceeded")
	})
}

func Test_Assistant_FunctionCallingNotSupported(t *testing.T) {
	ctrl := gomock.NewController(t)

	mockLLM := mockllms.NewMockModel(ctrl)
	mockLLM.EXPECT().GetName().Return("text-only").AnyTimes()
	mockLLM.EXPECT().GetProviderType().Return(llms.ProviderType("OTHER")).AnyTimes()

	a := assistants.NewAssistant(mockLLM, prompts.NewPromptTemplate("system", nil)).
		WithTools(newMockTool(ctrl, "create_expense", nil))
	_, err := a.Call(newContext(), &assistants.CallInput{Input: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not support function calling")
}

func Test_Assistant_WithTools(t *testing.T) {
	ctrl := gomock.NewController(t)

	t1 := newMockTool(ctrl, "create_expense", nil)
	dup := newMockTool(ctrl, "CREATE_EXPENSE", nil)

	noParams := mocktools.NewMockITool(ctrl)
	noParams.EXPECT().Name().Return("ping").AnyTimes()
	noParams.EXPECT().Description().Return("ping").AnyTimes()
	noParams.EXPECT().Parameters().Return(nil).AnyTimes()

	badParams := mocktools.NewMockITool(ctrl)
	badParams.EXPECT().Name().Return("bad").AnyTimes()
	badParams.EXPECT().Parameters().Return(func() {}).AnyTimes()

	a := assistants.NewAssistant(newMockLLM(ctrl), prompts.NewPromptTemplate("system", nil)).
		WithTools(t1, dup, noParams, badParams)
	require.Len(t, a.GetTools(), 2)
	assert.Equal(t, "create_expense", a.GetTools()[0].Name())
	assert.Equal(t, "ping", a.GetTools()[1].Name())
}

func Test_GetDescriptions(t *testing.T) {
	ctrl := gomock.NewController(t)
	a := assistants.NewAssistant(newMockLLM(ctrl), prompts.NewPromptTemplate("system", nil)).
		WithName("finance_assistant_agent").
		WithDescription("Registra e consulta despesas")
	assert.Equal(t, "- `finance_assistant_agent`: Registra e consulta despesas\n", assistants.GetDescriptions(a))
}

func Test_Content(t *testing.T) {
	assert.Empty(t, assistants.Content(nil))
	assert.Equal(t, "a\n\nb", assistants.Content(&llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "a"}, {Content: "b"}},
	}))
}
