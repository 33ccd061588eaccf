package agent_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/effective-security/finassist/agent"
	"github.com/effective-security/finassist/assistants"
	"github.com/effective-security/finassist/callbacks"
	"github.com/effective-security/finassist/financeapi"
	"github.com/effective-security/finassist/mcpserver"
	"github.com/effective-security/finassist/mocks/mockllms"
	"github.com/effective-security/finassist/mocks/mocktools"
	"github.com/effective-security/finassist/pkg/llms"
	"github.com/effective-security/finassist/pkg/prompts"
	"github.com/effective-security/finassist/store"
	"github.com/effective-security/finassist/tools"
	"github.com/effective-security/finassist/tools/expenses"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func fixedToday(t *testing.T) {
	agent.TimeNowFn = func() time.Time {
		return time.Date(2025, 7, 10, 9, 30, 0, 0, time.UTC)
	}
	t.Cleanup(func() { agent.TimeNowFn = time.Now })
}

func newMockLLM(ctrl *gomock.Controller) *mockllms.MockModel {
	m := mockllms.NewMockModel(ctrl)
	m.EXPECT().GetName().Return("gemini-2.0-flash").AnyTimes()
	m.EXPECT().GetProviderType().Return(llms.ProviderGoogleAI).AnyTimes()
	return m
}

func newMockTool(ctrl *gomock.Controller, name string) *mocktools.MockITool {
	m := mocktools.NewMockITool(ctrl)
	m.EXPECT().Name().Return(name).AnyTimes()
	m.EXPECT().Description().Return(name).AnyTimes()
	m.EXPECT().Parameters().Return(nil).AnyTimes()
	return m
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: text}},
	}
}

func TestLoadExamples(t *testing.T) {
	ex, err := agent.LoadExamples("u1")
	require.NoError(t, err)
	require.Len(t, ex.Records, 3)
	assert.Len(t, ex.Tips, 5)

	for _, r := range ex.Records {
		assert.NotEmpty(t, r.Prompt)
		assert.Equal(t, "u1", r.Record.UserID)
		assert.True(t, r.Record.Tipo.IsValid(), r.Record.Tipo)
		assert.Greater(t, r.Record.Valor, 0.0)
	}
	assert.Equal(t, "Recebi hoje um extra de 1000", ex.Records[0].Prompt)
	assert.Equal(t, 30.0, ex.Records[1].Record.Valor)
	assert.Empty(t, ex.Records[2].Note)
}

func TestInstruction(t *testing.T) {
	fixedToday(t)

	ex, err := agent.LoadExamples("u1")
	require.NoError(t, err)
	p := agent.Instruction(ex)
	assert.Equal(t, []string{agent.InputUserID}, p.GetInputVariables())

	res, err := p.Format(map[string]any{agent.InputUserID: "u1"})
	require.NoError(t, err)

	assert.Contains(t, res, "A data de hoje é 2025-07-10.")
	assert.Contains(t, res, "**Sempre use o ID do usuário 'u1' como argumento `user`** para a ferramenta `list_expenses_by_user`.")
	assert.Contains(t, res, "**O `userId` dentro de `expense_data` deve ser sempre 'u1'**.")
	assert.Contains(t, res, "        * **Usuário diz:** \"Recebi hoje um extra de 1000\"\n"+
		"            * **Objeto esperado:** `{\"descricao\":\"Extra\",\"categoria\":\"Renda Extra\",\"valor\":1000,\"tipo\":\"entrada\",\"data\":\"YYYY-MM-DD\",\"userId\":\"u1\"}`"+
		" (ajuste `YYYY-MM-DD` para a data atual ou a data mencionada)\n")
	assert.Contains(t, res, "`{\"descricao\":\"Conta de Luz\",\"categoria\":\"Contas Fixas\",\"valor\":150,\"tipo\":\"saida\",\"data\":\"YYYY-MM-DD\",\"userId\":\"u1\"}`\n")
	assert.Contains(t, res, "        * \"Uma boa regra é investir pelo menos 20% da sua renda mensal. Você está próximo dessa meta?\"\n")
	assert.Contains(t, res, "**Sempre seja prestativo, claro e objetivo.**")
	assert.NotContains(t, res, "{{")

	_, err = p.Format(map[string]any{})
	assert.ErrorIs(t, err, prompts.ErrInputVariablesMissing)
}

func TestLoadInstruction(t *testing.T) {
	fixedToday(t)
	ex, err := agent.LoadExamples("u1")
	require.NoError(t, err)

	it, err := agent.LoadInstruction("testdata/instruction.j2")
	require.NoError(t, err)
	assert.Equal(t, prompts.TemplateFormatJinja2, it.Format)
	res, err := it.Prompt(ex).Format(map[string]any{agent.InputUserID: "u1"})
	require.NoError(t, err)
	assert.Contains(t, res, "Você é um assistente financeiro do usuário 'u1'. A data de hoje é 2025-07-10.")
	assert.Contains(t, res, "Use `list_expenses_by_user` para listar e `create_expense` para registrar.")
	assert.Contains(t, res, "- Recebi hoje um extra de 1000\n")

	it, err = agent.LoadInstruction("testdata/instruction.tmpl")
	require.NoError(t, err)
	assert.Equal(t, prompts.TemplateFormatGoTemplate, it.Format)
	res, err = it.Prompt(ex).Format(map[string]any{agent.InputUserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "Usuário u1, hoje é 2025-07-10. Dicas: 5.\n", res)

	_, err = agent.LoadInstruction("testdata/invalid.tmpl")
	assert.ErrorContains(t, err, "invalid instruction testdata/invalid.tmpl")
	_, err = agent.LoadInstruction("testdata/missing.j2")
	assert.ErrorContains(t, err, "failed to read instruction")

	assert.Equal(t, prompts.TemplateFormatGoTemplate, agent.DefaultInstruction().Format)
}

func TestNewWithInstruction(t *testing.T) {
	fixedToday(t)
	ctrl := gomock.NewController(t)
	toolset := []tools.ITool{
		newMockTool(ctrl, expenses.ListToolName),
		newMockTool(ctrl, expenses.CreateToolName),
	}
	it, err := agent.LoadInstruction("testdata/instruction.j2")
	require.NoError(t, err)

	a, err := agent.NewWithInstruction(newMockLLM(ctrl), "u2", toolset, it)
	require.NoError(t, err)
	prompt, err := a.GetSystemPrompt(context.Background(), "oi", nil)
	require.NoError(t, err)
	assert.Contains(t, prompt, "do usuário 'u2'")
}

func TestNew(t *testing.T) {
	fixedToday(t)
	ctrl := gomock.NewController(t)
	llm := newMockLLM(ctrl)
	toolset := []tools.ITool{
		newMockTool(ctrl, expenses.ListToolName),
		newMockTool(ctrl, expenses.CreateToolName),
	}

	_, err := agent.New(llm, " ", toolset)
	assert.ErrorIs(t, err, agent.ErrUserIDRequired)

	_, err = agent.New(llm, "u1", toolset[:1])
	assert.EqualError(t, err, `tool "create_expense" is not available`)

	a, err := agent.New(llm, "u1", toolset)
	require.NoError(t, err)
	assert.Equal(t, agent.Name, a.Name())
	assert.Equal(t, agent.Description, a.Description())
	assert.Len(t, a.GetTools(), 2)

	prompt, err := a.GetSystemPrompt(context.Background(), "oi", nil)
	require.NoError(t, err)
	assert.Contains(t, prompt, "deve ser sempre 'u1'")
	assert.Contains(t, prompt, "A data de hoje é 2025-07-10.")
}

func TestConnect_UserRequired(t *testing.T) {
	_, err := agent.Connect(context.Background(), "http://localhost:8080/mcp", "")
	assert.ErrorIs(t, err, agent.ErrUserIDRequired)
}

type backend struct {
	lock   sync.Mutex
	posted []map[string]any
	gets   []string
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.lock.Lock()
	defer b.lock.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodPost {
		var rec map[string]any
		_ = json.NewDecoder(r.Body).Decode(&rec)
		b.posted = append(b.posted, rec)
		rec["_id"] = "e1"
		_ = json.NewEncoder(w).Encode(rec)
		return
	}
	b.gets = append(b.gets, r.URL.Path)
	_, _ = io.WriteString(w, `[{"_id":"e0","descricao":"Salário","categoria":"Renda","valor":5000,"tipo":"entrada","data":"2025-07-01","userId":"u1"}]`)
}

func startServer(t *testing.T, b *backend) string {
	gin.SetMode(gin.TestMode)

	api := httptest.NewServer(b)
	t.Cleanup(api.Close)

	client, err := financeapi.New(api.URL)
	require.NoError(t, err)
	srv, err := mcpserver.New(&mcpserver.Config{
		Name:          "finance-mcp",
		Port:          8080,
		Endpoint:      "/mcp",
		FinanceAPIURL: api.URL,
	}, expenses.Tools(client)...)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL + "/mcp"
}

func TestAgent_Session(t *testing.T) {
	fixedToday(t)
	b := &backend{}
	serverURL := startServer(t, b)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	toolset, err := agent.Connect(ctx, serverURL, "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{expenses.ListToolName, expenses.CreateToolName}, toolset.Names())

	ctrl := gomock.NewController(t)
	llm := newMockLLM(ctrl)

	var turn int
	llm.EXPECT().GenerateContent(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, messages []llms.Message, options ...llms.CallOption) (*llms.ContentResponse, error) {
			turn++
			last := messages[len(messages)-1]
			switch turn {
			case 1:
				var opts llms.CallOptions
				for _, o := range options {
					o(&opts)
				}
				require.Len(t, opts.Tools, 2)
				assert.Equal(t, llms.RoleSystem, messages[0].Role)
				assert.Contains(t, messages[0].GetContent(), "'u1'")
				assert.Equal(t, "Gastei 30 reais no almoço hoje\n", last.GetContent())

				// the model tries another user, the pinned argument wins
				return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
					ToolCalls: []llms.ToolCall{{
						ID:   "c1",
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      expenses.CreateToolName,
							Arguments: `{"expense_data":{"descricao":"Almoço","categoria":"Alimentação","valor":"30.0","tipo":"saida","data":"2025-07-10","userId":"u2"}}`,
						},
					}},
				}}}, nil
			case 2:
				require.Equal(t, llms.RoleTool, last.Role)
				resp := last.Parts[0].(llms.ToolCallResponse)
				assert.Equal(t, "c1", resp.ToolCallID)
				assert.Contains(t, resp.Content, `"userId":"u1"`)
				return textResponse("Despesa registrada: Almoço, R$ 30,00."), nil
			case 3:
				// history of the first question is sent back
				assert.Len(t, messages, 6)
				return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
					ToolCalls: []llms.ToolCall{{
						ID:           "c2",
						Type:         "function",
						FunctionCall: &llms.FunctionCall{Name: expenses.ListToolName, Arguments: `{}`},
					}},
				}}}, nil
			default:
				resp := last.Parts[0].(llms.ToolCallResponse)
				assert.Contains(t, resp.Content, "Salário")
				return textResponse("Você recebeu R$ 5.000,00 este mês."), nil
			}
		}).Times(4)

	sp := callbacks.NewScratchpad(callbacks.ModeDefault)
	a, err := agent.New(llm, "u1", toolset.Tools(),
		assistants.WithStore(store.NewMemoryStore()),
		assistants.WithCallback(callbacks.NewFanout(sp, callbacks.NewNoop())),
	)
	require.NoError(t, err)

	session := agent.NewSession(a, "u1", sp)
	assert.NotEmpty(t, session.ChatID())

	answer, err := session.Ask(ctx, " Gastei 30 reais no almoço hoje ")
	require.NoError(t, err)
	assert.Equal(t, "Despesa registrada: Almoço, R$ 30,00.", answer.Text)
	require.NotNil(t, answer.Stats)
	assert.Equal(t, map[string]uint32{expenses.CreateToolName: 1}, answer.Stats.ToolCalls)
	assert.Equal(t, uint32(2), answer.Stats.LLMCalls)
	assert.Equal(t, session.ChatID(), answer.Stats.ChatID)
	assert.NotEmpty(t, answer.Transcript)

	require.Len(t, b.posted, 1)
	assert.Equal(t, "u1", b.posted[0]["userId"])
	assert.Equal(t, 30.0, b.posted[0]["valor"])

	answer, err = session.Ask(ctx, "Quanto recebi?")
	require.NoError(t, err)
	assert.Equal(t, "Você recebeu R$ 5.000,00 este mês.", answer.Text)
	assert.Equal(t, []string{"/despesas/u1"}, b.gets)

	_, err = session.Ask(ctx, "  ")
	assert.EqualError(t, err, "question is empty")
}
