package expenses

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/finassist/expense"
	"github.com/effective-security/finassist/pkg/llmutils"
	"github.com/effective-security/finassist/pkg/metricskey"
	"github.com/effective-security/finassist/tools"
	"github.com/effective-security/xlog"
	mcp "github.com/metoro-io/mcp-golang"
)

// CreateToolName is the name of the create tool.
const CreateToolName = "create_expense"

const createDescription = `Cadastra uma nova entrada ou saída financeira para um usuário específico.
Faz uma requisição POST para a API de entradas e saídas financeiras com os dados fornecidos.
O objeto expense_data deve conter descricao, categoria, valor (como número), tipo ('entrada' ou 'saida'), data (YYYY-MM-DD) e userId.
Retorna os dados da entrada ou saída financeira que foi cadastrada.`

// CreateRequest is the input of create_expense.
type CreateRequest struct {
	ExpenseData map[string]any `json:"expense_data" yaml:"expense_data" jsonschema:"title=expense_data,description=Detalhes da nova entrada ou saída financeira: descricao; categoria; valor; tipo; data; userId."`
}

// Expense is the created record as returned by the finance API.
type Expense map[string]any

// CreateTool validates and creates a record.
type CreateTool struct {
	api API
}

var (
	_ tools.Tool[CreateRequest, Expense] = (*CreateTool)(nil)
	_ tools.MCPTool[CreateRequest]       = (*CreateTool)(nil)
)

// NewCreateTool returns the create tool.
func NewCreateTool(api API) *CreateTool {
	return &CreateTool{api: api}
}

func (t *CreateTool) Name() string {
	return CreateToolName
}

func (t *CreateTool) Description() string {
	return createDescription
}

// Parameters returns the schema with the record fields listed,
// the MCP schema reflected from CreateRequest is a free-form object.
func (t *CreateTool) Parameters() any {
	return CreateParameters()
}

// Run validates the record and posts it to the API.
// Validation errors are returned before any request is made.
func (t *CreateTool) Run(ctx context.Context, req *CreateRequest) (*Expense, error) {
	record, err := expense.Normalize(req.ExpenseData)
	if err != nil {
		var verr *expense.ValidationError
		if errors.As(err, &verr) {
			metricskey.StatsToolValidationErrors.IncrCounter(1, CreateToolName, verr.Field)
			logger.ContextKV(ctx, xlog.WARNING,
				"tool", CreateToolName,
				"field", verr.Field,
				"reason", verr.Reason)
		}
		return nil, err
	}

	started := time.Now()
	created, err := t.api.CreateExpense(ctx, record)
	observe(ctx, CreateToolName, started, err)
	if err != nil {
		return nil, err
	}

	res := Expense(created)
	return &res, nil
}

func (t *CreateTool) Call(ctx context.Context, input string) (string, error) {
	var req CreateRequest
	if err := decode(string(llmutils.CleanJSON([]byte(input))), &req); err != nil {
		return "", err
	}
	res, err := t.Run(ctx, &req)
	if err != nil {
		return "", err
	}
	return encode(res)
}

// RunMCP is the MCP handler, the created record is returned as one JSON text content.
func (t *CreateTool) RunMCP(ctx context.Context, req CreateRequest) (*mcp.ToolResponse, error) {
	res, err := t.Run(ctx, &req)
	if err != nil {
		return nil, err
	}
	return textResponse(res)
}

func (t *CreateTool) RegisterMCP(registrator tools.McpServerRegistrator) error {
	if err := registrator.RegisterTool(t.Name(), t.Description(), t.RunMCP); err != nil {
		return errors.Wrapf(err, "failed to register tool %s", t.Name())
	}
	return nil
}
