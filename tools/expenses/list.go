package expenses

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/finassist/pkg/llmutils"
	"github.com/effective-security/finassist/pkg/schema"
	"github.com/effective-security/finassist/tools"
	mcp "github.com/metoro-io/mcp-golang"
)

// ListToolName is the name of the list tool.
const ListToolName = "list_expenses_by_user"

const listDescription = `Busca e retorna uma lista de entradas e saídas financeiras de um usuário específico.
Faz uma requisição GET para a API de entradas e saídas financeiras, filtrando os resultados pelo ID do usuário fornecido.
Retorna uma lista de objetos com os dados das entradas e saídas financeiras do usuário.`

// ListRequest is the input of list_expenses_by_user.
type ListRequest struct {
	User string `json:"user" yaml:"user" jsonschema:"title=user,description=O ID do usuário cujas entradas e saídas financeiras devem ser listadas."`
}

// Expenses is the list of records as returned by the finance API.
type Expenses []map[string]any

// ListTool lists the records of a user.
type ListTool struct {
	api API
}

var (
	_ tools.Tool[ListRequest, Expenses] = (*ListTool)(nil)
	_ tools.MCPTool[ListRequest]        = (*ListTool)(nil)
)

// NewListTool returns the list tool.
func NewListTool(api API) *ListTool {
	return &ListTool{api: api}
}

func (t *ListTool) Name() string {
	return ListToolName
}

func (t *ListTool) Description() string {
	return listDescription
}

func (t *ListTool) Parameters() any {
	sc, err := schema.For[ListRequest]()
	if err != nil {
		return nil
	}
	return sc.Parameters
}

// Run returns the records of the user unchanged.
// The user is not validated, the API decides.
func (t *ListTool) Run(ctx context.Context, req *ListRequest) (*Expenses, error) {
	started := time.Now()
	list, err := t.api.ListExpenses(ctx, req.User)
	observe(ctx, ListToolName, started, err)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []map[string]any{}
	}
	res := Expenses(list)
	return &res, nil
}

func (t *ListTool) Call(ctx context.Context, input string) (string, error) {
	var req ListRequest
	if err := decode(string(llmutils.CleanJSON([]byte(input))), &req); err != nil {
		return "", err
	}
	res, err := t.Run(ctx, &req)
	if err != nil {
		return "", err
	}
	return encode(res)
}

// RunMCP is the MCP handler, the list is returned as one JSON text content.
func (t *ListTool) RunMCP(ctx context.Context, req ListRequest) (*mcp.ToolResponse, error) {
	res, err := t.Run(ctx, &req)
	if err != nil {
		return nil, err
	}
	return textResponse(res)
}

func (t *ListTool) RegisterMCP(registrator tools.McpServerRegistrator) error {
	if err := registrator.RegisterTool(t.Name(), t.Description(), t.RunMCP); err != nil {
		return errors.Wrapf(err, "failed to register tool %s", t.Name())
	}
	return nil
}
