package expenses

import (
	"github.com/effective-security/finassist/expense"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// CreateParameters returns the create_expense parameters
// with the record fields in validation order.
func CreateParameters() *jsonschema.Schema {
	fields := orderedmap.New[string, *jsonschema.Schema]()
	fields.Set(expense.FieldDescricao, &jsonschema.Schema{
		Type:        "string",
		Description: "Descrição curta da transação, ex: 'Conta de Luz'.",
	})
	fields.Set(expense.FieldCategoria, &jsonschema.Schema{
		Type:        "string",
		Description: "Categoria da transação, ex: 'Alimentação', 'Contas Fixas', 'Renda Extra'.",
	})
	fields.Set(expense.FieldValor, &jsonschema.Schema{
		Type:        "number",
		Description: "Valor da transação, um número positivo.",
	})
	fields.Set(expense.FieldTipo, &jsonschema.Schema{
		Type:        "string",
		Description: "'entrada' para receitas, 'saida' para gastos.",
		Enum:        []any{string(expense.TypeIncome), string(expense.TypeExpense)},
	})
	fields.Set(expense.FieldData, &jsonschema.Schema{
		Type:        "string",
		Description: "Data da transação no formato YYYY-MM-DD.",
	})
	fields.Set(expense.FieldUserID, &jsonschema.Schema{
		Type:        "string",
		Description: "ID do usuário dono da transação.",
	})

	props := orderedmap.New[string, *jsonschema.Schema]()
	props.Set("expense_data", &jsonschema.Schema{
		Type:        "object",
		Description: "Detalhes da nova entrada ou saída financeira.",
		Properties:  fields,
		Required:    expense.RequiredFields,
	})

	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   []string{"expense_data"},
	}
}
