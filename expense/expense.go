// Package expense defines the expense record exchanged with the finance API
// and the validation applied before a record is created.
package expense

import (
	"encoding/json"
	"strconv"
)

// Record field names, as accepted by the finance API.
const (
	FieldDescricao = "descricao"
	FieldCategoria = "categoria"
	FieldValor     = "valor"
	FieldTipo      = "tipo"
	FieldData      = "data"
	FieldUserID    = "userId"
)

// RequiredFields lists the fields required to create a record,
// in the order they are validated.
var RequiredFields = []string{
	FieldDescricao,
	FieldCategoria,
	FieldValor,
	FieldTipo,
	FieldData,
	FieldUserID,
}

// Type is the direction of a financial entry.
type Type string

const (
	// TypeIncome is money coming in.
	TypeIncome Type = "entrada"
	// TypeExpense is money going out.
	TypeExpense Type = "saida"
)

// Types returns the accepted values for the `tipo` field.
func Types() []Type {
	return []Type{TypeIncome, TypeExpense}
}

// IsValid returns true if t is one of the accepted types.
func (t Type) IsValid() bool {
	return t == TypeIncome || t == TypeExpense
}

// Record is a typed view of an expense record.
// The finance API is the system of record, the map form returned by the
// API is the source of truth and Record is used only for presentation.
type Record struct {
	ID        string  `json:"id,omitempty" yaml:"id,omitempty"`
	Descricao string  `json:"descricao" yaml:"descricao"`
	Categoria string  `json:"categoria" yaml:"categoria"`
	Valor     float64 `json:"valor" yaml:"valor"`
	Tipo      Type    `json:"tipo" yaml:"tipo"`
	Data      string  `json:"data" yaml:"data"`
	UserID    string  `json:"userId" yaml:"userId"`
}

// FromMap builds a Record from a decoded API entry.
// Unknown or malformed fields are left zero.
func FromMap(m map[string]any) *Record {
	r := &Record{
		ID:        idString(m["id"], m["_id"]),
		Descricao: stringField(m, FieldDescricao),
		Categoria: stringField(m, FieldCategoria),
		Tipo:      Type(stringField(m, FieldTipo)),
		Data:      stringField(m, FieldData),
		UserID:    stringField(m, FieldUserID),
	}
	if v, ok := toFloat(m[FieldValor]); ok {
		r.Valor = v
	}
	return r
}

// Signed returns the amount with the sign of its direction.
func (r *Record) Signed() float64 {
	if r.Tipo == TypeExpense {
		return -r.Valor
	}
	return r.Valor
}

// Balance returns the sum of signed amounts.
func Balance(list []*Record) float64 {
	var total float64
	for _, r := range list {
		total += r.Signed()
	}
	return total
}

func idString(vals ...any) string {
	for _, v := range vals {
		switch id := v.(type) {
		case string:
			if id != "" {
				return id
			}
		case json.Number:
			return id.String()
		case float64:
			return strconv.FormatFloat(id, 'f', -1, 64)
		}
	}
	return ""
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
