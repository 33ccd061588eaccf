package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/finassist/expense"
	"github.com/tidwall/gjson"
)

func newRenderer(width int) (*glamour.TermRenderer, error) {
	var margin uint
	dark := styles.DarkStyleConfig
	dark.Document.Color = nil
	dark.Document.Margin = &margin
	dark.Code.Prefix = ""
	dark.Code.Suffix = ""
	return glamour.NewTermRenderer(
		glamour.WithStyles(dark),
		glamour.WithWordWrap(width),
	)
}

// parseExpenses parses the output of list_expenses_by_user.
func parseExpenses(js string) ([]*expense.Record, error) {
	res := gjson.Parse(js)
	if !gjson.Valid(js) || !res.IsArray() {
		return nil, errors.Newf("unexpected response: %s", js)
	}
	var list []*expense.Record
	for _, item := range res.Array() {
		if m, ok := item.Value().(map[string]any); ok {
			list = append(list, expense.FromMap(m))
		}
	}
	return list, nil
}

func formatAmount(v float64) string {
	return fmt.Sprintf("R$ %.2f", v)
}

// expensesTable returns the records as a markdown table with the balance.
func expensesTable(list []*expense.Record) string {
	if len(list) == 0 {
		return "Nenhuma despesa registrada."
	}

	var b strings.Builder
	b.WriteString("| Data | Descrição | Categoria | Tipo | Valor |\n")
	b.WriteString("|------|-----------|-----------|------|------:|\n")
	for _, r := range list {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			r.Data,
			escapeCell(r.Descricao),
			escapeCell(r.Categoria),
			r.Tipo,
			formatAmount(r.Signed()))
	}
	fmt.Fprintf(&b, "\n**Saldo:** %s\n", formatAmount(expense.Balance(list)))
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
