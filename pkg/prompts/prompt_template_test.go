package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptTemplate_Partials(t *testing.T) {
	t.Parallel()

	p := NewPromptTemplate("{{ .name }} em {{ .today }}", []string{"name", "today"})
	p.PartialVariables = map[string]any{
		"today": func() string { return "2025-07-10" },
	}
	out, err := p.Format(map[string]any{"name": "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "Ana em 2025-07-10", out)

	out, err = p.Format(map[string]any{"name": "Ana", "today": "ontem"})
	require.NoError(t, err)
	assert.Equal(t, "Ana em ontem", out)

	p.PartialVariables = nil
	_, err = p.Format(map[string]any{"name": "Ana"})
	require.ErrorIs(t, err, ErrInputVariablesMissing)
	assert.Contains(t, err.Error(), "today")

	j := NewPromptTemplate("{{ name }} em {{ today }}", []string{"name"})
	j.TemplateFormat = TemplateFormatJinja2
	out, err = j.Format(map[string]any{"name": "Ana", "today": "2025-07-10"})
	require.NoError(t, err)
	assert.Equal(t, "Ana em 2025-07-10", out)
}

func TestRenderTemplate(t *testing.T) {
	t.Parallel()

	out, err := RenderTemplate(
		"{% for e in examples %}- {{ e.descricao }}: {{ e.valor }}\n{% endfor %}",
		TemplateFormatJinja2,
		map[string]any{
			"examples": []map[string]any{
				{"descricao": "Lanche", "valor": 30},
				{"descricao": "Conta de Luz", "valor": 150},
			},
		})
	require.NoError(t, err)
	assert.Equal(t, "- Lanche: 30\n- Conta de Luz: 150\n", out)

	out, err = RenderTemplate(`{{ upper .tipo }}`, TemplateFormatGoTemplate, map[string]any{"tipo": "saida"})
	require.NoError(t, err)
	assert.Equal(t, "SAIDA", out)

	_, err = RenderTemplate(`{{ .missing }}`, TemplateFormatGoTemplate, map[string]any{})
	assert.Error(t, err)

	_, err = RenderTemplate(`{{ .x `, TemplateFormatGoTemplate, nil)
	assert.Error(t, err)

	_, err = RenderTemplate(`{% for %}`, TemplateFormatJinja2, nil)
	assert.Error(t, err)

	_, err = RenderTemplate(`x`, "f-string", nil)
	assert.ErrorIs(t, err, ErrInvalidTemplateFormat)
}
