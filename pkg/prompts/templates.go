package prompts

import (
	"slices"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
	"github.com/nikolalohinski/gonja"
)

var (
	// ErrInvalidTemplateFormat is returned for unknown template formats.
	ErrInvalidTemplateFormat = errors.New("invalid template format")
	// ErrInputVariablesMissing is returned when a required input variable is not provided.
	ErrInputVariablesMissing = errors.New("missing input variables")
)

// TemplateFormat is the syntax of a template.
type TemplateFormat string

const (
	// TemplateFormatGoTemplate is Go text/template with sprig functions.
	TemplateFormatGoTemplate TemplateFormat = "go-template"
	// TemplateFormatJinja2 is Jinja2.
	TemplateFormatJinja2 TemplateFormat = "jinja2"
)

type interpolator func(template string, values map[string]any) (string, error)

var defaultFormatterMapping = map[TemplateFormat]interpolator{
	TemplateFormatGoTemplate: interpolateGoTemplate,
	TemplateFormatJinja2:     interpolateJinja2,
}

func interpolateGoTemplate(tmpl string, values map[string]any) (string, error) {
	parsed, err := template.New("template").
		Option("missingkey=error").
		Funcs(sprig.TxtFuncMap()).
		Parse(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse template")
	}
	sb := new(strings.Builder)
	if err = parsed.Execute(sb, values); err != nil {
		return "", errors.Wrap(err, "failed to execute template")
	}
	return sb.String(), nil
}

func interpolateJinja2(tmpl string, values map[string]any) (string, error) {
	tpl, err := gonja.FromString(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse template")
	}
	out, err := tpl.Execute(values)
	if err != nil {
		return "", errors.Wrap(err, "failed to execute template")
	}
	return out, nil
}

// RenderTemplate renders the template with the values.
func RenderTemplate(tmpl string, format TemplateFormat, values map[string]any) (string, error) {
	formatter, ok := defaultFormatterMapping[format]
	if !ok {
		return "", errors.WithMessagef(ErrInvalidTemplateFormat, "%q", format)
	}
	return formatter(tmpl, values)
}

// checkInputVariables returns ErrInputVariablesMissing listing the required
// variables that are not in values.
func checkInputVariables(required []string, values map[string]any) error {
	var missing []string
	for _, v := range required {
		if _, ok := values[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return errors.WithMessagef(ErrInputVariablesMissing, "%s", strings.Join(missing, ", "))
	}
	return nil
}
