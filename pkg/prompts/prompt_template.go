package prompts

import (
	"maps"
)

// PromptTemplate contains common fields for all prompt templates.
type PromptTemplate struct {
	// Template is the prompt template.
	Template string

	// InputVariables is a list of variable names the prompt template expects.
	InputVariables []string

	// TemplateFormat is the format of the prompt template.
	TemplateFormat TemplateFormat

	// PartialVariables represents a map of variable names to values or functions
	// that return values. If the value is a function, it will be called when the
	// prompt template is rendered.
	PartialVariables map[string]any
}

// NewPromptTemplate returns a new Go template with the input variables.
func NewPromptTemplate(template string, inputVars []string) PromptTemplate {
	return PromptTemplate{
		Template:       template,
		InputVariables: inputVars,
		TemplateFormat: TemplateFormatGoTemplate,
	}
}

// Format formats the prompt template and returns a string value.
func (p PromptTemplate) Format(values map[string]any) (string, error) {
	resolved, err := resolvePartialValues(p.PartialVariables, values)
	if err != nil {
		return "", err
	}
	if err = checkInputVariables(p.InputVariables, resolved); err != nil {
		return "", err
	}
	return RenderTemplate(p.Template, p.TemplateFormat, resolved)
}

// GetInputVariables returns the input variables the prompt expect.
func (p PromptTemplate) GetInputVariables() []string {
	return p.InputVariables
}

func resolvePartialValues(partialValues map[string]any, values map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(partialValues)+len(values))
	for variable, value := range partialValues {
		switch value := value.(type) {
		case string:
			resolved[variable] = value
		case func() string:
			resolved[variable] = value()
		default:
			resolved[variable] = value
		}
	}
	maps.Copy(resolved, values)
	return resolved, nil
}
