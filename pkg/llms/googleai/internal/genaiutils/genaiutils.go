package genaiutils

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/finassist/pkg/llms"
	"github.com/invopop/jsonschema"
	"google.golang.org/genai"
)

// ConvertTools converts from a list of llms tools to a list of genai tools.
func ConvertTools(tools []llms.Tool) ([]*genai.Tool, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for i, tool := range tools {
		if tool.Type != "function" || tool.Function == nil {
			return nil, errors.Errorf("tool [%d]: unsupported type %q, want 'function'", i, tool.Type)
		}

		decl := &genai.FunctionDeclaration{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
		}
		if tool.Function.Parameters != nil {
			schema, err := ConvertJSONSchemaDefinition(tool.Function.Parameters)
			if err != nil {
				return nil, errors.Wrapf(err, "tool [%d]", i)
			}
			decl.Parameters = schema
		}
		decls = append(decls, decl)
	}

	return []*genai.Tool{{FunctionDeclarations: decls}}, nil
}

// ConvertJSONSchemaDefinition converts a jsonschema.Schema to a genai.Schema.
func ConvertJSONSchemaDefinition(jschema *jsonschema.Schema) (*genai.Schema, error) {
	if jschema == nil {
		return nil, nil
	}

	schema := &genai.Schema{
		Type:        ConvertJSONSchemaType(jschema.Type),
		Description: jschema.Description,
		Required:    jschema.Required,
	}

	for _, e := range jschema.Enum {
		schema.Enum = append(schema.Enum, fmt.Sprint(e))
	}

	if jschema.Properties != nil && jschema.Properties.Len() > 0 {
		schema.Properties = make(map[string]*genai.Schema, jschema.Properties.Len())
		for pair := jschema.Properties.Oldest(); pair != nil; pair = pair.Next() {
			propSchema, err := ConvertJSONSchemaDefinition(pair.Value)
			if err != nil {
				return nil, errors.Wrapf(err, "property [%s]", pair.Key)
			}
			schema.Properties[pair.Key] = propSchema
			schema.PropertyOrdering = append(schema.PropertyOrdering, pair.Key)
		}
	}

	if jschema.Items != nil {
		itemsSchema, err := ConvertJSONSchemaDefinition(jschema.Items)
		if err != nil {
			return nil, errors.Wrap(err, "items")
		}
		schema.Items = itemsSchema
	}

	if schema.Type == genai.TypeUnspecified && len(jschema.AnyOf) > 0 {
		// number|string unions are sent as the first alternative
		return ConvertJSONSchemaDefinition(jschema.AnyOf[0])
	}

	return schema, nil
}

// ConvertJSONSchemaType converts a JSON schema type to a genai.Type.
func ConvertJSONSchemaType(dt string) genai.Type {
	switch dt {
	case "object":
		return genai.TypeObject
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeUnspecified
	}
}

// Float32Ptr returns nil for zero
func Float32Ptr(f float32) *float32 {
	if f == 0 {
		return nil
	}
	return &f
}

// Int32Ptr returns nil for zero
func Int32Ptr(i int32) *int32 {
	if i == 0 {
		return nil
	}
	return &i
}
