package schema_test

import (
	"reflect"
	"testing"

	"github.com/effective-security/finassist/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type address struct {
	City string `json:"city" jsonschema:"title=city,description=City name"`
}

type person struct {
	Name    string         `json:"name" jsonschema:"title=name,description=Full name"`
	Age     int            `json:"age,omitempty"`
	Tags    []string       `json:"tags,omitempty"`
	Home    *address       `json:"home,omitempty"`
	Records map[string]any `json:"records"`
}

func TestSchema(t *testing.T) {
	s, err := schema.New(reflect.TypeOf(person{}))
	require.NoError(t, err)
	require.NotNil(t, s.Parameters)

	p := s.Parameters
	assert.Equal(t, "object", p.Type)
	assert.ElementsMatch(t, []string{"name", "records"}, p.Required)
	assert.Empty(t, p.Version)

	name, ok := p.Properties.Get("name")
	require.True(t, ok)
	assert.Equal(t, "string", name.Type)
	assert.Equal(t, "Full name", name.Description)

	home, ok := p.Properties.Get("home")
	require.True(t, ok)
	assert.Empty(t, home.Ref)
	city, ok := home.Properties.Get("city")
	require.True(t, ok)
	assert.Equal(t, "City name", city.Description)

	records, ok := p.Properties.Get("records")
	require.True(t, ok)
	assert.Equal(t, "object", records.Type)

	// cached, pointer types resolve to the struct
	s2, err := schema.New(reflect.TypeOf(&person{}))
	require.NoError(t, err)
	assert.Same(t, s, s2)

	s3, err := schema.For[person]()
	require.NoError(t, err)
	assert.Same(t, s, s3)

	assert.Contains(t, s.String(), `"name"`)

	_, err = schema.New(reflect.TypeOf("string"))
	assert.Error(t, err)
	_, err = schema.New(nil)
	assert.Error(t, err)
}

func TestSchemaFromAny(t *testing.T) {
	s, err := schema.FromAny(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"user": map[string]any{
				"type":        "string",
				"description": "user id",
			},
		},
		"required": []string{"user"},
	})
	require.NoError(t, err)
	assert.Equal(t, "object", s.Type)
	assert.Equal(t, []string{"user"}, s.Required)
	user, ok := s.Properties.Get("user")
	require.True(t, ok)
	assert.Equal(t, "user id", user.Description)

	s, err = schema.FromAny(nil)
	require.NoError(t, err)
	assert.Nil(t, s)

	assert.Panics(t, func() {
		schema.MustFromAny(func() {})
	})
}
