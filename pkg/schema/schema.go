// Package schema builds JSON schemas of tool parameters from Go types.
package schema

import (
	"encoding/json"
	"reflect"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
)

var (
	cache   = make(map[reflect.Type]*Schema)
	cacheMu sync.RWMutex
)

// Schema of a Go type
type Schema struct {
	RawSchema *jsonschema.Schema
	// Parameters represents the Function parameters definition
	Parameters *jsonschema.Schema
}

// New creates a new schema from the given type
func New(t reflect.Type) (*Schema, error) {
	if t == nil {
		return nil, errors.New("type is required")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, errors.Newf("unsupported type %s: struct is required", t.String())
	}

	cacheMu.RLock()
	s, ok := cache[t]
	cacheMu.RUnlock()
	if ok {
		return s, nil
	}

	raw := JSONSchema(t)
	s = &Schema{
		RawSchema:  raw,
		Parameters: ToFunctionSchema(raw),
	}

	cacheMu.Lock()
	cache[t] = s
	cacheMu.Unlock()

	return s, nil
}

// For returns the schema of T
func For[T any]() (*Schema, error) {
	return New(reflect.TypeFor[T]())
}

func (s *Schema) String() string {
	js, _ := json.MarshalIndent(s.Parameters, "", "\t")
	return string(js)
}

// ToFunctionSchema returns the top level definition of the type,
// without the schema metadata.
func ToFunctionSchema(tSchema *jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        tSchema.Type,
		Description: tSchema.Description,
		Properties:  tSchema.Properties,
		Required:    tSchema.Required,
	}
}

// JSONSchema returns the expanded json schema of the type
func JSONSchema(t reflect.Type) *jsonschema.Schema {
	r := new(jsonschema.Reflector)
	r.ExpandedStruct = true
	r.DoNotReference = true
	r.AllowAdditionalProperties = true

	// struct names may repeat across packages,
	// the hash of the full name keeps definitions apart
	r.Namer = func(t reflect.Type) string {
		name := t.Name()
		if t.Kind() == reflect.Struct {
			fullname := t.PkgPath() + "/" + t.Name()
			name = t.Name() + "@" + strconv.FormatUint(xxhash.Sum64String(fullname), 10)
		}
		return name
	}

	return r.ReflectFromType(t)
}

// FromAny creates a json schema from any JSON-serializable value,
// for example a schema received from a remote tool server.
func FromAny(t any) (*jsonschema.Schema, error) {
	if t == nil {
		return nil, nil
	}
	js, err := json.Marshal(t)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal schema")
	}
	schema := &jsonschema.Schema{}
	if err = json.Unmarshal(js, schema); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal schema")
	}
	return schema, nil
}

// MustFromAny is like FromAny but panics on error.
func MustFromAny(t any) *jsonschema.Schema {
	schema, err := FromAny(t)
	if err != nil {
		panic(err)
	}
	return schema
}
