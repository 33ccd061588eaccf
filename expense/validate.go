package expense

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrValidation is matched by every *ValidationError with errors.Is.
var ErrValidation = errors.New("invalid expense")

// ValidationError is returned when a candidate record is rejected
// before it is sent to the finance API.
type ValidationError struct {
	// Field is the offending field name.
	Field string
	// Reason describes the constraint that failed.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field '%s' %s", e.Field, e.Reason)
}

// Is allows errors.Is(err, ErrValidation).
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsValidation returns true if err, or any error in its chain, is a *ValidationError.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// Normalize validates a candidate record and returns a copy of it
// with `valor` coerced to float64.
//
// Checks run in order: every required field is present and non-empty,
// `tipo` is one of the accepted types, `valor` is a number or a numeric string.
// The first failed check is returned as *ValidationError.
// Fields not listed in RequiredFields are passed through unchanged.
func Normalize(data map[string]any) (map[string]any, error) {
	for _, field := range RequiredFields {
		if isEmpty(data[field]) {
			return nil, &ValidationError{
				Field:  field,
				Reason: "is required to create an expense",
			}
		}
	}

	tipo, ok := data[FieldTipo].(string)
	if !ok || !Type(tipo).IsValid() {
		return nil, &ValidationError{
			Field:  FieldTipo,
			Reason: fmt.Sprintf("must be '%s' or '%s'", TypeIncome, TypeExpense),
		}
	}

	valor, err := coerceValor(data[FieldValor])
	if err != nil {
		return nil, err
	}

	res := maps.Clone(data)
	res[FieldValor] = valor
	return res, nil
}

func coerceValor(v any) (float64, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || hasHexPrefix(s) {
			return 0, &ValidationError{
				Field:  FieldValor,
				Reason: "must be a number or a valid numeric string",
			}
		}
		return f, nil
	}

	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &ValidationError{
			Field:  FieldValor,
			Reason: "must be a number",
		}
	}
	return f, nil
}

// hasHexPrefix reports whether s is written in the hexadecimal form
// that strconv accepts, such as 0x1p4.
func hasHexPrefix(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// toFloat converts numeric values to float64.
// Strings are not converted, bool is not a number.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// isEmpty reports values that do not satisfy a required field:
// absent, nil, empty string, false, zero numbers and empty collections.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch val := v.(type) {
	case string:
		return val == ""
	case bool:
		return !val
	case json.Number:
		f, err := val.Float64()
		return err == nil && f == 0
	}
	if f, ok := toFloat(v); ok {
		return f == 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
