package tupledb

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// Value is a JSON-like value: nil, bool, float64, string, []any or
// map[string]any. Min and Max are also Values, but only inside bound tuples.
type Value = any

// Tuple is the key type of the store.
type Tuple []Value

// TupleValuePair is a single stored record.
type TupleValuePair struct {
	Tuple Tuple
	Value Value
}

// Sentinel marks the ends of a scan range. Sentinels are never stored.
type Sentinel int8

const (
	Min Sentinel = -1
	Max Sentinel = 1
)

func (s Sentinel) String() string {
	switch s {
	case Min:
		return "$min"
	case Max:
		return "$max"
	default:
		return fmt.Sprintf("invalid sentinel %d", int8(s))
	}
}

func (s Sentinel) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (tup Tuple) String() string {
	var buf strings.Builder
	buf.WriteByte('[')
	for i, v := range tup {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(loggableValue(v))
	}
	buf.WriteByte(']')
	return buf.String()
}

// Append returns a new tuple holding tup followed by vals.
func (tup Tuple) Append(vals ...Value) Tuple {
	out := make(Tuple, 0, len(tup)+len(vals))
	out = append(out, tup...)
	return append(out, vals...)
}

// HasPrefix reports whether the first len(prefix) elements of tup equal prefix.
func (tup Tuple) HasPrefix(prefix Tuple) bool {
	if len(prefix) > len(tup) {
		return false
	}
	for i, v := range prefix {
		if CompareValue(tup[i], v) != 0 {
			return false
		}
	}
	return true
}

func (p TupleValuePair) String() string {
	return p.Tuple.String() + " = " + loggableValue(p.Value)
}

// NormalizeValue converts v into the canonical representation used by the
// store. All numbers become float64, slices become []any and string-keyed
// maps become map[string]any. Anything that has no JSON form, and the
// sentinels, are rejected with ErrInvalidArgument.
func NormalizeValue(v any) (Value, error) {
	nv, err := normalizeValue(v, "")
	if err != nil {
		return nil, argErrf(nil, err, "")
	}
	return nv, nil
}

// NormalizeTuple normalizes every element of tup. Sentinels are accepted as
// top-level elements only when allowSentinels is set, i.e. for bound tuples.
func NormalizeTuple(tup Tuple, allowSentinels bool) (Tuple, error) {
	if tup == nil {
		return nil, nil
	}
	out := make(Tuple, len(tup))
	for i, el := range tup {
		if s, ok := el.(Sentinel); ok {
			if !allowSentinels {
				return nil, argErrf(tup, nil, "%v at [%d] cannot be stored", s, i)
			}
			if s != Min && s != Max {
				return nil, argErrf(tup, nil, "%v at [%d]", s, i)
			}
			out[i] = s
			continue
		}
		v, err := normalizeValue(el, fmt.Sprintf("[%d]", i))
		if err != nil {
			return nil, argErrf(tup, err, "")
		}
		out[i] = v
	}
	return out, nil
}

func normalizeValue(v any, path string) (Value, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return v, nil
	case string:
		return v, nil
	case float64:
		return normalizeFloat(v, path)
	case float32:
		return normalizeFloat(float64(v), path)
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, pathErrf(path, "number %q: %v", string(v), err)
		}
		return normalizeFloat(f, path)
	case Sentinel:
		return nil, pathErrf(path, "%v cannot be stored", v)
	case []any:
		out := make([]any, len(v))
		for i, el := range v {
			nv, err := normalizeValue(el, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	case Tuple:
		return normalizeValue([]any(v), path)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, el := range v {
			nv, err := normalizeValue(el, fmt.Sprintf("%s[%q]", path, k))
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return out, nil
	case json.Marshaler:
		return normalizeViaJSON(v, path)
	}
	return normalizeReflect(reflect.ValueOf(v), path)
}

func normalizeReflect(val reflect.Value, path string) (Value, error) {
	switch val.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(val.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(val.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return normalizeFloat(val.Float(), path)
	case reflect.Bool:
		return val.Bool(), nil
	case reflect.String:
		return val.String(), nil
	case reflect.Pointer, reflect.Interface:
		if val.IsNil() {
			return nil, nil
		}
		return normalizeValue(val.Elem().Interface(), path)
	case reflect.Slice, reflect.Array:
		if val.Type().Elem().Kind() == reflect.Uint8 {
			return nil, pathErrf(path, "byte slices are not supported")
		}
		if val.Kind() == reflect.Slice && val.IsNil() {
			return nil, nil
		}
		n := val.Len()
		out := make([]any, n)
		for i := 0; i < n; i++ {
			nv, err := normalizeValue(val.Index(i).Interface(), fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	case reflect.Map:
		if val.Type().Key().Kind() != reflect.String {
			return nil, pathErrf(path, "map key type %v is not string", val.Type().Key())
		}
		if val.IsNil() {
			return nil, nil
		}
		out := make(map[string]any, val.Len())
		iter := val.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			nv, err := normalizeValue(iter.Value().Interface(), fmt.Sprintf("%s[%q]", path, k))
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return out, nil
	case reflect.Struct:
		return normalizeViaJSON(val.Interface(), path)
	default:
		return nil, pathErrf(path, "unsupported type %v", val.Type())
	}
}

func normalizeViaJSON(v any, path string) (Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, pathErrf(path, "%T: %v", v, err)
	}
	parsed, err := parseJSONValue(raw)
	if err != nil {
		return nil, pathErrf(path, "%T: %v", v, err)
	}
	return normalizeValue(parsed, path)
}

// parseJSONValue decodes JSON keeping numbers exact until normalization.
func parseJSONValue(raw []byte) (any, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func normalizeFloat(f float64, path string) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, pathErrf(path, "%v is not representable", f)
	}
	if f == 0 {
		return float64(0), nil // folds -0
	}
	return f, nil
}

func pathErrf(path string, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if path == "" {
		return fmt.Errorf("%s", msg)
	}
	return fmt.Errorf("%s: %s", path, msg)
}

func loggableValue(v Value) string {
	if s, ok := v.(Sentinel); ok {
		return s.String()
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<%T>", v)
	}
	return string(raw)
}
