package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
)

// FromGo converts a plain Go value into a Value.
//
// Supported inputs are the shapes produced by encoding/json, gopkg.in/yaml.v3
// and the CUE decoder: nil, bool, string, all int and float kinds,
// json.Number, *big.Int (when it fits in int64), []any, map[string]any,
// map[any]any with string keys, and Values themselves.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return nil, fmt.Errorf("integer overflows int64: %d", val)
		}
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer overflows int64: %d", val)
		}
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val, err)
		}
		return Float(f), nil
	case *big.Int:
		if !val.IsInt64() {
			return nil, fmt.Errorf("integer overflows int64: %s", val)
		}
		return Int(val.Int64()), nil
	case []any:
		items := make([]Value, len(val))
		for i, elem := range val {
			item, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = item
		}
		return &Array{items: items}, nil
	case map[string]any:
		fields := make(map[string]Value, len(val))
		for k, elem := range val {
			field, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			fields[k] = field
		}
		return &Object{fields: fields}, nil
	case map[any]any:
		fields := make(map[string]Value, len(val))
		for k, elem := range val {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("object key %v is %T, want string", k, k)
			}
			field, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", key, err)
			}
			fields[key] = field
		}
		return &Object{fields: fields}, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// MustFromGo is FromGo for literals in tests and examples. Panics on error.
func MustFromGo(v any) Value {
	val, err := FromGo(v)
	if err != nil {
		panic(err)
	}
	return val
}

// ToGo converts a Value into plain Go values: nil, string, int64, float64,
// bool, []any and map[string]any.
func ToGo(v Value) any {
	switch val := orNull(v).(type) {
	case Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case *Array:
		out := make([]any, val.Len())
		for i, item := range val.items {
			out[i] = ToGo(item)
		}
		return out
	case *Object:
		out := make(map[string]any, val.Len())
		for k, field := range val.fields {
			out[k] = ToGo(field)
		}
		return out
	default:
		return nil
	}
}

// ParseJSON decodes a single JSON document into a Value.
// Integral numbers become Int, all other numbers Float.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode JSON: trailing data after value")
	}
	return FromGo(raw)
}

// MarshalJSON implements json.Marshaler using the canonical rendering.
func (o *Object) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(o)
}

// MarshalJSON implements json.Marshaler using the canonical rendering.
func (a *Array) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(a)
}

// String renders the object as canonical JSON.
func (o *Object) String() string {
	return render(o)
}

// String renders the array as canonical JSON.
func (a *Array) String() string {
	return render(a)
}

func render(v Value) string {
	data, err := MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("<%s: %v>", Kind(v), err)
	}
	return string(data)
}
