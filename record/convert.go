package record

import (
	"encoding/json"
	"fmt"
	"math"
)

// FromAny converts a native Go value into a Value. Supported inputs are
// nil, booleans, all integer and float types, strings, json.Number,
// Value, Record, map[string]any, map[string]Value, []any, []Value and
// []string. Non-finite floats and any other type return an error so the
// engine never carries values it cannot compare or serialize.
func FromAny(v any) (Value, error) {
	return fromAny(v, MaxDepth)
}

func fromAny(v any, depth int) (Value, error) {
	if depth <= 0 {
		return Value{}, ErrTooDeep
	}
	switch val := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case float64:
		return number(val)
	case float32:
		return number(float64(val))
	case int:
		return Int(int64(val)), nil
	case int8:
		return Int(int64(val)), nil
	case int16:
		return Int(int64(val)), nil
	case int32:
		return Int(int64(val)), nil
	case int64:
		return Int(val), nil
	case uint:
		return number(float64(val))
	case uint8:
		return Int(int64(val)), nil
	case uint16:
		return Int(int64(val)), nil
	case uint32:
		return Int(int64(val)), nil
	case uint64:
		return number(float64(val))
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("record: invalid number %q: %w", val.String(), err)
		}
		return number(f)
	case Record:
		return Rec(val), nil
	case map[string]Value:
		return Rec(Record(val)), nil
	case map[string]any:
		r, err := fromMap(val, depth-1)
		if err != nil {
			return Value{}, err
		}
		return Rec(r), nil
	case []Value:
		return Array(val...), nil
	case []any:
		elems := make([]Value, len(val))
		for i, e := range val {
			ev, err := fromAny(e, depth-1)
			if err != nil {
				return Value{}, fmt.Errorf("record: array index %d: %w", i, err)
			}
			elems[i] = ev
		}
		return Array(elems...), nil
	case []string:
		elems := make([]Value, len(val))
		for i, s := range val {
			elems[i] = String(s)
		}
		return Array(elems...), nil
	default:
		return Value{}, fmt.Errorf("record: cannot convert %T to a value", v)
	}
}

func number(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("record: non-finite number %v is not representable", f)
	}
	return Number(f), nil
}

// FromMap converts a map of native Go values into a Record.
func FromMap(m map[string]any) (Record, error) {
	if m == nil {
		return nil, nil
	}
	return fromMap(m, MaxDepth)
}

func fromMap(m map[string]any, depth int) (Record, error) {
	r := make(Record, len(m))
	for name, v := range m {
		val, err := fromAny(v, depth)
		if err != nil {
			return nil, fmt.Errorf("record: field %q: %w", name, err)
		}
		r[name] = val
	}
	return r, nil
}

// MustValue converts like FromAny and panics on error. Intended for
// static literals in tests and examples.
func MustValue(v any) Value {
	val, err := FromAny(v)
	if err != nil {
		panic(err)
	}
	return val
}

// MustRecord converts like FromMap and panics on error. Intended for
// static literals in tests and examples.
func MustRecord(m map[string]any) Record {
	r, err := FromMap(m)
	if err != nil {
		panic(err)
	}
	return r
}
