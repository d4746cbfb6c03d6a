// Package record defines the dynamic record model the merge engine
// operates on: string-keyed fields holding null, boolean, number, string,
// nested record, or array values. Values are a closed tagged union with
// explicit accessors, so the engine never reflects over arbitrary host
// values and every operation on a record is total and deterministic.
package record

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MaxDepth bounds recursion for deep operations (equality, cloning,
// conversion, rendering). Structures nested deeper than this fail with
// ErrTooDeep instead of overflowing the stack. Cyclic structures are
// representable, since records and arrays are reference types, and hit
// the same bound.
const MaxDepth = 64

// ErrTooDeep reports that a deep operation exceeded MaxDepth.
var ErrTooDeep = errors.New("record: nesting exceeds maximum depth")

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindRecord
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindRecord:
		return "record"
	case KindArray:
		return "array"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a single field value. Exactly one variant is active, selected
// by Kind. The zero Value is null. Values are treated as immutable once
// built; record and array variants share underlying storage, so callers
// must not mutate nested structure after handing a Value to the engine.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	r    Record
	a    []Value
}

// Null returns the null value. Equivalent to the zero Value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value. Numbers carry double semantics.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int returns a numeric value from an integer.
func Int(n int64) Value { return Value{kind: KindNumber, n: float64(n)} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Rec returns a nested-record value. A nil map is normalized to an empty
// record; use Null for an explicit null.
func Rec(r Record) Value {
	if r == nil {
		r = Record{}
	}
	return Value{kind: KindRecord, r: r}
}

// Array returns an array value holding the given elements in order.
func Array(elems ...Value) Value {
	if elems == nil {
		elems = []Value{}
	}
	return Value{kind: KindArray, a: elems}
}

// Kind returns the active variant.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean variant. The second result is false when the
// value is not a boolean.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsNumber returns the numeric variant. The second result is false when
// the value is not a number.
func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.n, true
}

// AsString returns the string variant. The second result is false when
// the value is not a string.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsRecord returns the nested-record variant. The returned record is the
// value's backing storage and must be treated as read-only.
func (v Value) AsRecord() (Record, bool) {
	if v.kind != KindRecord {
		return nil, false
	}
	return v.r, true
}

// AsArray returns the array variant. The returned slice is the value's
// backing storage and must be treated as read-only.
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.a, true
}

// Equal reports deep structural equality between two values. Records
// compare by field set regardless of iteration order; arrays compare
// element-wise in order; numbers compare exactly. Structures nested
// beyond MaxDepth return ErrTooDeep.
func Equal(a, b Value) (bool, error) {
	return equalValue(a, b, MaxDepth)
}

func equalValue(a, b Value, depth int) (bool, error) {
	if depth <= 0 {
		return false, ErrTooDeep
	}
	if a.kind != b.kind {
		return false, nil
	}
	switch a.kind {
	case KindNull:
		return true, nil
	case KindBool:
		return a.b == b.b, nil
	case KindNumber:
		return a.n == b.n, nil
	case KindString:
		return a.s == b.s, nil
	case KindRecord:
		return equalRecord(a.r, b.r, depth-1)
	case KindArray:
		if len(a.a) != len(b.a) {
			return false, nil
		}
		for i := range a.a {
			eq, err := equalValue(a.a[i], b.a[i], depth-1)
			if err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("record: unknown kind %d", a.kind)
	}
}

func equalRecord(a, b Record, depth int) (bool, error) {
	if len(a) != len(b) {
		return false, nil
	}
	for name, av := range a {
		bv, ok := b[name]
		if !ok {
			return false, nil
		}
		eq, err := equalValue(av, bv, depth)
		if err != nil || !eq {
			return false, err
		}
	}
	return true, nil
}

// Clone returns a deep copy of the value. Structures nested beyond
// MaxDepth return ErrTooDeep.
func (v Value) Clone() (Value, error) {
	return cloneValue(v, MaxDepth)
}

func cloneValue(v Value, depth int) (Value, error) {
	if depth <= 0 {
		return Value{}, ErrTooDeep
	}
	switch v.kind {
	case KindRecord:
		r, err := cloneRecord(v.r, depth-1)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindRecord, r: r}, nil
	case KindArray:
		a := make([]Value, len(v.a))
		for i := range v.a {
			c, err := cloneValue(v.a[i], depth-1)
			if err != nil {
				return Value{}, err
			}
			a[i] = c
		}
		return Value{kind: KindArray, a: a}, nil
	default:
		return v, nil
	}
}

func cloneRecord(r Record, depth int) (Record, error) {
	if r == nil {
		return nil, nil
	}
	out := make(Record, len(r))
	for name, v := range r {
		c, err := cloneValue(v, depth)
		if err != nil {
			return nil, err
		}
		out[name] = c
	}
	return out, nil
}

// String renders a compact JSON-like representation for logs and debug
// output. Record fields appear in sorted order. Structures nested beyond
// MaxDepth are elided with an ellipsis.
func (v Value) String() string {
	var sb strings.Builder
	writeValue(&sb, v, MaxDepth)
	return sb.String()
}

func writeValue(sb *strings.Builder, v Value, depth int) {
	if depth <= 0 {
		sb.WriteString("…")
		return
	}
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		sb.WriteString(strconv.FormatFloat(v.n, 'g', -1, 64))
	case KindString:
		sb.WriteString(strconv.Quote(v.s))
	case KindRecord:
		sb.WriteByte('{')
		for i, name := range v.r.Fields() {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(name))
			sb.WriteByte(':')
			writeValue(sb, v.r[name], depth-1)
		}
		sb.WriteByte('}')
	case KindArray:
		sb.WriteByte('[')
		for i := range v.a {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeValue(sb, v.a[i], depth-1)
		}
		sb.WriteByte(']')
	}
}

// Record is a mutable mapping from field name to Value. A nil Record
// represents an absent record (deleted, or never observed), which is
// distinct from an empty one.
type Record map[string]Value

// Fields returns the record's field names in sorted order.
func (r Record) Fields() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the record. A nil record clones to nil,
// preserving absence. Structures nested beyond MaxDepth return ErrTooDeep.
func (r Record) Clone() (Record, error) {
	return cloneRecord(r, MaxDepth)
}

// Equal reports deep structural equality with another record. Absence is
// significant: a nil record equals only another nil record, never an
// empty one.
func (r Record) Equal(other Record) (bool, error) {
	if (r == nil) != (other == nil) {
		return false, nil
	}
	return equalRecord(r, other, MaxDepth)
}
