package record

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalJSON implements json.Marshaler. Nested records marshal with
// sorted field names, so any record serializes to one canonical byte
// sequence and field insertion order never leaks into output.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return json.Marshal(v.n)
	case KindString:
		return json.Marshal(v.s)
	case KindRecord:
		return json.Marshal(v.r)
	case KindArray:
		return json.Marshal(v.a)
	default:
		return nil, fmt.Errorf("record: unknown kind %d", v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler, decoding any JSON value
// into the matching variant. JSON numbers decode with double semantics.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("record: empty JSON value")
	}
	switch data[0] {
	case 'n':
		*v = Null()
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case '{':
		var r Record
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		*v = Rec(r)
		return nil
	case '[':
		var a []Value
		if err := json.Unmarshal(data, &a); err != nil {
			return err
		}
		*v = Array(a...)
		return nil
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		*v = Number(f)
		return nil
	}
}
