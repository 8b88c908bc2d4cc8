// Package metadata models free-form per-record metadata as a tagged variant
// (string | number | bool | list | object) instead of an untyped blob, so
// values survive a store/load round trip with their kinds intact.
package metadata

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindObject
)

// Value is one metadata value. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	list []Value
	obj  map[string]Value
}

func String(s string) Value          { return Value{kind: KindString, str: s} }
func Number(n float64) Value         { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value              { return Value{kind: KindBool, b: b} }
func List(items ...Value) Value      { return Value{kind: KindList, list: items} }
func Object(m map[string]Value) Value { return Value{kind: KindObject, obj: m} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) StringValue() (string, bool) { return v.str, v.kind == KindString }
func (v Value) NumberValue() (float64, bool) { return v.num, v.kind == KindNumber }
func (v Value) BoolValue() (bool, bool)      { return v.b, v.kind == KindBool }
func (v Value) ListValue() ([]Value, bool)   { return v.list, v.kind == KindList }
func (v Value) ObjectValue() (map[string]Value, bool) {
	return v.obj, v.kind == KindObject
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindObject:
		if v.obj == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.obj)
	default:
		return nil, fmt.Errorf("metadata: unknown kind %d", v.kind)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := fromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func fromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Value{}, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Number(f), nil
	case []any:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			parsed, err := fromAny(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, parsed)
		}
		return List(items...), nil
	case map[string]any:
		obj := make(map[string]Value, len(t))
		for key, item := range t {
			parsed, err := fromAny(item)
			if err != nil {
				return Value{}, err
			}
			obj[key] = parsed
		}
		return Object(obj), nil
	default:
		return Value{}, fmt.Errorf("metadata: unsupported value %T", raw)
	}
}

// Map is the top-level metadata shape stored on records.
type Map map[string]Value

// Value implements driver.Valuer so Map persists as a jsonb/text column.
func (m Map) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (m *Map) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch t := value.(type) {
	case []byte:
		data = t
	case string:
		data = []byte(t)
	default:
		return errors.New("metadata: unsupported scan source")
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}
