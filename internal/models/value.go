package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindNumber
	KindText
	KindBoolean
	KindSet
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindBoolean:
		return "boolean"
	case KindSet:
		return "set"
	default:
		return "invalid"
	}
}

// Value is a closed tagged variant used for profile attributes and rule operands.
// The zero Value is invalid and is treated as absent.
type Value struct {
	kind  Kind
	num   float64
	text  string
	flag  bool
	items []Value
}

func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

func Text(s string) Value { return Value{kind: KindText, text: s} }

func Boolean(b bool) Value { return Value{kind: KindBoolean, flag: b} }

func Set(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindSet, items: cp}
}

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsValid() bool { return v.kind != KindInvalid }

func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }
func (v Value) AsText() (string, bool)    { return v.text, v.kind == KindText }
func (v Value) AsBoolean() (bool, bool)   { return v.flag, v.kind == KindBoolean }

// Equal is type-aware: values of different kinds are never equal.
// Sets compare as unordered multisets.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num
	case KindText:
		return v.text == o.text
	case KindBoolean:
		return v.flag == o.flag
	case KindSet:
		if len(v.items) != len(o.items) {
			return false
		}
		used := make([]bool, len(o.items))
	outer:
		for _, a := range v.items {
			for j, b := range o.items {
				if !used[j] && a.Equal(b) {
					used[j] = true
					continue outer
				}
			}
			return false
		}
		return true
	default:
		return false
	}
}

// Contains reports whether a Set holds an element equal to x.
func (v Value) Contains(x Value) bool {
	for _, item := range v.items {
		if item.Equal(x) {
			return true
		}
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindText:
		return v.text
	case KindBoolean:
		return strconv.FormatBool(v.flag)
	case KindSet:
		parts := make([]string, len(v.items))
		for i, item := range v.items {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "<absent>"
	}
}

// Interface converts back to plain Go values, as produced by encoding/json.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindText:
		return v.text
	case KindBoolean:
		return v.flag
	case KindSet:
		out := make([]interface{}, len(v.items))
		for i, item := range v.items {
			out[i] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// FromInterface converts a decoded JSON value. nil yields an invalid Value.
func FromInterface(x interface{}) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Value{}, nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case string:
		return Text(t), nil
	case bool:
		return Boolean(t), nil
	case []string:
		items := make([]Value, len(t))
		for i, s := range t {
			items[i] = Text(s)
		}
		return Value{kind: KindSet, items: items}, nil
	case []interface{}:
		items := make([]Value, 0, len(t))
		for _, raw := range t {
			item, err := FromInterface(raw)
			if err != nil {
				return Value{}, err
			}
			if item.IsValid() {
				items = append(items, item)
			}
		}
		return Value{kind: KindSet, items: items}, nil
	case Value:
		return t, nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", x)
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromInterface(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Attributes maps profile field names to values. A missing key means the
// citizen has not supplied the field.
type Attributes map[string]Value

// AttributesFromMap drops nil entries so they read as absent.
func AttributesFromMap(raw map[string]interface{}) (Attributes, error) {
	out := make(Attributes, len(raw))
	for k, x := range raw {
		v, err := FromInterface(x)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
		if v.IsValid() {
			out[k] = v
		}
	}
	return out, nil
}

func (a *Attributes) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	attrs, err := AttributesFromMap(raw)
	if err != nil {
		return err
	}
	*a = attrs
	return nil
}

// Keys returns attribute names in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
