// Copyright 2026 The Acorn Authors.
//
// Use of this software is governed by the Apache License, Version 2.0
// included in the /LICENSE file.

package document

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/cockroachdb/errors"
)

// ValueType enumerates the kinds of values a property or document field can
// hold.
type ValueType int

const (
	// TypeString is a UTF-8 string.
	TypeString ValueType = iota
	// TypeInt is a 64-bit integer.
	TypeInt
	// TypeBool is a boolean.
	TypeBool
	// TypeMap is a nested map of named values.
	TypeMap
)

// Value is a tagged union over the types the document model supports. The
// zero Value is the empty string.
type Value struct {
	typ ValueType
	s   string
	i   int64
	b   bool
	m   map[string]Value
}

// StringValue returns a string Value.
func StringValue(s string) Value { return Value{typ: TypeString, s: s} }

// IntValue returns an integer Value.
func IntValue(i int64) Value { return Value{typ: TypeInt, i: i} }

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{typ: TypeBool, b: b} }

// MapValue returns a nested-map Value. The map is not copied.
func MapValue(m map[string]Value) Value { return Value{typ: TypeMap, m: m} }

// Type returns the value's type tag.
func (v Value) Type() ValueType { return v.typ }

// AsString returns the string payload; ok is false for other types.
func (v Value) AsString() (string, bool) { return v.s, v.typ == TypeString }

// AsInt returns the integer payload; ok is false for other types.
func (v Value) AsInt() (int64, bool) { return v.i, v.typ == TypeInt }

// AsBool returns the boolean payload; ok is false for other types.
func (v Value) AsBool() (bool, bool) { return v.b, v.typ == TypeBool }

// AsMap returns the map payload; ok is false for other types.
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.typ == TypeMap }

// Equal reports deep equality of two values.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeString:
		return v.s == o.s
	case TypeInt:
		return v.i == o.i
	case TypeBool:
		return v.b == o.b
	case TypeMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, a := range v.m {
			b, ok := o.m[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

// Native converts the value to the corresponding Go native representation,
// suitable for JSON or BSON encoding.
func (v Value) Native() interface{} { return v.native() }

func (v Value) native() interface{} {
	switch v.typ {
	case TypeString:
		return v.s
	case TypeInt:
		return v.i
	case TypeBool:
		return v.b
	case TypeMap:
		m := make(map[string]interface{}, len(v.m))
		for k, e := range v.m {
			m[k] = e.native()
		}
		return m
	}
	return nil
}

// ValueFromNative converts a decoded native value back into a Value.
func ValueFromNative(x interface{}) (Value, error) { return valueFromNative(x) }

func valueFromNative(x interface{}) (Value, error) {
	switch t := x.(type) {
	case string:
		return StringValue(t), nil
	case bool:
		return BoolValue(t), nil
	case int:
		return IntValue(int64(t)), nil
	case int32:
		return IntValue(int64(t)), nil
	case int64:
		return IntValue(t), nil
	case float64:
		// JSON decodes all numbers as float64 unless told otherwise.
		return IntValue(int64(t)), nil
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return Value{}, errors.Wrapf(ErrCorrupt, "non-integer number %q", t.String())
		}
		return IntValue(i), nil
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			v, err := valueFromNative(e)
			if err != nil {
				return Value{}, err
			}
			m[k] = v
		}
		return MapValue(m), nil
	}
	return Value{}, errors.Wrapf(ErrCorrupt, "unsupported value type %T", x)
}

// EncodeValue serializes a Value to its canonical string form (JSON with
// sorted map keys). The empty string is reserved as the property-removed
// marker and is never produced: the empty string value encodes as `""`.
func EncodeValue(v Value) string {
	var buf bytes.Buffer
	encodeValueTo(&buf, v)
	return buf.String()
}

func encodeValueTo(buf *bytes.Buffer, v Value) {
	switch v.typ {
	case TypeString:
		b, _ := json.Marshal(v.s)
		buf.Write(b)
	case TypeInt:
		b, _ := json.Marshal(v.i)
		buf.Write(b)
	case TypeBool:
		b, _ := json.Marshal(v.b)
		buf.Write(b)
	case TypeMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			encodeValueTo(buf, v.m[k])
		}
		buf.WriteByte('}')
	}
}

// DecodeValue parses the canonical string form produced by EncodeValue.
func DecodeValue(s string) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var x interface{}
	if err := dec.Decode(&x); err != nil {
		return Value{}, errors.Wrapf(ErrCorrupt, "malformed value %q", s)
	}
	return valueFromNative(x)
}
