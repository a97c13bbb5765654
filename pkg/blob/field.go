// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package blob

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"iter"
	"math"

	"github.com/samber/oops"
)

// ErrMalformed reports data that is not a valid blob encoding.
var ErrMalformed = errors.New("malformed blob")

// maxDepth bounds nesting accepted by Parse.
const maxDepth = 128

// Field is a read-only view of one encoded field. Fields obtained from Parse
// or a Builder share the underlying buffer.
type Field struct {
	typ  Type
	data []byte
}

// Parse validates data and returns its top level as a table field.
func Parse(data []byte) (Field, error) {
	if err := validate(data, true, 0); err != nil {
		return Field{}, err
	}
	return Field{typ: TypeTable, data: data}, nil
}

func malformed(offset int, reason string) error {
	return oops.In("blob").Code("BLOB_MALFORMED").With("offset", offset).Wrapf(ErrMalformed, "%s", reason)
}

func validate(data []byte, table bool, depth int) error {
	if depth > maxDepth {
		return malformed(0, "nesting too deep")
	}
	pos, index := 0, 0
	for pos < len(data) {
		if len(data)-pos < headerSize {
			return malformed(pos, "truncated header")
		}
		t := Type(data[pos])
		n := int(binary.BigEndian.Uint32(data[pos+1:]))
		if n > len(data)-pos-headerSize {
			return malformed(pos, "length exceeds buffer")
		}
		payload := data[pos+headerSize : pos+headerSize+n]
		if table && index%2 == 0 && t != TypeString {
			return malformed(pos, "table key is not a string")
		}
		switch t {
		case TypeTable, TypeArray:
			if err := validate(payload, t == TypeTable, depth+1); err != nil {
				return err
			}
		case TypeString:
		case TypeInt, TypeReal:
			if n != 8 {
				return malformed(pos, "bad numeric width")
			}
		case TypeBool:
			if n != 1 {
				return malformed(pos, "bad bool width")
			}
		default:
			return malformed(pos, "unknown type tag")
		}
		pos += headerSize + n
		index++
	}
	if table && index%2 != 0 {
		return malformed(pos, "table key without value")
	}
	return nil
}

// next splits the first field off an already validated sequence.
func next(data []byte) (Field, []byte) {
	n := int(binary.BigEndian.Uint32(data[1:]))
	end := headerSize + n
	return Field{typ: Type(data[0]), data: data[headerSize:end]}, data[end:]
}

// Type returns the field type.
func (f Field) Type() Type {
	return f.typ
}

// IsValid reports whether the field holds a value.
func (f Field) IsValid() bool {
	return f.typ != TypeInvalid
}

// Str returns the payload of a string field, or "" for other types.
func (f Field) Str() string {
	if f.typ != TypeString {
		return ""
	}
	return string(f.data)
}

// Int returns the numeric value of an int, real or bool field, truncated to
// an integer. Other types yield 0.
func (f Field) Int() int64 {
	switch f.typ {
	case TypeInt:
		return int64(binary.BigEndian.Uint64(f.data)) //nolint:gosec // two's complement round-trips
	case TypeReal:
		return int64(f.Real())
	case TypeBool:
		if f.Bool() {
			return 1
		}
	}
	return 0
}

// Real returns the numeric value of an int or real field.
func (f Field) Real() float64 {
	switch f.typ {
	case TypeReal:
		return math.Float64frombits(binary.BigEndian.Uint64(f.data))
	case TypeInt:
		return float64(f.Int())
	}
	return 0
}

// Bool returns the value of a bool field.
func (f Field) Bool() bool {
	return f.typ == TypeBool && f.data[0] != 0
}

// Children yields the nested fields of a table or array. Table children
// alternate keys and values.
func (f Field) Children() iter.Seq[Field] {
	return func(yield func(Field) bool) {
		if f.typ != TypeTable && f.typ != TypeArray {
			return
		}
		rest := f.data
		for len(rest) > 0 {
			var c Field
			c, rest = next(rest)
			if !yield(c) {
				return
			}
		}
	}
}

// Pairs yields the key/value pairs of a table field.
func (f Field) Pairs() iter.Seq2[string, Field] {
	return func(yield func(string, Field) bool) {
		if f.typ != TypeTable {
			return
		}
		rest := f.data
		for len(rest) > 0 {
			var k, v Field
			k, rest = next(rest)
			v, rest = next(rest)
			if !yield(k.Str(), v) {
				return
			}
		}
	}
}

// Get returns the value stored under key in a table field.
func (f Field) Get(key string) (Field, bool) {
	for k, v := range f.Pairs() {
		if k == key {
			return v, true
		}
	}
	return Field{}, false
}

// Len returns the number of entries of a table (pairs) or array (elements).
func (f Field) Len() int {
	n := 0
	for range f.Children() {
		n++
	}
	if f.typ == TypeTable {
		return n / 2
	}
	return n
}

// Bytes returns a copy of the field's encoding, header included.
func (f Field) Bytes() []byte {
	var b Builder
	b.PutField(f)
	return b.buf
}

// Value converts the field to plain Go values: map[string]any, []any,
// string, int64, float64 or bool.
func (f Field) Value() any {
	switch f.typ {
	case TypeTable:
		m := make(map[string]any)
		for k, v := range f.Pairs() {
			m[k] = v.Value()
		}
		return m
	case TypeArray:
		a := make([]any, 0)
		for c := range f.Children() {
			a = append(a, c.Value())
		}
		return a
	case TypeString:
		return f.Str()
	case TypeInt:
		return f.Int()
	case TypeReal:
		return f.Real()
	case TypeBool:
		return f.Bool()
	}
	return nil
}

// MarshalJSON renders the field as JSON.
func (f Field) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(f.Value())
	if err != nil {
		return nil, oops.In("blob").Wrap(err)
	}
	return data, nil
}

// String renders the field as JSON for diagnostics.
func (f Field) String() string {
	data, err := f.MarshalJSON()
	if err != nil {
		return "<" + f.typ.String() + ">"
	}
	return string(data)
}

// FromJSON encodes a JSON object as a blob whose top level holds the
// object's members.
func FromJSON(data []byte) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, oops.In("blob").Code("BLOB_BAD_JSON").Hint("arguments must be a JSON object").Wrap(err)
	}
	var b Builder
	if err := b.PutPairs(m); err != nil {
		return nil, err
	}
	return b.buf, nil
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	}
	return 0, false
}
