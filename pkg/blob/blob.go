// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

// Package blob implements a compact, self-describing binary encoding for
// nested tables, arrays and scalar values.
//
// Every field is a one byte type tag, a four byte big-endian payload length
// and the payload. Table payloads alternate string keys and values; array
// payloads are plain field sequences. The top level of an encoded blob is an
// implicit table.
package blob

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/samber/oops"
)

// Type identifies the kind of a field.
type Type uint8

// Field types.
const (
	TypeInvalid Type = iota
	TypeTable
	TypeArray
	TypeString
	TypeInt
	TypeReal
	TypeBool
)

func (t Type) String() string {
	switch t {
	case TypeTable:
		return "table"
	case TypeArray:
		return "array"
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeReal:
		return "real"
	case TypeBool:
		return "bool"
	default:
		return "invalid"
	}
}

const headerSize = 5

// Offset marks an open table or array inside a Builder.
type Offset int

// Builder appends fields to a growing buffer. Tables and arrays are opened,
// filled and closed; closing patches the length of the opened header.
//
// The zero value is ready to use.
type Builder struct {
	buf []byte
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Bytes returns the encoded buffer. The slice aliases the builder's storage
// and is only valid until the next write.
func (b *Builder) Bytes() []byte {
	return b.buf
}

// Len returns the number of encoded bytes.
func (b *Builder) Len() int {
	return len(b.buf)
}

// Reset discards all written fields.
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
}

// Truncate discards everything written after the first n bytes. It is used
// to drop a partially written field; n must come from an earlier Len.
func (b *Builder) Truncate(n int) {
	if n < 0 || n > len(b.buf) {
		panic("blob: truncate out of range")
	}
	b.buf = b.buf[:n]
}

// Root returns the top level of the builder as a table field.
func (b *Builder) Root() Field {
	return Field{typ: TypeTable, data: b.buf}
}

// OpenTable starts a nested table.
func (b *Builder) OpenTable() Offset {
	return b.open(TypeTable)
}

// CloseTable finishes the table started at o.
func (b *Builder) CloseTable(o Offset) {
	b.close(o, TypeTable)
}

// OpenArray starts a nested array.
func (b *Builder) OpenArray() Offset {
	return b.open(TypeArray)
}

// CloseArray finishes the array started at o.
func (b *Builder) CloseArray(o Offset) {
	b.close(o, TypeArray)
}

// PutString appends a string field.
func (b *Builder) PutString(s string) {
	b.header(TypeString, len(s))
	b.buf = append(b.buf, s...)
}

// PutInt appends a 64-bit integer field.
func (b *Builder) PutInt(v int64) {
	b.header(TypeInt, 8)
	b.buf = binary.BigEndian.AppendUint64(b.buf, uint64(v)) //nolint:gosec // two's complement round-trips
}

// PutReal appends a 64-bit floating point field.
func (b *Builder) PutReal(v float64) {
	b.header(TypeReal, 8)
	b.buf = binary.BigEndian.AppendUint64(b.buf, math.Float64bits(v))
}

// PutBool appends a boolean field.
func (b *Builder) PutBool(v bool) {
	b.header(TypeBool, 1)
	if v {
		b.buf = append(b.buf, 1)
	} else {
		b.buf = append(b.buf, 0)
	}
}

// PutField appends a copy of an already encoded field.
func (b *Builder) PutField(f Field) {
	b.header(f.typ, len(f.data))
	b.buf = append(b.buf, f.data...)
}

// PutValue appends a Go value. Maps become tables with sorted keys, slices
// become arrays. Nil map entries and nil slice elements are skipped.
func (b *Builder) PutValue(v any) error {
	switch val := v.(type) {
	case string:
		b.PutString(val)
	case bool:
		b.PutBool(val)
	case int:
		b.PutInt(int64(val))
	case int32:
		b.PutInt(int64(val))
	case int64:
		b.PutInt(val)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			b.PutInt(int64(val))
		} else {
			b.PutReal(val)
		}
	case map[string]any:
		t := b.OpenTable()
		if err := b.PutPairs(val); err != nil {
			return err
		}
		b.CloseTable(t)
	case []any:
		a := b.OpenArray()
		for _, item := range val {
			if item == nil {
				continue
			}
			if err := b.PutValue(item); err != nil {
				return err
			}
		}
		b.CloseArray(a)
	default:
		if n, ok := asNumber(v); ok {
			return b.PutValue(n)
		}
		return oops.In("blob").Code("BLOB_UNSUPPORTED").Errorf("unsupported value type %T", v)
	}
	return nil
}

// PutPairs appends the entries of m as key/value pairs into the currently
// open table (or the implicit top-level table).
func (b *Builder) PutPairs(m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if m[k] == nil {
			continue
		}
		b.PutString(k)
		if err := b.PutValue(m[k]); err != nil {
			return oops.With("key", k).Wrap(err)
		}
	}
	return nil
}

func (b *Builder) header(t Type, n int) {
	b.buf = append(b.buf, byte(t))
	b.buf = binary.BigEndian.AppendUint32(b.buf, uint32(n)) //nolint:gosec // fields are far below 4GiB
}

func (b *Builder) open(t Type) Offset {
	off := len(b.buf)
	b.header(t, 0)
	return Offset(off)
}

func (b *Builder) close(o Offset, t Type) {
	start := int(o)
	if start < 0 || start+headerSize > len(b.buf) || Type(b.buf[start]) != t {
		panic("blob: close of " + t.String() + " without matching open")
	}
	n := len(b.buf) - start - headerSize
	binary.BigEndian.PutUint32(b.buf[start+1:], uint32(n)) //nolint:gosec // bounded by buffer length
}
