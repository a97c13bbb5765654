// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package lua

import (
	"math"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/mkschreder/jucid/internal/plugin/hostfunc"
	"github.com/mkschreder/jucid/pkg/blob"
)

// maxEncodeDepth bounds table nesting accepted by encodePairs.
const maxEncodeDepth = 64

// tableFromBlob builds a Lua table from a blob table or array. Arrays become
// 1-based sequences.
func tableFromBlob(L *lua.LState, f blob.Field) *lua.LTable { //nolint:gocritic // L is the gopher-lua convention
	t := L.NewTable()
	switch f.Type() {
	case blob.TypeTable:
		for k, v := range f.Pairs() {
			t.RawSetString(k, valueFromBlob(L, v))
		}
	case blob.TypeArray:
		for c := range f.Children() {
			t.Append(valueFromBlob(L, c))
		}
	}
	return t
}

func valueFromBlob(L *lua.LState, f blob.Field) lua.LValue { //nolint:gocritic // L is the gopher-lua convention
	switch f.Type() {
	case blob.TypeTable, blob.TypeArray:
		return tableFromBlob(L, f)
	case blob.TypeString:
		return lua.LString(f.Str())
	case blob.TypeInt:
		return lua.LNumber(f.Int())
	case blob.TypeReal:
		return lua.LNumber(f.Real())
	case blob.TypeBool:
		return lua.LBool(f.Bool())
	default:
		return lua.LNil
	}
}

type encoder struct {
	out  *blob.Builder
	seen map[*lua.LTable]bool
}

// encodePairs writes every entry of tbl as a key/value pair. Keys without a
// string form and values without a blob form are skipped.
func encodePairs(tbl *lua.LTable, out *blob.Builder) error {
	e := &encoder{out: out, seen: make(map[*lua.LTable]bool)}
	return e.pairs(tbl, 0)
}

func (e *encoder) pairs(tbl *lua.LTable, depth int) error {
	if depth > maxEncodeDepth {
		return oops.Errorf("table nesting deeper than %d", maxEncodeDepth)
	}
	if e.seen[tbl] {
		return oops.Errorf("table contains a cycle")
	}
	e.seen[tbl] = true
	defer delete(e.seen, tbl)

	var err error
	tbl.ForEach(func(k, v lua.LValue) {
		if err != nil || !encodable(v) {
			return
		}
		switch k.(type) {
		case lua.LString, lua.LNumber:
		default:
			return
		}
		e.out.PutString(k.String())
		err = e.value(v, depth)
	})
	return err
}

func (e *encoder) value(v lua.LValue, depth int) error {
	switch val := v.(type) {
	case lua.LString:
		e.out.PutString(string(val))
	case lua.LNumber:
		putNumber(e.out, float64(val))
	case lua.LBool:
		e.out.PutBool(bool(val))
	case *lua.LTable:
		if n, ok := hostfunc.SequenceLen(val); ok {
			return e.array(val, n, depth+1)
		}
		t := e.out.OpenTable()
		if err := e.pairs(val, depth+1); err != nil {
			return err
		}
		e.out.CloseTable(t)
	}
	return nil
}

func (e *encoder) array(tbl *lua.LTable, n, depth int) error {
	if depth > maxEncodeDepth {
		return oops.Errorf("table nesting deeper than %d", maxEncodeDepth)
	}
	if e.seen[tbl] {
		return oops.Errorf("table contains a cycle")
	}
	e.seen[tbl] = true
	defer delete(e.seen, tbl)

	a := e.out.OpenArray()
	for i := 1; i <= n; i++ {
		item := tbl.RawGetInt(i)
		if !encodable(item) {
			continue
		}
		if err := e.value(item, depth); err != nil {
			return err
		}
	}
	e.out.CloseArray(a)
	return nil
}

func encodable(v lua.LValue) bool {
	switch v.(type) {
	case lua.LString, lua.LNumber, lua.LBool, *lua.LTable:
		return true
	}
	return false
}

func putNumber(out *blob.Builder, n float64) {
	if n == math.Trunc(n) && math.Abs(n) < 1<<63 {
		out.PutInt(int64(n))
		return
	}
	out.PutReal(n)
}
