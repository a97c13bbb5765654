// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

// Package hostfunc note: L is the idiomatic variable name for lua.LState
// in the gopher-lua community.
//nolint:gocritic // captLocal: L is the idiomatic name for lua.LState
package hostfunc

import (
	"math"
	"sort"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
)

// pushError pushes nil followed by an error string to the Lua stack and returns 2.
// This is the standard pattern for returning errors from host functions.
func pushError(L *lua.LState, errMsg string) int {
	L.Push(lua.LNil)
	L.Push(lua.LString(errMsg))
	return 2
}

// pushSuccess pushes a value followed by nil (no error) to the Lua stack and returns 2.
func pushSuccess(L *lua.LState, value lua.LValue) int {
	L.Push(value)
	L.Push(lua.LNil)
	return 2
}

// SequenceLen reports whether tbl is a sequence, i.e. its keys are exactly
// the integers 1..n for some n > 0, and returns n.
func SequenceLen(tbl *lua.LTable) (int, bool) {
	count := 0
	maxKey := 0
	ok := true
	tbl.ForEach(func(k, _ lua.LValue) {
		count++
		n, isNum := k.(lua.LNumber)
		if !isNum || float64(n) != math.Trunc(float64(n)) || n < 1 {
			ok = false
			return
		}
		if int(n) > maxKey {
			maxKey = int(n)
		}
	})
	if !ok || count == 0 || count != maxKey {
		return 0, false
	}
	return count, true
}

// ToGo converts a Lua value to plain Go values. Sequences become []any,
// other tables map[string]any with stringified keys. Functions, userdata
// and threads have no Go form and become nil. Cyclic tables and nesting
// deeper than 64 levels are errors.
func ToGo(v lua.LValue) (any, error) {
	c := &converter{seen: make(map[*lua.LTable]bool)}
	return c.toGo(v, 0)
}

const maxConvertDepth = 64

type converter struct {
	seen map[*lua.LTable]bool
}

func (c *converter) toGo(v lua.LValue, depth int) (any, error) {
	switch val := v.(type) {
	case lua.LString:
		return string(val), nil
	case lua.LNumber:
		return float64(val), nil
	case lua.LBool:
		return bool(val), nil
	case *lua.LTable:
		return c.table(val, depth)
	default:
		return nil, nil
	}
}

func (c *converter) table(tbl *lua.LTable, depth int) (any, error) {
	if depth >= maxConvertDepth {
		return nil, oops.In("hostfunc").Errorf("table nesting deeper than %d", maxConvertDepth)
	}
	if c.seen[tbl] {
		return nil, oops.In("hostfunc").Errorf("table contains a cycle")
	}
	c.seen[tbl] = true
	defer delete(c.seen, tbl)

	if n, ok := SequenceLen(tbl); ok {
		out := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			g, err := c.toGo(tbl.RawGetInt(i), depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, g)
		}
		return out, nil
	}

	out := make(map[string]any)
	var err error
	tbl.ForEach(func(k, item lua.LValue) {
		if err != nil {
			return
		}
		switch k.(type) {
		case lua.LString, lua.LNumber:
		default:
			return
		}
		var g any
		if g, err = c.toGo(item, depth+1); err == nil && g != nil {
			out[k.String()] = g
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FromGo converts plain Go values (as produced by encoding/json) into Lua
// values.
func FromGo(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(val)
	case bool:
		return lua.LBool(val)
	case float64:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case int:
		return lua.LNumber(val)
	case []any:
		t := L.NewTable()
		for _, item := range val {
			t.Append(FromGo(L, item))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			t.RawSetString(k, FromGo(L, val[k]))
		}
		return t
	default:
		return lua.LNil
	}
}
