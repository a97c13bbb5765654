// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package lua

import (
	"context"
	"errors"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/mkschreder/jucid/internal/plugin/engine"
	"github.com/mkschreder/jucid/internal/plugin/hostfunc"
	"github.com/mkschreder/jucid/pkg/blob"
)

// Compile-time interface check.
var _ engine.Engine = (*Engine)(nil)

// Engine is an engine.Engine backed by one gopher-lua state.
type Engine struct {
	L        *lua.LState
	bindings *hostfunc.Bindings
	plugin   string
}

// Run compiles the file at path and runs it with no arguments, keeping one
// result.
func (e *Engine) Run(ctx context.Context, path string) (engine.Value, error) {
	if e.L == nil {
		return engine.Value{}, oops.In("lua").With("plugin", e.plugin).New("engine is closed")
	}

	fn, err := e.L.LoadFile(path)
	if err != nil {
		return engine.Value{}, e.scriptError(engine.CodeCompile, err, "path", path)
	}

	e.withContext(ctx)
	defer e.L.RemoveContext()

	if err := e.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}); err != nil {
		return engine.Value{}, e.scriptError(engine.CodeRuntime, err, "path", path)
	}

	ret := e.L.Get(-1)
	e.L.Pop(1)
	return wrap(ret), nil
}

// Field reads name off table, honouring metatables. Non-tables and lookups
// that raise yield a nil value.
func (e *Engine) Field(table engine.Value, name string) (v engine.Value) {
	tbl, ok := table.Ref().(*lua.LTable)
	if !ok || e.L == nil {
		return engine.Value{}
	}
	defer func() {
		if r := recover(); r != nil {
			v = engine.Value{}
		}
	}()
	return wrap(e.L.GetField(tbl, name))
}

// Keys returns the keys of table that have a string form, in the order
// gopher-lua iterates them.
func (e *Engine) Keys(table engine.Value) []string {
	tbl, ok := table.Ref().(*lua.LTable)
	if !ok {
		return nil
	}
	var keys []string
	tbl.ForEach(func(k, _ lua.LValue) {
		switch k.(type) {
		case lua.LString, lua.LNumber:
			keys = append(keys, k.String())
		}
	})
	return keys
}

// Invoke calls fn with one table argument and keeps one result.
func (e *Engine) Invoke(ctx context.Context, fn engine.Value, args *blob.Field) (engine.Value, error) {
	if e.L == nil {
		return engine.Value{}, oops.In("lua").With("plugin", e.plugin).New("engine is closed")
	}
	callable, ok := fn.Ref().(lua.LValue)
	if !ok {
		return engine.Value{}, oops.In("lua").With("plugin", e.plugin).Errorf("cannot invoke a %s", fn.Kind())
	}

	var arg *lua.LTable
	if args != nil {
		arg = tableFromBlob(e.L, *args)
	} else {
		arg = e.L.NewTable()
	}

	e.withContext(ctx)
	defer e.L.RemoveContext()

	if err := e.L.CallByParam(lua.P{
		Fn:      callable,
		NRet:    1,
		Protect: true,
	}, arg); err != nil {
		return engine.Value{}, e.scriptError(engine.CodeRuntime, err)
	}

	ret := e.L.Get(-1)
	e.L.Pop(1)
	return wrap(ret), nil
}

// Encode writes the entries of table into the open table of out.
func (e *Engine) Encode(table engine.Value, out *blob.Builder) error {
	tbl, ok := table.Ref().(*lua.LTable)
	if !ok {
		return oops.In("lua").Code(engine.CodeEncode).With("plugin", e.plugin).Errorf("cannot encode a %s as a table", table.Kind())
	}
	if err := encodePairs(tbl, out); err != nil {
		return oops.In("lua").Code(engine.CodeEncode).With("plugin", e.plugin).Wrap(err)
	}
	return nil
}

// BindSession makes s visible to the SESSION host API.
func (e *Engine) BindSession(s engine.Session) {
	e.bindings.SetSession(s)
}

// Close releases the state. Safe to call more than once.
func (e *Engine) Close() {
	if e.L == nil {
		return
	}
	e.L.Close()
	e.L = nil
}

func (e *Engine) withContext(ctx context.Context) {
	if ctx != nil {
		e.L.SetContext(ctx)
	}
}

// scriptError converts a gopher-lua failure into an *engine.Error wrapped
// with oops context.
func (e *Engine) scriptError(code string, err error, kv ...any) error {
	se := &engine.Error{Code: code, Message: err.Error()}
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) {
		if apiErr.Object != nil {
			se.Message = apiErr.Object.String()
			se.Value = wrap(apiErr.Object)
		}
		se.Trace = apiErr.StackTrace
	}
	return oops.In("lua").Code(code).With("plugin", e.plugin).With(kv...).Wrap(se)
}

// wrap tags a Lua value with its engine kind.
func wrap(v lua.LValue) engine.Value {
	num := float64(lua.LVAsNumber(v))
	switch v.Type() {
	case lua.LTNil:
		return engine.NewValue(engine.KindNil, 0, v)
	case lua.LTTable:
		return engine.NewValue(engine.KindTable, 0, v)
	case lua.LTNumber:
		return engine.NewValue(engine.KindNumber, num, v)
	case lua.LTFunction:
		return engine.NewValue(engine.KindFunction, 0, v)
	default:
		return engine.NewValue(engine.KindOther, num, v)
	}
}
