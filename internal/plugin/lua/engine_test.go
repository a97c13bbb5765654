// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package lua_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkschreder/jucid/internal/plugin/engine"
	pluginlua "github.com/mkschreder/jucid/internal/plugin/lua"
	"github.com/mkschreder/jucid/pkg/blob"
	"github.com/mkschreder/jucid/pkg/errutil"
)

// writeScript creates a Lua file in a temp directory and returns its path.
func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plugin.lua")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func newEngine(t *testing.T) engine.Engine {
	t.Helper()
	e, err := pluginlua.NewStateFactory().NewEngine(context.Background(), "test")
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

type staticSession struct{ user string }

func (s staticSession) ID() string                    { return "sess-1" }
func (s staticSession) Username() string              { return s.user }
func (s staticSession) Access(_, _, _, _ string) bool { return true }

func TestEngine_RunReturnsModuleTable(t *testing.T) {
	e := newEngine(t)
	path := writeScript(t, `
		local M = {}
		function M.foo(args) return {} end
		function M.bar(args) return {} end
		return M
	`)

	mod, err := e.Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, engine.KindTable, mod.Kind())

	keys := e.Keys(mod)
	sort.Strings(keys)
	assert.Equal(t, []string{"bar", "foo"}, keys)
	assert.Equal(t, engine.KindFunction, e.Field(mod, "foo").Kind())
	assert.Equal(t, engine.KindNil, e.Field(mod, "missing").Kind())
}

func TestEngine_RunCompileError(t *testing.T) {
	e := newEngine(t)
	path := writeScript(t, `return {`)

	_, err := e.Run(context.Background(), path)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, engine.CodeCompile)

	var se *engine.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, engine.CodeCompile, se.Code)
}

func TestEngine_RunMissingFile(t *testing.T) {
	e := newEngine(t)
	_, err := e.Run(context.Background(), filepath.Join(t.TempDir(), "nope.lua"))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, engine.CodeCompile)
}

func TestEngine_RunRuntimeError(t *testing.T) {
	e := newEngine(t)
	path := writeScript(t, `error("boom")`)

	_, err := e.Run(context.Background(), path)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, engine.CodeRuntime)
	assert.Contains(t, err.Error(), "boom")
}

func TestEngine_Keys_NumericKeysStringified(t *testing.T) {
	e := newEngine(t)
	mod, err := e.Run(context.Background(), writeScript(t, `return { "first", named = true, [true] = 1 }`))
	require.NoError(t, err)

	keys := e.Keys(mod)
	sort.Strings(keys)
	assert.Equal(t, []string{"1", "named"}, keys)
}

func TestEngine_FieldHonoursMetatable(t *testing.T) {
	e := newEngine(t)
	mod, err := e.Run(context.Background(), writeScript(t, `
		return setmetatable({}, { __index = { hidden = function() return 1 end } })
	`))
	require.NoError(t, err)

	assert.Equal(t, engine.KindFunction, e.Field(mod, "hidden").Kind())
	assert.Empty(t, e.Keys(mod))
}

func TestEngine_FieldOnNonTable(t *testing.T) {
	e := newEngine(t)
	assert.Equal(t, engine.KindNil, e.Field(engine.NewValue(engine.KindNumber, 1, nil), "x").Kind())
}

func TestEngine_InvokeMarshalsArguments(t *testing.T) {
	e := newEngine(t)
	mod, err := e.Run(context.Background(), writeScript(t, `
		return {
			echo = function(args) return args end,
		}
	`))
	require.NoError(t, err)

	var in blob.Builder
	require.NoError(t, in.PutPairs(map[string]any{
		"name":   "lan",
		"mtu":    int64(1500),
		"ratio":  0.5,
		"up":     true,
		"addrs":  []any{"a", "b"},
		"nested": map[string]any{"k": "v"},
	}))
	args := in.Root()

	ret, err := e.Invoke(context.Background(), e.Field(mod, "echo"), &args)
	require.NoError(t, err)
	require.Equal(t, engine.KindTable, ret.Kind())

	var out blob.Builder
	require.NoError(t, e.Encode(ret, &out))
	assert.Equal(t, map[string]any{
		"name":   "lan",
		"mtu":    int64(1500),
		"ratio":  0.5,
		"up":     true,
		"addrs":  []any{"a", "b"},
		"nested": map[string]any{"k": "v"},
	}, out.Root().Value())
}

func TestEngine_InvokeWithoutArgumentsPassesEmptyTable(t *testing.T) {
	e := newEngine(t)
	mod, err := e.Run(context.Background(), writeScript(t, `
		return { count = function(args) local n = 0; for _ in pairs(args) do n = n + 1 end; return n end }
	`))
	require.NoError(t, err)

	ret, err := e.Invoke(context.Background(), e.Field(mod, "count"), nil)
	require.NoError(t, err)
	assert.Equal(t, engine.KindNumber, ret.Kind())
	assert.Equal(t, int64(0), ret.Integer())
}

func TestEngine_InvokeRaises(t *testing.T) {
	e := newEngine(t)
	mod, err := e.Run(context.Background(), writeScript(t, `
		return {
			fail = function() error("bad things") end,
			code = function() error(7) end,
		}
	`))
	require.NoError(t, err)

	_, err = e.Invoke(context.Background(), e.Field(mod, "fail"), nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, engine.CodeRuntime)
	assert.Contains(t, err.Error(), "bad things")

	_, err = e.Invoke(context.Background(), e.Field(mod, "code"), nil)
	var se *engine.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, int64(7), se.Value.Integer())
}

func TestEngine_InvokeCanceledContext(t *testing.T) {
	e := newEngine(t)
	mod, err := e.Run(context.Background(), writeScript(t, `
		return { spin = function() while true do end end }
	`))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Invoke(ctx, e.Field(mod, "spin"), nil)
	require.Error(t, err)
}

func TestEngine_EncodeRejectsCycles(t *testing.T) {
	e := newEngine(t)
	mod, err := e.Run(context.Background(), writeScript(t, `
		local t = {}
		t.self = t
		return t
	`))
	require.NoError(t, err)

	var out blob.Builder
	err = e.Encode(mod, &out)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, engine.CodeEncode)
}

func TestEngine_EncodeSkipsFunctions(t *testing.T) {
	e := newEngine(t)
	mod, err := e.Run(context.Background(), writeScript(t, `
		return { x = 1, f = function() end, list = { 1, 2.5, "three" } }
	`))
	require.NoError(t, err)

	var out blob.Builder
	require.NoError(t, e.Encode(mod, &out))
	assert.Equal(t, map[string]any{
		"x":    int64(1),
		"list": []any{int64(1), 2.5, "three"},
	}, out.Root().Value())
}

func TestEngine_BindSession(t *testing.T) {
	e := newEngine(t)
	mod, err := e.Run(context.Background(), writeScript(t, `
		return { whoami = function() return { user = SESSION.get_username() } end }
	`))
	require.NoError(t, err)

	e.BindSession(staticSession{user: "admin"})
	ret, err := e.Invoke(context.Background(), e.Field(mod, "whoami"), nil)
	require.NoError(t, err)

	var out blob.Builder
	require.NoError(t, e.Encode(ret, &out))
	assert.Equal(t, map[string]any{"user": "admin"}, out.Root().Value())
}

func TestEngine_CloseIsIdempotent(t *testing.T) {
	e, err := pluginlua.NewStateFactory().NewEngine(context.Background(), "test")
	require.NoError(t, err)

	e.Close()
	e.Close()

	_, err = e.Run(context.Background(), "whatever.lua")
	require.Error(t, err)
}
