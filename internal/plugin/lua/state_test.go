// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package lua_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pluginlua "github.com/mkschreder/jucid/internal/plugin/lua"
)

func TestStateFactory_NewState_LoadsStandardLibraries(t *testing.T) {
	factory := pluginlua.NewStateFactory()
	L, _, err := factory.NewState(context.Background(), "test")
	require.NoError(t, err)
	defer L.Close()

	for _, lib := range []string{"table", "string", "math", "os", "io", "package", "coroutine"} {
		if L.GetGlobal(lib).Type().String() == "nil" {
			t.Errorf("library %q not loaded", lib)
		}
	}
}

func TestStateFactory_NewState_RegistersHostAPIs(t *testing.T) {
	factory := pluginlua.NewStateFactory()
	L, _, err := factory.NewState(context.Background(), "test")
	require.NoError(t, err)
	defer L.Close()

	for _, name := range []string{"JSON", "fs", "SESSION", "CORE"} {
		if L.GetGlobal(name).Type().String() != "table" {
			t.Errorf("host API %q not registered", name)
		}
	}
}

func TestStateFactory_NewState_InstallsSearchPath(t *testing.T) {
	dir := t.TempDir()
	factory := pluginlua.NewStateFactory(pluginlua.WithLibDir(dir))
	assert.Equal(t, dir, factory.LibDir())

	L, _, err := factory.NewState(context.Background(), "test")
	require.NoError(t, err)
	defer L.Close()

	require.NoError(t, L.DoString(`p = package.path`))
	path := L.GetGlobal("p").String()
	assert.True(t, strings.HasPrefix(path, dir+"/?.lua;"+dir+"/orange/?.lua;"), "package.path = %q", path)
	assert.True(t, strings.HasSuffix(path, ";?.lua"), "package.path = %q", path)
}

func TestStateFactory_NewState_RequireFromLibDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "orange"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orange", "util.lua"),
		[]byte(`return { double = function(x) return x * 2 end }`), 0o600))

	factory := pluginlua.NewStateFactory(pluginlua.WithLibDir(dir))
	L, _, err := factory.NewState(context.Background(), "test")
	require.NoError(t, err)
	defer L.Close()

	require.NoError(t, L.DoString(`result = require("util").double(21)`))
	assert.Equal(t, "42", L.GetGlobal("result").String())
}

func TestStateFactory_NewState_StatesAreIndependent(t *testing.T) {
	factory := pluginlua.NewStateFactory()
	a, _, err := factory.NewState(context.Background(), "a")
	require.NoError(t, err)
	defer a.Close()
	b, _, err := factory.NewState(context.Background(), "b")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.DoString(`shared = 1`))
	assert.Equal(t, "nil", b.GetGlobal("shared").Type().String())
}
