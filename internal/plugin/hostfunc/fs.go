// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package hostfunc

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	lua "github.com/yuin/gopher-lua"
)

func newFSModule(L *lua.LState, pluginName string) *lua.LTable { //nolint:gocritic // L is the gopher-lua convention
	mod := L.NewTable()
	L.SetField(mod, "readfile", L.NewFunction(fsReadFile))
	L.SetField(mod, "writefile", L.NewFunction(fsWriteFileFn(pluginName)))
	L.SetField(mod, "exists", L.NewFunction(fsExists))
	L.SetField(mod, "dir", L.NewFunction(fsDir))
	L.SetField(mod, "stat", L.NewFunction(fsStat))
	return mod
}

// fsReadFile implements fs.readfile(path) -> content | nil, err.
func fsReadFile(L *lua.LState) int { //nolint:gocritic // L is the gopher-lua convention
	path := L.CheckString(1)

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return pushError(L, err.Error())
	}
	return pushSuccess(L, lua.LString(data))
}

func fsWriteFileFn(pluginName string) lua.LGFunction {
	return func(L *lua.LState) int {
		path := L.CheckString(1)
		data := L.CheckString(2)

		if err := os.WriteFile(filepath.Clean(path), []byte(data), 0o600); err != nil {
			slog.Debug("fs.writefile failed",
				"plugin", pluginName,
				"path", path,
				"error", err)
			return pushError(L, err.Error())
		}
		return pushSuccess(L, lua.LTrue)
	}
}

// fsExists implements fs.exists(path) -> bool.
func fsExists(L *lua.LState) int { //nolint:gocritic // L is the gopher-lua convention
	path := L.CheckString(1)

	_, err := os.Stat(filepath.Clean(path))
	L.Push(lua.LBool(err == nil))
	return 1
}

// fsDir implements fs.dir(path) -> {names...} | nil, err. Names are sorted.
func fsDir(L *lua.LState) int { //nolint:gocritic // L is the gopher-lua convention
	path := L.CheckString(1)

	entries, err := os.ReadDir(filepath.Clean(path))
	if err != nil {
		return pushError(L, err.Error())
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	t := L.NewTable()
	for _, n := range names {
		t.Append(lua.LString(n))
	}
	return pushSuccess(L, t)
}

// fsStat implements fs.stat(path) -> {size, mode, mtime, is_dir} | nil, err.
func fsStat(L *lua.LState) int { //nolint:gocritic // L is the gopher-lua convention
	path := L.CheckString(1)

	info, err := os.Stat(filepath.Clean(path))
	if err != nil {
		return pushError(L, err.Error())
	}
	t := L.NewTable()
	L.SetField(t, "size", lua.LNumber(info.Size()))
	L.SetField(t, "mode", lua.LString(info.Mode().String()))
	L.SetField(t, "mtime", lua.LNumber(info.ModTime().Unix()))
	L.SetField(t, "is_dir", lua.LBool(info.IsDir()))
	return pushSuccess(L, t)
}
