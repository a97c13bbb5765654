// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

// Package lua runs plugin modules on an embedded gopher-lua interpreter.
package lua

import (
	"context"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/mkschreder/jucid/internal/plugin/engine"
	"github.com/mkschreder/jucid/internal/plugin/hostfunc"
)

// library is a Lua library opened in every state.
type library struct {
	name string
	fn   lua.LGFunction
}

// standardLibraries returns the full Lua standard library.
func standardLibraries() []library {
	return []library{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.IoLibName, lua.OpenIo},
		{lua.OsLibName, lua.OpenOs},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.DebugLibName, lua.OpenDebug},
		{lua.ChannelLibName, lua.OpenChannel},
		{lua.CoroutineLibName, lua.OpenCoroutine},
	}
}

// StateFactory creates Lua states with host APIs registered, the standard
// library opened and package.path pointing at the script library directory.
type StateFactory struct {
	// libraries allows overriding the opened libraries for testing.
	libraries []library
	hostFuncs *hostfunc.Functions
	libDir    string
}

// FactoryOption configures a StateFactory.
type FactoryOption func(*StateFactory)

// WithHostFunctions sets the host API bindings registered in each state.
func WithHostFunctions(hf *hostfunc.Functions) FactoryOption {
	return func(f *StateFactory) {
		f.hostFuncs = hf
	}
}

// WithLibDir puts dir first in the script library search order.
func WithLibDir(dir string) FactoryOption {
	return func(f *StateFactory) {
		f.libDir = dir
	}
}

// NewStateFactory creates a new state factory. The library directory is
// resolved once, here.
func NewStateFactory(opts ...FactoryOption) *StateFactory {
	f := &StateFactory{
		libraries: standardLibraries(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.hostFuncs == nil {
		f.hostFuncs = hostfunc.New()
	}
	f.libDir = ResolveLibDir(append([]string{f.libDir}, DefaultLibDirs()...)...)
	return f
}

// LibDir returns the resolved script library directory.
func (f *StateFactory) LibDir() string {
	return f.libDir
}

// NewState creates a fresh Lua state for pluginName. Host APIs are
// registered before the standard library is opened and before any script
// runs. The returned bindings carry the state's session slot.
func (f *StateFactory) NewState(_ context.Context, pluginName string) (*lua.LState, *hostfunc.Bindings, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})

	bindings := f.hostFuncs.Register(L, pluginName)

	for _, lib := range f.libraries {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, nil, oops.In("lua").With("plugin", pluginName).Wrapf(err, "failed to open library %s", lib.name)
		}
	}

	if pkg, ok := L.GetGlobal(lua.LoadLibName).(*lua.LTable); ok {
		current := lua.LVAsString(L.GetField(pkg, "path"))
		L.SetField(pkg, "path", lua.LString(SearchPath(f.libDir, current)))
	}

	return L, bindings, nil
}

// NewEngine creates a state and wraps it as an engine.Engine. It satisfies
// engine.Factory.
func (f *StateFactory) NewEngine(ctx context.Context, pluginName string) (engine.Engine, error) {
	L, bindings, err := f.NewState(ctx, pluginName)
	if err != nil {
		return nil, err
	}
	return &Engine{L: L, bindings: bindings, plugin: pluginName}, nil
}
