// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package hostfunc

import (
	lua "github.com/yuin/gopher-lua"
)

// newSessionModule publishes SESSION.* which reads whatever session b holds
// at call time.
func newSessionModule(L *lua.LState, b *Bindings) *lua.LTable { //nolint:gocritic // L is the gopher-lua convention
	mod := L.NewTable()

	L.SetField(mod, "get_id", L.NewFunction(func(L *lua.LState) int {
		if b.session == nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(b.session.ID()))
		return 1
	}))

	L.SetField(mod, "get_username", L.NewFunction(func(L *lua.LState) int {
		if b.session == nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(b.session.Username()))
		return 1
	}))

	// SESSION.access(scope, object, method, perm) -> bool
	L.SetField(mod, "access", L.NewFunction(func(L *lua.LState) int {
		scope := L.CheckString(1)
		object := L.CheckString(2)
		method := L.CheckString(3)
		perm := L.CheckString(4)

		if b.session == nil {
			L.Push(lua.LFalse)
			return 1
		}
		L.Push(lua.LBool(b.session.Access(scope, object, method, perm)))
		return 1
	}))

	return mod
}
