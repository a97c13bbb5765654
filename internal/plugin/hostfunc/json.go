// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package hostfunc

import (
	"encoding/json"

	lua "github.com/yuin/gopher-lua"
)

func newJSONModule(L *lua.LState) *lua.LTable { //nolint:gocritic // L is the gopher-lua convention
	mod := L.NewTable()
	L.SetField(mod, "parse", L.NewFunction(jsonParse))
	L.SetField(mod, "stringify", L.NewFunction(jsonStringify))
	return mod
}

// jsonParse implements JSON.parse(str) -> value | nil, err.
func jsonParse(L *lua.LState) int { //nolint:gocritic // L is the gopher-lua convention
	text := L.CheckString(1)

	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return pushError(L, "invalid JSON: "+err.Error())
	}
	return pushSuccess(L, FromGo(L, v))
}

// jsonStringify implements JSON.stringify(value) -> str | nil, err.
func jsonStringify(L *lua.LState) int { //nolint:gocritic // L is the gopher-lua convention
	v := L.CheckAny(1)

	g, err := ToGo(v)
	if err != nil {
		return pushError(L, "cannot encode JSON: "+err.Error())
	}
	data, err := json.Marshal(g)
	if err != nil {
		return pushError(L, "cannot encode JSON: "+err.Error())
	}
	return pushSuccess(L, lua.LString(data))
}
