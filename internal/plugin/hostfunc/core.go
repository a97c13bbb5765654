// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package hostfunc

import (
	"time"

	"github.com/oklog/ulid/v2"
	lua "github.com/yuin/gopher-lua"
)

func (f *Functions) newCoreModule(L *lua.LState, pluginName string) *lua.LTable { //nolint:gocritic // L is the gopher-lua convention
	mod := L.NewTable()
	L.SetField(mod, "log", L.NewFunction(f.logFn(pluginName)))
	L.SetField(mod, "new_request_id", L.NewFunction(newRequestID))
	L.SetField(mod, "time", L.NewFunction(unixTime))
	return mod
}

// logFn implements CORE.log(level, message).
func (f *Functions) logFn(pluginName string) lua.LGFunction {
	return func(L *lua.LState) int {
		level := L.CheckString(1)
		message := L.CheckString(2)

		logger := f.log().With("plugin", pluginName)
		switch level {
		case "debug":
			logger.Debug(message)
		case "info":
			logger.Info(message)
		case "warn":
			logger.Warn(message)
		case "error":
			logger.Error(message)
		default:
			logger.Info(message)
		}
		return 0
	}
}

func newRequestID(L *lua.LState) int { //nolint:gocritic // L is the gopher-lua convention
	L.Push(lua.LString(ulid.Make().String()))
	return 1
}

func unixTime(L *lua.LState) int { //nolint:gocritic // L is the gopher-lua convention
	L.Push(lua.LNumber(time.Now().Unix()))
	return 1
}
