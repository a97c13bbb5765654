// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

// Package hostfunc provides host API bindings to Lua plugins.
//
// Every new interpreter state gets four globals before any plugin script
// runs: JSON (encode/decode), fs (file access), SESSION (the caller bound
// to the current call) and CORE (logging, ids, time).
package hostfunc

import (
	"log/slog"

	lua "github.com/yuin/gopher-lua"

	"github.com/mkschreder/jucid/internal/plugin/engine"
)

// Global names under which the host APIs are published.
const (
	GlobalJSON    = "JSON"
	GlobalFS      = "fs"
	GlobalSession = "SESSION"
	GlobalCore    = "CORE"
)

// Functions publishes host APIs into Lua states.
type Functions struct {
	logger *slog.Logger
}

// Option configures Functions.
type Option func(*Functions)

// WithLogger sets the logger CORE.log writes to. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(f *Functions) {
		f.logger = l
	}
}

// New creates host functions.
func New(opts ...Option) *Functions {
	f := &Functions{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Bindings is the per-state side of the host APIs. It carries the session
// bound for the call in progress.
type Bindings struct {
	plugin  string
	session engine.Session
}

// SetSession binds s for subsequent host API calls. A nil session unbinds.
func (b *Bindings) SetSession(s engine.Session) {
	b.session = s
}

// Session returns the bound session, or nil.
func (b *Bindings) Session() engine.Session {
	return b.session
}

// Register publishes JSON, fs, SESSION and CORE into L for pluginName.
func (f *Functions) Register(L *lua.LState, pluginName string) *Bindings { //nolint:gocritic // L is the gopher-lua convention
	b := &Bindings{plugin: pluginName}

	L.SetGlobal(GlobalJSON, newJSONModule(L))
	L.SetGlobal(GlobalFS, newFSModule(L, pluginName))
	L.SetGlobal(GlobalSession, newSessionModule(L, b))
	L.SetGlobal(GlobalCore, f.newCoreModule(L, pluginName))

	return b
}

func (f *Functions) log() *slog.Logger {
	if f.logger != nil {
		return f.logger
	}
	return slog.Default()
}
