// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

// Package plugin loads script-defined plugin modules into embedded
// interpreters and dispatches calls into them.
package plugin

import (
	"bytes"
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/samber/oops"

	"github.com/mkschreder/jucid/internal/plugin/engine"
	pluginlua "github.com/mkschreder/jucid/internal/plugin/lua"
	"github.com/mkschreder/jucid/pkg/blob"
	"github.com/mkschreder/jucid/pkg/errutil"
)

// Error codes returned by plugin objects and the registry.
const (
	CodeInvalidName    = "INVALID_NAME"
	CodeClosed         = "OBJECT_CLOSED"
	CodeNotTable       = "MODULE_NOT_TABLE"
	CodeNotLoaded      = "NOT_LOADED"
	CodeStateCorrupted = "STATE_CORRUPTED"
	CodeNotAFunction   = "NOT_A_FUNCTION"
	CodeEngine         = "ENGINE_UNAVAILABLE"
)

// Object owns one interpreter instance running one plugin module.
//
// Every operation that touches the interpreter holds the object's mutex, so
// at most one Load or Call is in flight per object. A method that calls back
// into the same object deadlocks.
type Object struct {
	name    string
	factory engine.Factory

	mu        sync.Mutex
	engine    engine.Engine
	module    engine.Value
	loaded    bool
	signature []byte
	closed    bool
}

// Option configures an Object.
type Option func(*Object)

// WithFactory sets the engine factory. Defaults to a Lua state factory with
// the standard library search path.
func WithFactory(f engine.Factory) Option {
	return func(o *Object) {
		o.factory = f
	}
}

// New creates a plugin object and its interpreter. No script runs yet.
func New(ctx context.Context, name string, opts ...Option) (*Object, error) {
	if name == "" {
		return nil, oops.In("plugin").Code(CodeInvalidName).New("plugin name cannot be empty")
	}

	o := &Object{name: name}
	for _, opt := range opts {
		opt(o)
	}
	if o.factory == nil {
		o.factory = pluginlua.NewStateFactory().NewEngine
	}

	e, err := o.factory(ctx, name)
	if err != nil {
		return nil, oops.In("plugin").Code(CodeEngine).With("plugin", name).Hint("failed to create interpreter").Wrap(err)
	}
	o.engine = e

	return o, nil
}

// Name returns the plugin name.
func (o *Object) Name() string {
	return o.name
}

// Loaded reports whether a module is loaded and its interpreter present.
func (o *Object) Loaded() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loaded && o.engine != nil
}

// Load runs the module script at path and records its method signature.
//
// A torn down interpreter is recreated first. On failure the previously
// loaded module and signature stay in place and Load may be retried.
func (o *Object) Load(ctx context.Context, path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return oops.In("plugin").Code(CodeClosed).With("plugin", o.name).New("plugin object is closed")
	}

	if o.engine == nil {
		e, err := o.factory(ctx, o.name)
		if err != nil {
			return oops.In("plugin").Code(CodeEngine).With("plugin", o.name).Hint("failed to recreate interpreter").Wrap(err)
		}
		o.engine = e
	}

	mod, err := o.engine.Run(ctx, path)
	if err != nil {
		err = oops.In("plugin").With("plugin", o.name).With("path", path).Hint("could not load plugin").Wrap(err)
		errutil.LogError(slog.Default(), "could not load plugin", err)
		return err
	}

	if mod.Kind() != engine.KindTable {
		err := oops.In("plugin").Code(CodeNotTable).With("plugin", o.name).With("path", path).
			Errorf("plugin returned %s, expected a table", mod.Kind())
		errutil.LogError(slog.Default(), "could not load plugin", err)
		return err
	}

	o.signature = extractSignature(o.engine, mod)
	o.module = mod
	o.loaded = true

	slog.Debug("plugin loaded",
		"plugin", o.name,
		"path", path,
		"signature_bytes", len(o.signature))

	return nil
}

// Signature returns a copy of the signature recorded by the last
// successful load: a blob table mapping each method name to an empty array.
// It is nil before the first successful load.
func (o *Object) Signature() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	return bytes.Clone(o.signature)
}

// Methods returns the sorted method names of the signature.
func (o *Object) Methods() []string {
	sig := o.Signature()
	root, err := blob.Parse(sig)
	if err != nil {
		return nil
	}
	var names []string
	for name := range root.Pairs() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasMethod reports whether name is a key of the signature.
func (o *Object) HasMethod(name string) bool {
	root, err := blob.Parse(o.Signature())
	if err != nil {
		return false
	}
	_, ok := root.Get(name)
	return ok
}

// Teardown releases the interpreter but keeps the object usable: the next
// Load recreates it. Calls fail with NOT_LOADED until then.
func (o *Object) Teardown() {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.teardown()
}

func (o *Object) teardown() {
	if o.engine != nil {
		o.engine.Close()
		o.engine = nil
	}
	o.module = engine.Value{}
	o.loaded = false
}

// Close destroys the object, releasing its interpreter and signature. It is
// safe to call on an object that never loaded and to call more than once.
func (o *Object) Close() {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.teardown()
	o.signature = nil
	o.closed = true
}

// extractSignature records the module's key set as {key: [], ...}. Values
// are not inspected.
func extractSignature(e engine.Engine, mod engine.Value) []byte {
	var b blob.Builder
	for _, key := range e.Keys(mod) {
		b.PutString(key)
		b.CloseArray(b.OpenArray())
	}
	return bytes.Clone(b.Bytes())
}
