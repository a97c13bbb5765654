// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

// Package engine defines the capabilities a plugin object needs from an
// embedded script interpreter, independent of the interpreter's native
// value model.
package engine

import (
	"context"
	"math"

	"github.com/mkschreder/jucid/pkg/blob"
)

// Error codes attached to interpreter failures.
const (
	CodeCompile = "SCRIPT_COMPILE"
	CodeRuntime = "SCRIPT_RUNTIME"
	CodeEncode  = "SCRIPT_ENCODE"
)

// Kind tags the dynamic type of an interpreter value.
type Kind uint8

// Value kinds the plugin core distinguishes.
const (
	KindNil Kind = iota
	KindTable
	KindNumber
	KindFunction
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindTable:
		return "table"
	case KindNumber:
		return "number"
	case KindFunction:
		return "function"
	default:
		return "other"
	}
}

// Value is an interpreter value as seen by the plugin core: a kind tag, the
// best-effort numeric form and an engine-owned reference.
type Value struct {
	kind Kind
	num  float64
	ref  any
}

// NewValue creates a value. Engines use ref to carry their native value.
func NewValue(kind Kind, num float64, ref any) Value {
	return Value{kind: kind, num: num, ref: ref}
}

// Kind returns the value's type tag.
func (v Value) Kind() Kind { return v.kind }

// Number returns the numeric form of the value, 0 when it has none.
func (v Value) Number() float64 { return v.num }

// Integer returns the numeric form truncated to an integer. NaN and
// infinities have no integer form and give 0; finite values outside the
// int64 range saturate.
func (v Value) Integer() int64 {
	switch {
	case math.IsNaN(v.num) || math.IsInf(v.num, 0):
		return 0
	case v.num >= maxInt64Float:
		return math.MaxInt64
	case v.num < -maxInt64Float:
		return math.MinInt64
	}
	return int64(v.num)
}

// maxInt64Float is 2^63, the first float64 above math.MaxInt64.
const maxInt64Float = float64(1 << 63)

// Ref returns the engine-native value.
func (v Value) Ref() any { return v.ref }

// Session is the opaque per-call handle bound into an engine so host
// bindings can tell who is calling.
type Session interface {
	ID() string
	Username() string
	Access(scope, object, method, perm string) bool
}

// Engine is one interpreter instance. Implementations are not safe for
// concurrent use; callers serialize access.
type Engine interface {
	// Run compiles the script at path and runs it with no arguments,
	// returning its single result.
	Run(ctx context.Context, path string) (Value, error)

	// Field reads name off a table value.
	Field(table Value, name string) Value

	// Keys returns the string keys of a table in native iteration order.
	Keys(table Value) []string

	// Invoke calls fn with a single table argument built from args (an
	// empty table when args is nil) and returns its single result.
	Invoke(ctx context.Context, fn Value, args *blob.Field) (Value, error)

	// Encode writes the entries of table into the open table of out.
	Encode(table Value, out *blob.Builder) error

	// BindSession makes s visible to host bindings for subsequent calls.
	BindSession(s Session)

	// Close releases the interpreter. Safe to call more than once.
	Close()
}

// Factory creates a fresh engine for the named plugin.
type Factory func(ctx context.Context, name string) (Engine, error)

// Error is an interpreter-level failure: a script that does not compile or
// raises while running.
type Error struct {
	// Code is CodeCompile or CodeRuntime.
	Code string
	// Message is the interpreter's error message.
	Message string
	// Value is the raised value.
	Value Value
	// Trace is the interpreter's stack trace, if any.
	Trace string
}

func (e *Error) Error() string {
	return e.Message
}
